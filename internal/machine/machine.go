// Package machine owns the single long-lived board value wiring every
// other package into the two cooperative loops spec.md §5 describes: core
// 0 (protocol decode, generator tick, trigger/action/calibration) and core
// 1 (the realtime pulse/power queue consumers). Grounded on fsm-shaped
// control loops in the teacher repo (comm.RemoteDevice's single-owner
// resource pattern) generalized to own every subsystem instead of one
// remote device.
package machine

import (
	"log"
	"time"

	"github.com/saawsm/swx-go/internal/audio"
	"github.com/saawsm/swx-go/internal/capture"
	"github.com/saawsm/swx-go/internal/dac"
	"github.com/saawsm/swx-go/internal/digipot"
	"github.com/saawsm/swx-go/internal/generator"
	"github.com/saawsm/swx-go/internal/host"
	"github.com/saawsm/swx-go/internal/output"
	"github.com/saawsm/swx-go/internal/param"
	"github.com/saawsm/swx-go/internal/platform"
	"github.com/saawsm/swx-go/internal/script"
	"github.com/saawsm/swx-go/internal/swx"
)

// ErrFlags is the machine-wide hardware/calibration error bitfield from
// spec.md §7, aliasing host.ErrFlags so the same bit layout answers both
// the host ERR command and internal fault bookkeeping without a second
// type.
type ErrFlags = host.ErrFlags

// Machine is the single long-lived board value. Its zero value is not
// usable; build one with New.
type Machine struct {
	Log *log.Logger

	Board   BoardConfig
	Runtime Runtime

	Now func() uint32

	dacDrv     *dac.DAC
	digipotDrv *digipot.Digipot
	rail       platform.GPIO
	powerLatch platform.GPIO
	sense      *senseADC

	requireZero *platform.Flag

	// RebootToBootloader, if set, is called by ResetToUSBBoot after scram
	// completes. Firmware update is an external-collaborator concern
	// (spec.md §1 Non-goals), so machine only provides the hook; cmd/swxd
	// wires it to whatever the host platform's bootloader entry looks like.
	RebootToBootloader func()

	Output    *output.Scheduler
	Matrix    *param.Matrix
	Capture   *capture.Capture
	Audio     *audio.Processor
	Script    *script.Engine
	Generator *generator.Generator
	Sequencer *script.Sequencer

	gain [4]uint8 // shadow of digipot wiper positions; the part has no read-back

	micPipEn     bool
	errFlags     ErrFlags
	boardMissing bool

	VersionInfo host.VersionInfo

	stop chan struct{}
}

// senseADC adapts capture.Capture's single shared Sense line to
// output.SenseADC's per-channel signature: only one output channel is ever
// being calibrated or driven into the sense line at a time (spec.md §4.2's
// sweep is sequential per channel), so every channel reads the same
// instantaneous window.
type senseADC struct {
	cap *capture.Capture
}

// senseFullScaleVolts is the reference voltage the simulated sense ADC
// spans; there is no real converter in this board simulation, so amplitude
// is mapped onto it linearly around capture.ZeroPoint.
const senseFullScaleVolts = 3.3

func (s *senseADC) ReadVoltage(_ swx.Channel) float64 {
	w := s.cap.FetchWindow(capture.Sense)
	if len(w.Samples) == 0 {
		return 0
	}
	last := w.Samples[len(w.Samples)-1]
	return (float64(last) - float64(capture.ZeroPoint)) / 4096 * senseFullScaleVolts
}

// New builds a Machine from board and runtime configuration, wiring every
// subsystem package but not yet calibrating or starting any loop.
func New(board BoardConfig, rt Runtime, bus platform.I2CBus, gpios [4][2]platform.GPIO, railPin, powerLatchPin platform.GPIO, now func() uint32) *Machine {
	m := &Machine{
		Log:         log.Default(),
		Board:       board,
		Runtime:     rt,
		Now:         now,
		VersionInfo: host.VersionInfo{Protocol: 1, Firmware: 1, Build: "dev"},
		stop:        make(chan struct{}),
	}

	m.dacDrv = dac.New(bus, board.DACAddr)
	m.digipotDrv = digipot.New(bus, board.DigipotAddr)
	m.rail = railPin
	m.powerLatch = powerLatchPin
	m.Capture = capture.New()
	m.sense = &senseADC{cap: m.Capture}

	enMask := &platform.Flag{}
	m.requireZero = &platform.Flag{}

	m.Output = output.New(m.dacDrv, m.sense, m.rail, m.requireZero, now)
	m.Output.SetCalibrationLimits(board.CalThresholdOK, board.CalThresholdOver, board.PreCalMaxVoltage)
	var cfgs [swx.ChannelCount]output.Config
	for i, pins := range board.Channels {
		cfgs[i] = output.Config{GateA: gpios[i][0], GateB: gpios[i][1], DACChannel: dac.Channel(pins.DAC)}
	}
	m.Output.Init(cfgs)
	for ch := swx.Channel(0); ch < swx.ChannelCount; ch++ {
		m.Output.SetMaxPower(ch, rt.DefaultMaxPower)
	}

	m.Matrix = param.NewMatrix()
	m.Audio = audio.New(m.Capture, m.Output)
	m.Script = script.NewEngine(m.Matrix, enMask, platform.NewAlarmScheduler())
	m.Script.OnDepthExceeded = func(start, end uint8) {
		m.Log.Printf("machine: EXECUTE depth exceeded for action range [%d,%d), dropped", start, end)
	}
	m.Sequencer = &script.Sequencer{PeriodUS: uint32(rt.SequencerPeriod.Microseconds())}

	m.Generator = generator.New(m.Matrix, m.Output, m.Audio)
	m.Generator.ExecuteActionRange = m.Script.ExecuteRange

	return m
}

// Tick runs one core-0 pass: sequencer, triggers, and the generator (spec.md
// §5 "pulse generator loop ... interleaved with protocol and trigger
// processing").
func (m *Machine) Tick(trigInputs uint8) {
	now := m.Now()
	m.Sequencer.Tick(now)
	m.Script.Tick(now, trigInputs, m.Capture)
	effective := m.Sequencer.EffectiveMask(m.Script.EnMask.Load())
	m.Generator.Tick(now, effective)
}

// RunControlLoop runs Tick in a busy loop until Stop is called, sleeping
// briefly between passes the way a cooperative core 0 yields at its
// process() return points (spec.md §5). trigInputs reads the current raw
// hardware trigger line state.
func (m *Machine) RunControlLoop(trigInputs func() uint8) {
	for {
		select {
		case <-m.stop:
			return
		default:
		}
		m.Tick(trigInputs())
		time.Sleep(100 * time.Microsecond)
	}
}

// RunRealtimeLoop runs only ProcessPulses/ProcessPower in a tight loop,
// mirroring core 1's restricted responsibility (spec.md §5).
func (m *Machine) RunRealtimeLoop() {
	for {
		select {
		case <-m.stop:
			return
		default:
		}
		m.Output.ProcessPulses()
		m.Output.ProcessPower()
		time.Sleep(50 * time.Microsecond)
	}
}

// Stop halts both RunControlLoop and RunRealtimeLoop.
func (m *Machine) Stop() { close(m.stop) }

// Calibrate runs the channel calibration sweep (spec.md §4.2) before either
// loop starts driving outputs.
func (m *Machine) Calibrate() {
	m.Output.Calibrate()
}

// CheckBoardMissing probes the output board once (spec.md §4.2 board_missing)
// and latches the result into the ERR bitfield's HW_OUTPUT bit. Callers
// scram and halt on a true return (spec.md §7: "Output board missing at
// boot -> scram() and all channels FAULT. No recovery without reboot.").
func (m *Machine) CheckBoardMissing() bool {
	m.boardMissing = m.Output.BoardMissing()
	if m.boardMissing {
		m.errFlags = m.errFlags.Set(ErrHWOutput)
	}
	return m.boardMissing
}
