// Package output implements the output scheduler: the per-channel pulse
// queue consumer, the global power-command consumer, scram, board-presence
// probing, and channel calibration (spec.md §4.2).
package output

import (
	"log"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/saawsm/swx-go/internal/dac"
	"github.com/saawsm/swx-go/internal/emitter"
	"github.com/saawsm/swx-go/internal/platform"
	"github.com/saawsm/swx-go/internal/swx"
)

// PulseRecord is one queued pulse, identical to spec.md §3's Pulse record.
type PulseRecord struct {
	Channel    swx.Channel
	PosUS      uint16
	NegUS      uint16
	AbsTimeUS  uint32
}

// PowerCommand is one queued power setpoint (spec.md §3).
type PowerCommand struct {
	Channel swx.Channel
	Power   float64
}

// Safety constants from spec.md §6. CalThresholdOK/CalThresholdOver/
// PreCalMaxVoltage below are the reference-board defaults; a real board
// overrides them from machine.BoardConfig via Scheduler.SetCalibrationLimits.
const (
	CalSweepStart           = 4000
	CalSweepEnd             = 2000
	CalSweepStep            = 10
	CalOffset               = 400
	DefaultCalThresholdOK   = 0.015
	DefaultCalThresholdOver = 0.018
	DefaultPreCalMaxVoltage = 0.015
	calPowerScale           = 2000 // DAC-code scale for the power->DAC-offset conversion, unrelated to PARAM_POWER's own 0..65535 unit (DESIGN.md open question (b))
	pulseQueueDepth         = emitter.FIFODepth
	powerQueueDepth         = 32
	railIdleTimeout         = 30 * time.Second
	dacWriteSettleUS        = 100 * time.Microsecond
	gateSettleUS            = 50 * time.Microsecond
	pulseExpireUS           = 1_000_000
)

// SenseADC reads the isolated sense line for a channel, in volts.
type SenseADC interface {
	ReadVoltage(ch swx.Channel) float64
}

// channelRuntime is a channel's immutable wiring plus mutable status.
type channelRuntime struct {
	gateA, gateB platform.GPIO
	dacCh        dac.Channel

	status   swx.Status
	calValue uint16
	maxPower float64

	emitter *emitter.Emitter
	queue   *platform.Queue[PulseRecord]

	lastDACWriteUS uint32
}

// Scheduler is the realtime output subsystem: it owns the per-channel pulse
// queues, the global power queue, the DAC, the drive rail, and calibration.
type Scheduler struct {
	DAC   *dac.DAC
	Sense SenseADC
	Rail  platform.GPIO
	Now   func() uint32

	channels [swx.ChannelCount]*channelRuntime
	powerQ   *platform.Queue[PowerCommand]
	limiter  *rate.Limiter

	railEnabledUS uint32
	railEnabled   bool

	requireZero *platform.Flag

	calThresholdOK   float64
	calThresholdOver float64
	preCalMaxVoltage float64
}

// SetCalibrationLimits overrides the calibration voltage thresholds used by
// Calibrate, normally sourced from machine.BoardConfig (CalThresholdOK,
// CalThresholdOver, PreCalMaxVoltage). Must be called before Calibrate.
func (s *Scheduler) SetCalibrationLimits(thresholdOK, thresholdOver, preCalMax float64) {
	s.calThresholdOK = thresholdOK
	s.calThresholdOver = thresholdOver
	s.preCalMaxVoltage = preCalMax
}

// Config describes one channel's immutable hardware wiring.
type Config struct {
	GateA, GateB platform.GPIO
	DACChannel   dac.Channel
}

// New constructs a Scheduler. Call Init before use.
func New(d *dac.DAC, sense SenseADC, rail platform.GPIO, requireZero *platform.Flag, now func() uint32) *Scheduler {
	return &Scheduler{
		DAC:         d,
		Sense:       sense,
		Rail:        rail,
		Now:         now,
		powerQ:      platform.NewQueue[PowerCommand](powerQueueDepth),
		limiter:     rate.NewLimiter(rate.Every(time.Duration(swx.ChannelCount)*110*time.Microsecond), 1),
		requireZero: requireZero,

		calThresholdOK:   DefaultCalThresholdOK,
		calThresholdOver: DefaultCalThresholdOver,
		preCalMaxVoltage: DefaultPreCalMaxVoltage,
	}
}

// Init wires each channel's gates and DAC sub-channel. All channels start
// INVALID until Calibrate runs.
func (s *Scheduler) Init(cfgs [swx.ChannelCount]Config) {
	for i, cfg := range cfgs {
		cr := &channelRuntime{
			gateA: cfg.GateA,
			gateB: cfg.GateB,
			dacCh: cfg.DACChannel,
			status: swx.Invalid,
			maxPower: 1.0,
			queue:  platform.NewQueue[PulseRecord](pulseQueueDepth),
		}
		s.channels[i] = cr
	}
}

// Status returns ch's current lifecycle status.
func (s *Scheduler) Status(ch swx.Channel) swx.Status {
	return s.channels[ch].status
}

// SetMaxPower sets ch's operator intensity ceiling, clamped to [0,1].
func (s *Scheduler) SetMaxPower(ch swx.Channel, v float64) {
	s.channels[ch].maxPower = swx.ClampF64(v, 0, 1)
}

// MaxPower returns ch's current ceiling.
func (s *Scheduler) MaxPower(ch swx.Channel) float64 {
	return s.channels[ch].maxPower
}

// CalValue returns ch's discovered calibration DAC code.
func (s *Scheduler) CalValue(ch swx.Channel) uint16 {
	return s.channels[ch].calValue
}

// Pulse enqueues a pulse for ch; it is the scheduler's only producer-side
// entry point into the per-channel queue, called from core 0.
func (s *Scheduler) Pulse(ch swx.Channel, posUS, negUS uint16, absTimeUS uint32) bool {
	if int(ch) >= swx.ChannelCount {
		return false
	}
	return s.channels[ch].queue.TryPush(PulseRecord{Channel: ch, PosUS: posUS, NegUS: negUS, AbsTimeUS: absTimeUS})
}

// Power enqueues a power setpoint, called from core 0.
func (s *Scheduler) Power(ch swx.Channel, power float64) bool {
	return s.powerQ.TryPush(PowerCommand{Channel: ch, Power: power})
}

// ProcessPulses runs the realtime pulse-queue consumer (spec.md §4.2). Call
// it in a tight loop on the realtime core.
func (s *Scheduler) ProcessPulses() {
	now := s.Now()
	anyQueued := false
	for i := range s.channels {
		cr := s.channels[i]
		head, ok := cr.queue.Peek()
		if !ok {
			continue
		}
		anyQueued = true
		if elapsed(head.AbsTimeUS, now) {
			cr.queue.TryPop()
			if s.requireZero.Has(swx.ChannelMask(swx.Channel(i))) {
				continue
			}
			if cr.status != swx.Ready {
				continue
			}
			if head.AbsTimeUS+pulseExpireUS < now {
				continue
			}
			pos := clampHalfWidth(head.PosUS)
			neg := clampHalfWidth(head.NegUS)
			if cr.emitter != nil && !cr.emitter.Submit(emitter.Word{PosUS: pos, NegUS: neg}) {
				log.Printf("output: channel %d emitter FIFO full, pulse dropped", i)
			}
		}
	}
	if !anyQueued && s.railEnabled && now-s.railEnabledUS >= uint32(railIdleTimeout.Microseconds()) {
		s.disableRail()
	}
}

func elapsed(absTimeUS, now uint32) bool {
	return int32(now-absTimeUS) >= 0
}

func clampHalfWidth(v uint16) uint16 {
	if v > emitter.MaxHalfWidth {
		return emitter.MaxHalfWidth
	}
	return v
}

// ProcessPower pops and applies at most one power command per call,
// respecting the DAC write rate limit (spec.md §4.2).
func (s *Scheduler) ProcessPower() {
	cmd, ok := s.powerQ.TryPop()
	if !ok {
		return
	}
	cr := s.channels[cmd.Channel]

	clamped := swx.ClampF64(cmd.Power, 0, 1) * swx.ClampF64(cr.maxPower, 0, 1)
	mask := swx.ChannelMask(cmd.Channel)
	if s.requireZero.Has(mask) {
		if cr.maxPower <= 0.01 {
			s.requireZero.AndNot(mask)
		} else {
			clamped = 0
		}
	}

	dacValue := int32(cr.calValue) + CalOffset - int32(math.Round(calPowerScale*clamped))
	if dacValue < 0 || dacValue > int32(dac.Max) {
		return
	}

	if !s.limiter.Allow() {
		// Re-queue is intentionally not attempted: spec.md says defer, and
		// the next ProcessPower call will naturally retry this channel's
		// next command.
		return
	}
	_ = s.DAC.Write(cr.dacCh, uint16(dacValue))
}

// Scram is an irreversible safety stop (spec.md §4.2).
func (s *Scheduler) Scram() {
	s.disableRail()
	for i := range s.channels {
		cr := s.channels[i]
		cr.status = swx.Fault
		if cr.gateA != nil {
			cr.gateA.SetLevel(platform.Low)
		}
		if cr.gateB != nil {
			cr.gateB.SetLevel(platform.Low)
		}
		if s.DAC != nil {
			_ = s.DAC.Write(cr.dacCh, dac.Max)
		}
	}
}

// BoardMissing probes the drive rail pin with an input pull-down read while
// the rail is disabled; true indicates the output board is absent.
func (s *Scheduler) BoardMissing() bool {
	if s.railEnabled || s.Rail == nil {
		return false
	}
	s.Rail.SetDirection(platform.DirInput)
	return s.Rail.Level() == platform.High
}

func (s *Scheduler) enableRail() {
	if s.Rail != nil {
		s.Rail.SetDirection(platform.DirOutput)
		s.Rail.SetLevel(platform.High)
	}
	s.railEnabled = true
	s.railEnabledUS = s.Now()
}

func (s *Scheduler) disableRail() {
	if s.Rail != nil {
		s.Rail.SetDirection(platform.DirOutput)
		s.Rail.SetLevel(platform.Low)
	}
	s.railEnabled = false
}
