// host.Handler implementation: every method the command dispatcher
// (internal/host) needs to read and mutate board state, wired to the
// subsystem packages machine.New assembled. Grounded on
// generichttp.motion.Enabler's pattern of a small capability interface
// satisfied by one concrete device type.
package machine

import (
	"github.com/saawsm/swx-go/internal/digipot"
	"github.com/saawsm/swx-go/internal/generator"
	"github.com/saawsm/swx-go/internal/host"
	"github.com/saawsm/swx-go/internal/param"
	"github.com/saawsm/swx-go/internal/platform"
	"github.com/saawsm/swx-go/internal/script"
	"github.com/saawsm/swx-go/internal/swx"
)

// Version answers REQUEST_VERSION (spec.md §6).
func (m *Machine) Version() host.VersionInfo { return m.VersionInfo }

// Err answers REQUEST_ERR, merging the explicitly latched bits (HW_POT set
// by digipot write failures, HW_OUTPUT set by CheckBoardMissing) with the
// live per-channel FAULT status, which always implies CAL regardless of
// when the fault occurred. Nothing latches HW_DAC: DAC write failures are
// discarded by output.Scheduler, so that bit is never set.
func (m *Machine) Err() host.ErrFlags {
	e := m.errFlags
	for ch := swx.Channel(0); ch < swx.ChannelCount; ch++ {
		if m.Output.Status(ch) == swx.Fault {
			e = e.Set(host.ErrCal)
		}
	}
	return e
}

// Shutdown deasserts the power-latch pin (spec.md §6: "device remains on
// only while USB powered").
func (m *Machine) Shutdown() {
	if m.powerLatch == nil {
		return
	}
	m.powerLatch.SetDirection(platform.DirOutput)
	m.powerLatch.SetLevel(platform.Low)
}

// ResetToUSBBoot scrams the board, then hands off to whatever bootloader
// entry point the host platform provides (firmware update transport is an
// external-collaborator concern, spec.md §1 Non-goals).
func (m *Machine) ResetToUSBBoot() {
	m.Output.Scram()
	if m.RebootToBootloader != nil {
		m.RebootToBootloader()
	}
}

func (m *Machine) MicPipEnabled() bool     { return m.micPipEn }
func (m *Machine) SetMicPipEnabled(v bool) { m.micPipEn = v }

// MicGain returns the shadowed preamp wiper position from Machine.gain;
// the digipot driver offers no read-back.
func (m *Machine) MicGain() uint8 { return m.gain[digipot.Preamp] }

func (m *Machine) SetMicGain(v uint8) {
	if err := m.digipotDrv.SetGain(digipot.Preamp, v); err != nil {
		m.errFlags = m.errFlags.Set(host.ErrHWPot)
		m.Log.Printf("machine: mic gain write failed: %v", err)
		return
	}
	m.gain[digipot.Preamp] = v
}

// analogGainChannel maps the wire protocol's analog_ch (0=MIC, 1=LEFT,
// 2=RIGHT) to the digipot's wiper channel enum, skipping Preamp which
// MIC_GAIN addresses directly.
func analogGainChannel(analogCh uint8) (digipot.GainChannel, bool) {
	switch analogCh {
	case 0:
		return digipot.Mic, true
	case 1:
		return digipot.Left, true
	case 2:
		return digipot.Right, true
	default:
		return 0, false
	}
}

func (m *Machine) Gain(channel uint8) uint8 {
	gc, ok := analogGainChannel(channel)
	if !ok {
		return 0
	}
	return m.gain[gc]
}

func (m *Machine) SetGain(channel uint8, value uint8) {
	gc, ok := analogGainChannel(channel)
	if !ok {
		return
	}
	if err := m.digipotDrv.SetGain(gc, value); err != nil {
		m.errFlags = m.errFlags.Set(host.ErrHWPot)
		m.Log.Printf("machine: gain write failed for channel %d: %v", channel, err)
		return
	}
	m.gain[gc] = value
}

func (m *Machine) MaxPower(ch swx.Channel) float64       { return m.Output.MaxPower(ch) }
func (m *Machine) SetMaxPower(ch swx.Channel, v float64) { m.Output.SetMaxPower(ch, v) }

func (m *Machine) RequireZeroMask() uint8 { return m.requireZero.Load() }
func (m *Machine) SetRequireZeroMask(mask uint8) {
	m.requireZero.Store(mask)
}

// audioWireSource/audioWireMode convert between the wire's packed
// gen_pulses:1|gen_power:1|audio_src:6 fields and generator's typed
// AudioSource/AudioMode (spec.md §6 UPDATE_CH_AUDIO).
func audioWireSource(src uint8) generator.AudioSource {
	switch src {
	case 1:
		return generator.AudioSourceMic
	case 2:
		return generator.AudioSourceLeft
	case 3:
		return generator.AudioSourceRight
	default:
		return generator.AudioSourceNone
	}
}

func audioSourceWire(src generator.AudioSource) uint8 {
	switch src {
	case generator.AudioSourceMic:
		return 1
	case generator.AudioSourceLeft:
		return 2
	case generator.AudioSourceRight:
		return 3
	default:
		return 0
	}
}

func (m *Machine) ChAudio(ch swx.Channel) (genPulses, genPower bool, src uint8) {
	cfg := m.Generator.AudioConfig[ch]
	return cfg.Mode&generator.AudioModePulse != 0, cfg.Mode&generator.AudioModePower != 0, audioSourceWire(cfg.Source)
}

func (m *Machine) SetChAudio(ch swx.Channel, genPulses, genPower bool, src uint8) {
	var mode generator.AudioMode
	if genPulses {
		mode |= generator.AudioModePulse
	}
	if genPower {
		mode |= generator.AudioModePower
	}
	m.Generator.AudioConfig[ch] = generator.ChannelAudioConfig{
		Source:      audioWireSource(src),
		Mode:        mode,
		MinPeriodUS: m.Generator.AudioConfig[ch].MinPeriodUS,
	}
}

func (m *Machine) ChEnMask() uint8 { return m.Script.EnMask.Load() }
func (m *Machine) SetChEnMask(mask uint8) {
	m.Script.EnMask.Store(mask)
}

func (m *Machine) ChParam(ch swx.Channel, p param.Param, t param.Target) uint16 {
	return m.Matrix.Get(ch, p, t)
}

func (m *Machine) SetChParam(ch swx.Channel, p param.Param, t param.Target, value uint16) {
	m.Matrix.Set(ch, p, t, value)
}

func (m *Machine) UpdateChParam(ch swx.Channel, p param.Param) {
	if p == param.All {
		for i := 0; i < param.Count; i++ {
			m.Matrix.Update(ch, param.Param(i))
		}
		return
	}
	m.Matrix.Update(ch, p)
}

func (m *Machine) ChStatus(ch swx.Channel) swx.Status { return m.Output.Status(ch) }

func (m *Machine) SeqMask(index uint8) uint8 {
	if int(index) >= len(m.Sequencer.Masks) {
		return 0
	}
	return m.Sequencer.Masks[index]
}

func (m *Machine) SetSeqMask(index uint8, mask uint8) {
	if int(index) >= len(m.Sequencer.Masks) {
		return
	}
	m.Sequencer.Masks[index] = mask
}

func (m *Machine) SeqCount() uint8         { return uint8(m.Sequencer.Count) }
func (m *Machine) SetSeqCount(count uint8) { m.Sequencer.Count = int(count) }
func (m *Machine) ResetSeq()               { m.Sequencer.Index = 0 }
func (m *Machine) SeqPeriodUS() uint32     { return m.Sequencer.PeriodUS }
func (m *Machine) SetSeqPeriodUS(us uint32) {
	m.Sequencer.PeriodUS = us
}

func (m *Machine) Action(index uint8) script.Action { return m.Script.Actions[index] }
func (m *Machine) SetAction(index uint8, a script.Action) {
	m.Script.Actions[index] = a
}
func (m *Machine) RunAction(index uint8)          { m.Script.RunOne(index) }
func (m *Machine) RunActionList(start, end uint8) { m.Script.ExecuteRange(start, end) }

func (m *Machine) Trigger(index uint8) script.Trigger { return m.Script.Triggers[index] }
func (m *Machine) SetTrigger(index uint8, t script.Trigger) {
	m.Script.Triggers[index] = t
}
func (m *Machine) TriggerState(index uint8) bool { return m.Script.LastState(index) }

// handlerCheck is a compile-time assertion that Machine satisfies
// host.Handler, the way generichttp's capability interfaces are asserted
// against concrete device types in the teacher repo.
var _ host.Handler = (*Machine)(nil)
