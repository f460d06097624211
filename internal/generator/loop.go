// Package generator implements the top-level pulse generator tick that
// drives the parameter engine, the audio processor, and the action/trigger
// engine into channel pulse and power output (spec.md §4.6).
package generator

import (
	"github.com/saawsm/swx-go/internal/audio"
	"github.com/saawsm/swx-go/internal/capture"
	"github.com/saawsm/swx-go/internal/param"
	"github.com/saawsm/swx-go/internal/swx"
)

// StateCursor is a channel's position in the ON_RAMP -> ON -> OFF_RAMP ->
// OFF cycle (spec.md §3 Generator state).
type StateCursor uint8

const (
	StateOnRamp StateCursor = iota
	StateOn
	StateOffRamp
	StateOff
	stateCount = 4
)

// stateDurationParam maps a cursor state to the Param whose VALUE (in
// milliseconds) gives that state's duration.
func stateDurationParam(s StateCursor) param.Param {
	switch s {
	case StateOnRamp:
		return param.OnRampTime
	case StateOn:
		return param.OnTime
	case StateOffRamp:
		return param.OffRampTime
	default:
		return param.OffTime
	}
}

// maxFrequencyDHz is the hard safety clamp on pulse frequency (spec.md §6:
// "max frequency 500 Hz").
const maxFrequencyDHz = 5000

// pulseLeadUS is the fixed scheduling lead spec.md §4.6 mandates for
// periodic pulses.
const pulseLeadUS = 110

// powerCommandMinPeriodUS is the per-channel power-command rate cap
// (spec.md §4.6: "no more than once per CHANNEL_COUNT x 110us").
const powerCommandMinPeriodUS = uint32(swx.ChannelCount) * 110

// AudioMode bits select what the audio processor's result feeds (spec.md
// §4.6 point 4).
type AudioMode uint8

const (
	AudioModePower AudioMode = 1 << 0
	AudioModePulse AudioMode = 1 << 1
)

// AudioSource names the analog input a channel's audio processing reads,
// with 0 meaning "no audio source" (spec.md §4.4's "MIC | LEFT | RIGHT").
// Kept distinct from capture.Source so capture's own zero value (Mic)
// stays unambiguous; only the generator needs a disabled sentinel.
type AudioSource uint8

const (
	AudioSourceNone AudioSource = iota
	AudioSourceMic
	AudioSourceLeft
	AudioSourceRight
)

// CaptureSource converts src to the capture package's source enum. ok is
// false for AudioSourceNone.
func (src AudioSource) CaptureSource() (capture.Source, bool) {
	switch src {
	case AudioSourceMic:
		return capture.Mic, true
	case AudioSourceLeft:
		return capture.Left, true
	case AudioSourceRight:
		return capture.Right, true
	default:
		return 0, false
	}
}

// ChannelAudioConfig is one channel's audio routing (spec.md §4.4/§4.6).
type ChannelAudioConfig struct {
	Source       AudioSource
	Mode         AudioMode
	MinPeriodUS  uint32
}

// ChannelGenState is one channel's Generator state (spec.md §3).
type ChannelGenState struct {
	Cursor      StateCursor
	LastStateUS uint32
	LastPulseUS uint32
	LastPowerUS uint32
}

// Scheduler is the subset of the output scheduler the generator needs.
// Declared locally so generator does not depend on internal/output's
// calibration/scram surface, only the two core-0 enqueue calls.
type Scheduler interface {
	Pulse(ch swx.Channel, posUS, negUS uint16, absTimeUS uint32) bool
	Power(ch swx.Channel, power float64) bool
}

// Generator is the top-level tick driver for all channels.
type Generator struct {
	Matrix    *param.Matrix
	Scheduler Scheduler
	Audio     *audio.Processor

	AudioConfig [swx.ChannelCount]ChannelAudioConfig
	audioState  [swx.ChannelCount]*audio.ChannelState
	genState    [swx.ChannelCount]ChannelGenState

	// ExecuteActionRange is called when a parameter's cycling step reaches
	// an end with a non-empty ACTION_RANGE. Wired by machine to
	// script.Engine.ExecuteRange, kept as a callback here to avoid
	// generator depending on the script package.
	ExecuteActionRange func(start, end uint8)
}

// New returns a Generator. m, sched, and proc must be non-nil.
func New(m *param.Matrix, sched Scheduler, proc *audio.Processor) *Generator {
	g := &Generator{Matrix: m, Scheduler: sched, Audio: proc}
	for i := range g.audioState {
		g.audioState[i] = audio.NewChannelState()
	}
	return g
}

// Tick runs one pass over every channel (spec.md §4.6). effectiveEnable is
// the per-tick enable mask after sequencer/en_mask combination.
func (g *Generator) Tick(now uint32, effectiveEnable uint8) {
	for i := 0; i < swx.ChannelCount; i++ {
		ch := swx.Channel(i)
		gs := &g.genState[i]

		if effectiveEnable&swx.ChannelMask(ch) == 0 {
			gs.Cursor = StateOnRamp
			gs.LastStateUS = now
			continue
		}

		g.stepParameters(ch, now)
		g.advanceCursor(ch, gs, now)

		power, skip := g.computePower(ch, gs, now)
		if skip {
			continue
		}

		skipPeriodic := g.applyAudio(ch, gs, &power, now)
		if !skipPeriodic {
			g.emitPeriodicPulse(ch, gs, now)
		}
		g.emitPowerCommand(ch, gs, power, now)
	}
}

func (g *Generator) stepParameters(ch swx.Channel, now uint32) {
	for p := 0; p < param.Count; p++ {
		start, end, fired := g.Matrix.Step(ch, param.Param(p), now)
		if fired && g.ExecuteActionRange != nil {
			g.ExecuteActionRange(start, end)
		}
	}
}

func (g *Generator) advanceCursor(ch swx.Channel, gs *ChannelGenState, now uint32) {
	durationMS := g.Matrix.Get(ch, stateDurationParam(gs.Cursor), param.Value)
	durationUS := uint32(durationMS) * 1000
	if now-gs.LastStateUS > durationUS {
		gs.Cursor = (gs.Cursor + 1) % stateCount
		gs.LastStateUS = now
	}
}

// computePower returns the base power for this pass and whether pulse
// emission should be skipped entirely (the OFF state).
func (g *Generator) computePower(ch swx.Channel, gs *ChannelGenState, now uint32) (power float64, skip bool) {
	base := float64(g.Matrix.Get(ch, param.Power, param.Value)) / 65535.0

	switch gs.Cursor {
	case StateOnRamp:
		rampUS := uint32(g.Matrix.Get(ch, param.OnRampTime, param.Value)) * 1000
		modifier := rampModifier(now-gs.LastStateUS, rampUS, true)
		return base * modifier, false
	case StateOn:
		return base, false
	case StateOffRamp:
		rampUS := uint32(g.Matrix.Get(ch, param.OffRampTime, param.Value)) * 1000
		modifier := rampModifier(now-gs.LastStateUS, rampUS, false)
		return base * modifier, false
	default: // StateOff
		return 0, true
	}
}

func rampModifier(elapsedUS, rampUS uint32, growing bool) float64 {
	if rampUS == 0 {
		if growing {
			return 1
		}
		return 0
	}
	frac := float64(elapsedUS) / float64(rampUS)
	if frac > 1 {
		frac = 1
	}
	if growing {
		return frac
	}
	return 1 - frac
}

// applyAudio invokes the audio processor when the channel has a configured
// source and non-zero mode, folding its amplitude into power and reporting
// whether periodic pulse emission should be skipped in favor of the audio
// processor's own pulses (spec.md §4.6 point 4).
func (g *Generator) applyAudio(ch swx.Channel, gs *ChannelGenState, power *float64, now uint32) bool {
	cfg := g.AudioConfig[ch]
	src, ok := cfg.Source.CaptureSource()
	if !ok || cfg.Mode == 0 || g.Audio == nil {
		return false
	}

	pulseWidth := g.Matrix.Get(ch, param.PulseWidth, param.Value)
	generateCrossings := cfg.Mode&AudioModePulse != 0
	amplitude := g.Audio.Process(src, g.audioState[ch], ch, generateCrossings, pulseWidth, cfg.MinPeriodUS, now)

	if cfg.Mode&AudioModePower != 0 {
		*power *= amplitude
	}
	return generateCrossings
}

func (g *Generator) emitPeriodicPulse(ch swx.Channel, gs *ChannelGenState, now uint32) {
	freqDHz := g.Matrix.Get(ch, param.Frequency, param.Value)
	if freqDHz == 0 {
		return
	}
	if freqDHz > maxFrequencyDHz {
		freqDHz = maxFrequencyDHz
	}
	periodUS := uint32(10_000_000) / uint32(freqDHz)
	if now-gs.LastPulseUS < periodUS {
		return
	}
	pw := g.Matrix.Get(ch, param.PulseWidth, param.Value)
	if g.Scheduler.Pulse(ch, pw, pw, now+pulseLeadUS) {
		gs.LastPulseUS = now
	}
}

func (g *Generator) emitPowerCommand(ch swx.Channel, gs *ChannelGenState, power float64, now uint32) {
	if now-gs.LastPowerUS < powerCommandMinPeriodUS {
		return
	}
	if g.Scheduler.Power(ch, power) {
		gs.LastPowerUS = now
	}
}
