// Package audio implements the audio processor: it consumes analog capture
// windows, detects rising zero crossings, and feeds pulses into the output
// scheduler while reporting a normalized amplitude (spec.md §4.4, §9's
// amplitude-cache requirement).
package audio

import (
	"github.com/brandondube/ringo"

	"github.com/saawsm/swx-go/internal/capture"
	"github.com/saawsm/swx-go/internal/swx"
)

// noiseGate is the amplitude floor below which the processor reports 0 and
// takes no further action (spec.md §4.4).
const noiseGate = 0.05

// lowFrequencyImbalance is the above/below sample-count imbalance past
// which a window is classified as "low frequency" (no full cycle fits).
const lowFrequencyImbalance = 50

// singleSampleUS is the fixed per-sample period of the simulated capture
// ADC: round-robin at >= 30.72 kHz/channel per spec.md §4.7, so one sample
// is roughly 32us; used only to estimate a crossing's timestamp within a
// window.
const singleSampleUS = 32

// ampHistoryDepth bounds the rolling amplitude history kept per channel for
// diagnostics.
const ampHistoryDepth = 16

// PulseQueuer is the subset of the output scheduler the audio processor
// needs. Declared locally (rather than importing internal/output) so audio
// has no dependency on output's package and tests can supply a fake queue.
type PulseQueuer interface {
	Pulse(ch swx.Channel, posUS, negUS uint16, absTimeUS uint32) bool
}

// ChannelState is the audio processor's per-channel mutable state: the
// last two signed samples (for zero-crossing comparison), the timestamp of
// the last emitted pulse, and a rolling amplitude history.
//
// last0/last1 are tracked as plain fields rather than through
// ringo.CircleF64: that type's Head() indexes buf[cursor], which is out of
// range immediately after a write leaves cursor == cap(buf) and before the
// next Append's reset check runs (see the vendored f64.go Append/Head
// pair). Tail() has no such hazard, so ampHistory below uses it safely for
// a different (non-safety-relevant) purpose.
type ChannelState struct {
	last0, last1 float64
	haveLast0    bool
	haveLast1    bool

	lastProcUS  uint32
	lastPulseUS uint32

	ampHistory ringo.CircleF64
}

// NewChannelState returns a ChannelState ready for use.
func NewChannelState() *ChannelState {
	cs := &ChannelState{}
	cs.ampHistory.Init(ampHistoryDepth)
	return cs
}

// RecentAmplitudes returns the most recently computed amplitudes, oldest
// first, for diagnostics.
func (cs *ChannelState) RecentAmplitudes() []float64 {
	return cs.ampHistory.Contiguous()
}

// Processor evaluates one analog source against a capture subsystem and
// optionally emits pulses through a PulseQueuer.
type Processor struct {
	Capture *capture.Capture
	Queue   PulseQueuer
}

// New returns a Processor reading from cap and emitting into q.
func New(cap *capture.Capture, q PulseQueuer) *Processor {
	return &Processor{Capture: cap, Queue: q}
}

// Process fetches the latest window for src and, if it is a window the
// caller has not yet processed, optionally generates zero-crossing pulses
// into ch at target half-width pulseWidthUS, gated to at most one pulse per
// minPeriodUS. now is the current time in microseconds. It returns the
// window's amplitude (0 if gated by noise floor).
func (p *Processor) Process(src capture.Source, st *ChannelState, ch swx.Channel, generateCrossings bool, pulseWidthUS uint16, minPeriodUS uint32, now uint32) float64 {
	w := p.Capture.FetchWindow(src)

	if st.lastProcUS != 0 && w.CaptureEndUS <= st.lastProcUS {
		return cachedAmplitude(w)
	}
	st.lastProcUS = w.CaptureEndUS
	st.ampHistory.Append(w.Amplitude)

	if w.Amplitude < noiseGate {
		return 0
	}

	if generateCrossings {
		lowFreq := abs(w.Above-w.Below) > lowFrequencyImbalance
		captureStartUS := uint32(0)
		if w.CaptureEndUS > uint32(len(w.Samples))*singleSampleUS {
			captureStartUS = w.CaptureEndUS - uint32(len(w.Samples))*singleSampleUS
		}

		for i, raw := range w.Samples {
			value := float64(int32(capture.ZeroPoint) - int32(raw))

			rising := value > 0 && st.haveLast0 && st.last0 <= 0
			if rising && lowFreq && st.haveLast1 {
				rising = st.last0 >= st.last1
			}

			if rising {
				tsUS := captureStartUS + uint32(i)*singleSampleUS
				if now-st.lastPulseUS >= minPeriodUS {
					emitUS := tsUS + w.CaptureEndUS - captureStartUS // one-window lead
					if p.Queue != nil && p.Queue.Pulse(ch, pulseWidthUS, pulseWidthUS, emitUS) {
						st.lastPulseUS = now
					}
				}
			}

			st.last1, st.haveLast1 = st.last0, st.haveLast0
			st.last0, st.haveLast0 = value, true
		}
	}

	return w.Amplitude
}

func cachedAmplitude(w capture.Window) float64 {
	if w.Amplitude < noiseGate {
		return 0
	}
	return w.Amplitude
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
