// Package capture implements the analog capture subsystem for four inputs:
// PushSamples hands in each source's samples already separated, and stats
// and amplitude are computed once per fresh window (spec.md §4.7). Each
// source keeps one staged buffer that every PushSamples call replaces;
// there is no ping-pong buffer pair and no round-robin deinterleave.
package capture

import (
	"sync"
	"sync/atomic"

	"github.com/brandondube/ringo"
)

// Source identifies one of the four round-robin ADC inputs (spec.md §6
// hardware bindings).
type Source uint8

const (
	Mic Source = iota
	Left
	Right
	Sense
	numSources = 4
)

// ZeroPoint is the ADC midcode (12-bit ADC, 0..4095) used as the reference
// for amplitude and above/below-zero counting.
const ZeroPoint uint16 = 2048

// Window is one channel's capture window: the raw samples plus derived
// stats, computed once per fresh buffer.
type Window struct {
	Samples      []uint16
	CaptureEndUS uint32
	Min, Max     uint16
	Above, Below int
	Amplitude    float64
}

// computeStats fills in Min/Max/Above/Below/Amplitude from Samples.
func computeStats(w *Window) {
	if len(w.Samples) == 0 {
		return
	}
	w.Min, w.Max = w.Samples[0], w.Samples[0]
	w.Above, w.Below = 0, 0
	for _, s := range w.Samples {
		if s < w.Min {
			w.Min = s
		}
		if s > w.Max {
			w.Max = s
		}
		if s > ZeroPoint {
			w.Above++
		} else if s < ZeroPoint {
			w.Below++
		}
	}
	var aboveSpan, belowSpan float64
	if w.Max > ZeroPoint {
		aboveSpan = float64(w.Max - ZeroPoint)
	}
	if w.Min < ZeroPoint {
		belowSpan = float64(ZeroPoint - w.Min)
	}
	amp := aboveSpan
	if belowSpan > amp {
		amp = belowSpan
	}
	if ZeroPoint != 0 {
		w.Amplitude = amp / float64(ZeroPoint)
	}
}

// channelState holds one source's staged (producer-written) buffer, ready
// flag, and last-fetched (consumer-cached) window.
type channelState struct {
	mu sync.Mutex

	ready   atomic.Bool // buf_adc_ready: set by the DMA-completion IRQ, read+cleared by the consumer
	doneUS  atomic.Uint32
	staged  []uint16
	history ringo.CircleTime

	cached Window
}

// Capture is the analog capture subsystem. Its zero value is not usable;
// construct with New.
type Capture struct {
	channels [numSources]*channelState
}

// New returns a Capture ready to accept PushSamples and serve FetchWindow.
func New() *Capture {
	c := &Capture{}
	for i := range c.channels {
		cs := &channelState{}
		cs.history.Init(8)
		c.channels[i] = cs
	}
	return c
}

// PushSamples stages a freshly captured window for source and marks it
// ready, as the DMA-completion IRQ would (spec.md §4.7/§5: "writes only
// buf_adc_ready ... and buf_adc_done_us"). In this simulated board, a
// goroutine or test calls this directly in place of real DMA hardware.
func (c *Capture) PushSamples(src Source, samples []uint16, captureEndUS uint32) {
	if int(src) >= numSources {
		return
	}
	cs := c.channels[src]
	cs.mu.Lock()
	cs.staged = append(cs.staged[:0], samples...)
	cs.mu.Unlock()
	cs.doneUS.Store(captureEndUS)
	cs.ready.Store(true)
}

// FetchWindow returns the current window for src. On a fresh buffer it
// deinterleaves (trivial here, since PushSamples already delivers a
// per-channel slice) and computes stats; otherwise it returns the
// previously computed window unchanged, per spec.md §4.7.
func (c *Capture) FetchWindow(src Source) Window {
	if int(src) >= numSources {
		return Window{}
	}
	cs := c.channels[src]
	if cs.ready.CompareAndSwap(true, false) {
		cs.mu.Lock()
		w := Window{
			Samples:      append([]uint16(nil), cs.staged...),
			CaptureEndUS: cs.doneUS.Load(),
		}
		cs.mu.Unlock()
		computeStats(&w)
		cs.cached = w
		cs.history.Append(timeFromUS(w.CaptureEndUS))
	}
	return cs.cached
}

// RecentWindows returns the recent capture_end_us history for src, oldest
// first, for diagnostics.
func (c *Capture) RecentWindows(src Source) []uint32 {
	if int(src) >= numSources {
		return nil
	}
	times := c.channels[src].history.Contiguous()
	out := make([]uint32, 0, len(times))
	for _, t := range times {
		out = append(out, usFromTime(t))
	}
	return out
}
