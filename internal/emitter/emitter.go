// Package emitter implements the pulse emitter: a per-channel state machine
// that, given a word encoding a positive-half and negative-half width in
// microseconds, toggles two gate pins to emit one bipolar pulse with
// deadtime (spec.md §4.1). This is the one place gate exclusivity is
// enforced; the scheduler must never be able to raise both gates itself.
package emitter

import (
	"sync"
	"time"

	"github.com/saawsm/swx-go/internal/platform"
)

// PWBits is the number of bits used to encode each half-width, giving a
// maximum representable half-width of (1<<PWBits)-1 microseconds.
const PWBits = 10

// MaxHalfWidth is the largest representable half-width in microseconds.
const MaxHalfWidth = (1 << PWBits) - 1

// MinDeadtime is the minimum gap, with both gates low, between the positive
// and negative halves of a pulse (spec.md §4.1).
const MinDeadtime = 1 * time.Microsecond

// Word is a pulse command: a positive-half and negative-half width in
// microseconds. The scheduler is responsible for clamping both halves to
// MaxHalfWidth before submitting; emit clamps again defensively since gate
// exclusivity is a safety property that must hold regardless of caller
// discipline.
type Word struct {
	PosUS uint16
	NegUS uint16
}

// Pack encodes w into the 32-bit wire layout [pos_us:PWBits | neg_us:PWBits]
// spec.md §4.1 describes.
func Pack(w Word) uint32 {
	pos := uint32(w.PosUS) & MaxHalfWidth
	neg := uint32(w.NegUS) & MaxHalfWidth
	return (pos << PWBits) | neg
}

// Unpack decodes a 32-bit word produced by Pack.
func Unpack(v uint32) Word {
	return Word{
		PosUS: uint16((v >> PWBits) & MaxHalfWidth),
		NegUS: uint16(v & MaxHalfWidth),
	}
}

// FIFODepth is the minimum queue depth spec.md §4.1 requires.
const FIFODepth = 8

// Emitter drives one channel's gate pair from its own FIFO. Start launches
// the background goroutine that simulates the hardware PIO program; Submit
// enqueues work for it. No retries: Submit returns false on a full FIFO
// and the caller (output.Scheduler) is responsible for logging the drop.
type Emitter struct {
	GateA, GateB platform.GPIO
	Sleep        func(time.Duration) // overridable for fast tests

	fifo   *platform.Queue[Word]
	signal chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New returns an Emitter for the given gate pins with the default FIFO
// depth.
func New(gateA, gateB platform.GPIO) *Emitter {
	e := &Emitter{
		GateA:  gateA,
		GateB:  gateB,
		Sleep:  time.Sleep,
		fifo:   platform.NewQueue[Word](FIFODepth),
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	gateA.SetDirection(platform.DirOutput)
	gateB.SetDirection(platform.DirOutput)
	gateA.SetLevel(platform.Low)
	gateB.SetLevel(platform.Low)
	return e
}

// Start launches the background drain goroutine. Calling Start twice is a
// no-op.
func (e *Emitter) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.wg.Add(1)
	go e.run()
}

// Stop halts the background goroutine and returns both gates to quiescent
// low, mirroring scram's "return gate pins to quiescent low" requirement
// when applied to a single channel.
func (e *Emitter) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stop)
	e.wg.Wait()
	e.GateA.SetLevel(platform.Low)
	e.GateB.SetLevel(platform.Low)
}

// Submit enqueues w for emission. It returns false if the FIFO is full; the
// caller must drop the pulse and log a warning rather than retry or block,
// per spec.md §4.1.
func (e *Emitter) Submit(w Word) bool {
	ok := e.fifo.TryPush(w)
	if ok {
		select {
		case e.signal <- struct{}{}:
		default:
		}
	}
	return ok
}

// QueueLen reports the number of pulses currently queued, used by the
// scheduler's "all queues empty" idle check and by tests.
func (e *Emitter) QueueLen() int { return e.fifo.Len() }

func (e *Emitter) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case <-e.signal:
			for {
				w, ok := e.fifo.TryPop()
				if !ok {
					break
				}
				e.emit(w)
			}
		}
	}
}

// emit drives one bipolar pulse. Gate exclusivity (never both high) is
// enforced structurally here: GateB is never set high until after GateA has
// been explicitly lowered and the deadtime has elapsed, and vice versa.
func (e *Emitter) emit(w Word) {
	pos := w.PosUS
	if pos > MaxHalfWidth {
		pos = MaxHalfWidth
	}
	neg := w.NegUS
	if neg > MaxHalfWidth {
		neg = MaxHalfWidth
	}

	e.GateB.SetLevel(platform.Low)
	if pos > 0 {
		e.GateA.SetLevel(platform.High)
		e.Sleep(time.Duration(pos) * time.Microsecond)
	}
	e.GateA.SetLevel(platform.Low)

	e.Sleep(MinDeadtime)

	if neg > 0 {
		e.GateB.SetLevel(platform.High)
		e.Sleep(time.Duration(neg) * time.Microsecond)
	}
	e.GateB.SetLevel(platform.Low)
}
