package emitter_test

import (
	"sync"
	"testing"
	"time"

	"github.com/saawsm/swx-go/internal/emitter"
	"github.com/saawsm/swx-go/internal/platform"
)

// recordingGPIO logs every SetLevel call so tests can assert on gate
// exclusivity and ordering without depending on wall-clock timing.
type recordingGPIO struct {
	name string
	mu   *sync.Mutex
	log  *[]string
}

func (g *recordingGPIO) SetDirection(platform.Direction) {}
func (g *recordingGPIO) SetLevel(l platform.Level) {
	g.mu.Lock()
	defer g.mu.Unlock()
	lv := "lo"
	if l == platform.High {
		lv = "hi"
	}
	*g.log = append(*g.log, g.name+":"+lv)
}
func (g *recordingGPIO) Level() platform.Level { return platform.Low }

func newPair() (platform.GPIO, platform.GPIO, func() []string) {
	var mu sync.Mutex
	var log []string
	a := &recordingGPIO{name: "A", mu: &mu, log: &log}
	b := &recordingGPIO{name: "B", mu: &mu, log: &log}
	snapshot := func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := make([]string, len(log))
		copy(out, log)
		return out
	}
	return a, b, snapshot
}

func waitEmpty(t *testing.T, e *emitter.Emitter) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if e.QueueLen() == 0 {
			time.Sleep(5 * time.Millisecond) // let the final emit() return
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("emitter never drained its queue")
}

func TestEmitProducesExpectedGateSequence(t *testing.T) {
	a, b, snapshot := newPair()
	e := emitter.New(a, b)
	var sleeps []time.Duration
	var mu sync.Mutex
	e.Sleep = func(d time.Duration) {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
	}
	e.Start()
	defer e.Stop()

	if !e.Submit(emitter.Word{PosUS: 150, NegUS: 120}) {
		t.Fatalf("submit should have succeeded")
	}
	waitEmpty(t, e)

	log := snapshot()
	// New drives both gates low first; the pulse sequence follows.
	want := []string{"A:lo", "B:lo", "B:lo", "A:hi", "A:lo", "B:hi", "B:lo"}
	if len(log) != len(want) {
		t.Fatalf("unexpected gate log: %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("gate log[%d]: got %s, want %s (full log: %v)", i, log[i], want[i], log)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sleeps) != 3 {
		t.Fatalf("expected 3 sleeps (pos, deadtime, neg), got %d", len(sleeps))
	}
	if sleeps[0] != 150*time.Microsecond {
		t.Fatalf("expected pos sleep of 150us, got %v", sleeps[0])
	}
	if sleeps[1] < emitter.MinDeadtime {
		t.Fatalf("deadtime sleep %v below minimum %v", sleeps[1], emitter.MinDeadtime)
	}
	if sleeps[2] != 120*time.Microsecond {
		t.Fatalf("expected neg sleep of 120us, got %v", sleeps[2])
	}
}

func TestEmitNeverRaisesBothGates(t *testing.T) {
	a, b, snapshot := newPair()
	e := emitter.New(a, b)
	e.Sleep = func(time.Duration) {}
	e.Start()
	defer e.Stop()

	for i := 0; i < 20; i++ {
		e.Submit(emitter.Word{PosUS: uint16(i + 1), NegUS: uint16(20 - i)})
	}
	waitEmpty(t, e)

	log := snapshot()
	aHigh, bHigh := false, false
	for _, ev := range log {
		switch ev {
		case "A:hi":
			aHigh = true
		case "A:lo":
			aHigh = false
		case "B:hi":
			bHigh = true
		case "B:lo":
			bHigh = false
		}
		if aHigh && bHigh {
			t.Fatalf("both gates high simultaneously at event trace %v", log)
		}
	}
}

func TestSubmitDropsOnFullFIFO(t *testing.T) {
	a, b, _ := newPair()
	e := emitter.New(a, b)
	e.Sleep = func(time.Duration) { time.Sleep(10 * time.Millisecond) }
	// Don't Start(): nothing drains the queue, so it fills up.
	ok := true
	for i := 0; i < emitter.FIFODepth; i++ {
		if !e.Submit(emitter.Word{PosUS: 1, NegUS: 1}) {
			ok = false
		}
	}
	if !ok {
		t.Fatalf("expected to fill FIFODepth=%d entries", emitter.FIFODepth)
	}
	if e.Submit(emitter.Word{PosUS: 1, NegUS: 1}) {
		t.Fatalf("expected submit beyond FIFODepth to fail")
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	w := emitter.Word{PosUS: 500, NegUS: 333}
	got := emitter.Unpack(emitter.Pack(w))
	if got != w {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, w)
	}
}

func TestPackClampsToHalfWidth(t *testing.T) {
	w := emitter.Word{PosUS: 5000, NegUS: 5000}
	got := emitter.Unpack(emitter.Pack(w))
	if got.PosUS != emitter.MaxHalfWidth || got.NegUS != emitter.MaxHalfWidth {
		t.Fatalf("expected clamp to %d, got %+v", emitter.MaxHalfWidth, got)
	}
}
