package platform_test

import (
	"sync"
	"testing"
	"time"

	"github.com/saawsm/swx-go/internal/platform"
)

func TestQueueFIFOOrderAndDrop(t *testing.T) {
	q := platform.NewQueue[int](3)
	for i := 0; i < 3; i++ {
		if !q.TryPush(i) {
			t.Fatalf("push %d should have succeeded", i)
		}
	}
	if q.TryPush(99) {
		t.Fatalf("push into full queue should fail")
	}
	for i := 0; i < 3; i++ {
		v, ok := q.TryPop()
		if !ok || v != i {
			t.Fatalf("pop %d: got (%v, %v)", i, v, ok)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Fatalf("pop from empty queue should fail")
	}
}

func TestQueuePeekDoesNotRemove(t *testing.T) {
	q := platform.NewQueue[string](2)
	q.TryPush("a")
	v, ok := q.Peek()
	if !ok || v != "a" {
		t.Fatalf("peek: got (%v, %v)", v, ok)
	}
	v2, ok2 := q.Peek()
	if !ok2 || v2 != "a" {
		t.Fatalf("second peek should see same element")
	}
	if q.Len() != 1 {
		t.Fatalf("peek must not remove, len=%d", q.Len())
	}
}

func TestFlagOrAndNotXor(t *testing.T) {
	var f platform.Flag
	f.Or(0b0101)
	if f.Load() != 0b0101 {
		t.Fatalf("Or: got %b", f.Load())
	}
	f.AndNot(0b0001)
	if f.Load() != 0b0100 {
		t.Fatalf("AndNot: got %b", f.Load())
	}
	f.Xor(0b0110)
	if f.Load() != 0b0010 {
		t.Fatalf("Xor: got %b", f.Load())
	}
	if !f.Has(0b0010) || f.Has(0b0100) {
		t.Fatalf("Has: got %b", f.Load())
	}
}

func TestGetSetBit(t *testing.T) {
	var b byte
	b = platform.SetBit(b, 7, true)
	if b != 0b10000000 {
		t.Fatalf("SetBit MSB: got %08b", b)
	}
	if !platform.GetBit(b, 7) {
		t.Fatalf("GetBit MSB should be true")
	}
	b = platform.SetBit(0xff, 0, false)
	if b != 0b11111110 {
		t.Fatalf("SetBit clear LSB: got %08b", b)
	}
}

func TestAlarmSchedulerFiresOnce(t *testing.T) {
	s := platform.NewAlarmScheduler()
	var mu sync.Mutex
	count := 0
	s.Schedule(10*time.Millisecond, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one firing, got %d", count)
	}
}

func TestAlarmSchedulerCancel(t *testing.T) {
	s := platform.NewAlarmScheduler()
	fired := false
	id := s.Schedule(20*time.Millisecond, func() { fired = true })
	s.Cancel(id)
	time.Sleep(40 * time.Millisecond)
	if fired {
		t.Fatalf("cancelled alarm must not fire")
	}
}

func TestSimI2CBusTimeout(t *testing.T) {
	bus := platform.NewSimI2CBus()
	bus.Fail = true
	err := bus.WriteTimeout(0x60, []byte{1, 2, 3}, 5*time.Millisecond)
	if err != platform.ErrBusTimeout {
		t.Fatalf("expected ErrBusTimeout, got %v", err)
	}
}

func TestSimI2CBusWriteRoundTrip(t *testing.T) {
	bus := platform.NewSimI2CBus()
	err := bus.WriteTimeout(0x60, []byte{0xAA, 0xBB}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := bus.LastWrite(0x60)
	if len(got) != 2 || got[0] != 0xAA || got[1] != 0xBB {
		t.Fatalf("unexpected write: %v", got)
	}
}

func TestSimGPIOPullDown(t *testing.T) {
	g := platform.NewSimGPIO()
	g.SetDirection(platform.DirInput)
	g.SetPullDown(true)
	g.Drive(platform.High)
	if g.Level() != platform.Low {
		t.Fatalf("pulled-down input should read low even if driven high")
	}
	g.SetPullDown(false)
	if g.Level() != platform.High {
		t.Fatalf("expected driven level to surface once pull released")
	}
}
