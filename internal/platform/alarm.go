package platform

import (
	"sync"
	"time"
)

// AlarmScheduler runs one-shot delayed callbacks, used by action
// ENABLE/DISABLE/TOGGLE-with-value (spec.md §4.5) to reverse a mask mutation
// after a delay. Callbacks run on their own goroutine (the moral equivalent
// of interrupt context per spec.md §5) and must be idempotent; duplicate
// firing from a requeue is safe by construction since the Flag
// OR/AND-NOT/XOR operations this feeds are themselves idempotent.
//
// spec.md §9 notes that implementations without a one-shot timer facility
// should fall back to a min-heap scanned in the control loop; Go's
// time.AfterFunc is a native one-shot timer facility, so that fallback is
// not needed here.
type AlarmScheduler struct {
	mu      sync.Mutex
	pending map[uint64]*time.Timer
	nextID  uint64
}

// NewAlarmScheduler returns an empty scheduler.
func NewAlarmScheduler() *AlarmScheduler {
	return &AlarmScheduler{pending: map[uint64]*time.Timer{}}
}

// Schedule arranges for fn to run once after d elapses, and returns an id
// that can be passed to Cancel. fn must not block.
func (s *AlarmScheduler) Schedule(d time.Duration, fn func()) uint64 {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	t := time.AfterFunc(d, func() {
		fn()
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	})

	s.mu.Lock()
	s.pending[id] = t
	s.mu.Unlock()
	return id
}

// Cancel stops a pending alarm if it has not yet fired. It is safe to call
// with an id that has already fired or been cancelled.
func (s *AlarmScheduler) Cancel(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[id]; ok {
		t.Stop()
		delete(s.pending, id)
	}
}

// Pending returns the number of alarms not yet fired, used by tests.
func (s *AlarmScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
