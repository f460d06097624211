// Package platform provides the microsecond timebase, GPIO/I2C abstractions,
// bounded queues, atomic flags, and one-shot alarms that every other package
// in this module is built on.
package platform

import (
	"sync"
	"time"
)

var (
	epochOnce sync.Once
	epoch     time.Time
)

// Microseconds returns a monotonic microsecond counter, analogous to the
// free-running hardware timer the firmware's C original reads directly.
// The epoch is established on first call so elapsed-time arithmetic (the
// "now - last_*_us" comparisons throughout this module) stays well clear of
// uint32 wraparound during a normal process lifetime.
func Microseconds() uint32 {
	epochOnce.Do(func() { epoch = time.Now() })
	return uint32(time.Since(epoch).Microseconds())
}

// Elapsed returns now-then accounting for a single uint32 wrap, matching the
// firmware's unsigned subtraction idiom used throughout spec.md.
func Elapsed(now, then uint32) uint32 {
	return now - then
}
