package platform

import (
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// ErrBusTimeout is returned when an I2C transfer does not complete within
// its hard timeout, per spec.md §5 ("every I2C operation has a hard
// timeout"). Subsystems never retry across a calibration step or a pulse
// emission on this error; they log and move on (spec.md §7).
var ErrBusTimeout = errors.New("platform: i2c bus timeout")

// I2CBus is a fixed-timeout I2C transfer interface. The DAC and digipot
// drivers build a command buffer and call WriteTimeout; nothing above this
// layer blocks for more than the timeout passed in.
type I2CBus interface {
	WriteTimeout(addr byte, data []byte, timeout time.Duration) error
	ReadTimeout(addr byte, n int, timeout time.Duration) ([]byte, error)
}

// SimI2CBus is an in-memory I2C bus for the simulated board and for tests.
// It can be made to fail or stall transfers to exercise timeout handling.
type SimI2CBus struct {
	mu sync.Mutex

	// Fail, when true, makes every transfer return ErrBusTimeout.
	Fail bool

	// Latency is stored but not applied: WriteTimeout and ReadTimeout
	// resolve without delay whatever its value.
	Latency time.Duration

	writes map[byte][]byte
	reads  map[byte][]byte
}

// NewSimI2CBus returns an empty simulated bus.
func NewSimI2CBus() *SimI2CBus {
	return &SimI2CBus{writes: map[byte][]byte{}, reads: map[byte][]byte{}}
}

// WriteTimeout performs one logical write, retried internally (bounded by a
// constant backoff capped at timeout) the way comm.go's SendRecv does for
// transient bus contention. It never retries more than once the caller's
// logical operation — a calibration sweep step or a pulse/power write each
// call this exactly once.
func (b *SimI2CBus) WriteTimeout(addr byte, data []byte, timeout time.Duration) error {
	op := func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.Fail {
			return ErrBusTimeout
		}
		buf := make([]byte, len(data))
		copy(buf, data)
		b.writes[addr] = buf
		return nil
	}
	return retryBounded(op, timeout)
}

// ReadTimeout performs one logical read of n bytes from addr.
func (b *SimI2CBus) ReadTimeout(addr byte, n int, timeout time.Duration) ([]byte, error) {
	var out []byte
	op := func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.Fail {
			return ErrBusTimeout
		}
		src := b.reads[addr]
		out = make([]byte, n)
		copy(out, src)
		return nil
	}
	err := retryBounded(op, timeout)
	return out, err
}

// SetReadResponse programs the bytes a subsequent ReadTimeout(addr, ...)
// returns, used by driver tests.
func (b *SimI2CBus) SetReadResponse(addr byte, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads[addr] = data
}

// LastWrite returns the most recent bytes written to addr, used by driver
// tests to assert on the exact command buffer built by dac/digipot.
func (b *SimI2CBus) LastWrite(addr byte) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes[addr]
}

func retryBounded(op backoff.Operation, timeout time.Duration) error {
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(timeout/4), 3)
	bo.Reset()
	start := time.Now()
	for {
		err := op()
		if err == nil {
			return nil
		}
		if time.Since(start) >= timeout {
			return ErrBusTimeout
		}
		next := bo.NextBackOff()
		if next == backoff.Stop {
			return ErrBusTimeout
		}
		time.Sleep(next)
	}
}
