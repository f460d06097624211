// Package digipot builds and issues write commands for the 4-channel
// digital potentiometer that sets preamp gain and per-analog-channel input
// gain (spec.md §2 item 3).
package digipot

import (
	"time"

	"github.com/saawsm/swx-go/internal/platform"
)

// GainChannel names one of the digipot's four wiper channels. Modeled as an
// explicit enum rather than a bare index per original_source's
// hardware/mcp443x.h, which names these same four channels (see
// SPEC_FULL.md SUPPLEMENT).
type GainChannel uint8

const (
	Preamp GainChannel = iota
	Mic
	Left
	Right
	numChannels = 4
)

// Max is the largest representable wiper position for this part.
const Max uint8 = 0xFF

// DefaultAddr is the digipot's I2C bus address on the reference board, used
// when New is given addr 0.
const DefaultAddr byte = 0x2C

// WriteTimeout bounds a single digipot command transfer.
const WriteTimeout = 10 * time.Millisecond

// Digipot drives the 4-channel digital potentiometer over an I2C bus.
type Digipot struct {
	Bus  platform.I2CBus
	Addr byte
}

// New returns a Digipot driver bound to bus at addr
// (machine.BoardConfig.DigipotAddr on a real build). addr 0 selects
// DefaultAddr.
func New(bus platform.I2CBus, addr byte) *Digipot {
	if addr == 0 {
		addr = DefaultAddr
	}
	return &Digipot{Bus: bus, Addr: addr}
}

// buildCommand packs a single-channel wiper write into the device's 2-byte
// wire format: [command-and-channel, wiper-value].
func buildCommand(ch GainChannel, value uint8) [2]byte {
	cmd := byte(0x00) | ((byte(ch) & 0x03) << 4)
	return [2]byte{cmd, value}
}

// SetGain sets ch's wiper to value. Returns platform.ErrBusTimeout on a bus
// failure (spec.md §7: hardware-digipot bit in swx_err).
func (p *Digipot) SetGain(ch GainChannel, value uint8) error {
	if ch >= numChannels {
		return nil
	}
	cmd := buildCommand(ch, value)
	return p.Bus.WriteTimeout(p.Addr, cmd[:], WriteTimeout)
}
