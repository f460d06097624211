// Package dac builds and issues write commands for the 4-channel 12-bit DAC
// that sets each output channel's bus voltage (spec.md §2 item 2,
// §6 hardware bindings).
package dac

import (
	"time"

	"github.com/saawsm/swx-go/internal/platform"
)

// Channel identifies one of the DAC's four sub-channels.
type Channel uint8

const (
	Ch0 Channel = iota
	Ch1
	Ch2
	Ch3
	numChannels = 4
)

// Max is the largest representable 12-bit DAC code.
const Max uint16 = 0x0FFF

// WriteTimeout bounds a single DAC command transfer, matching the "hard
// timeout" discipline spec.md §5 demands of every I2C operation.
const WriteTimeout = 10 * time.Millisecond

// DefaultAddr is the DAC's I2C bus address on the reference board, used
// when New is given addr 0.
const DefaultAddr byte = 0x60

// DAC drives the 4-channel DAC over an I2C bus.
type DAC struct {
	Bus  platform.I2CBus
	Addr byte
}

// New returns a DAC driver bound to bus at addr (machine.BoardConfig.DACAddr
// on a real build). addr 0 selects DefaultAddr.
func New(bus platform.I2CBus, addr byte) *DAC {
	if addr == 0 {
		addr = DefaultAddr
	}
	return &DAC{Bus: bus, Addr: addr}
}

// cmdWriteMultiIR is the MCP4728 sequential multi-write command for the DAC
// input registers (mcp4728.h's MCP4728_CMD_WRITE_MULTI_IR).
const cmdWriteMultiIR = 0x40

// buildCommand packs a single-channel write into the device's 3-byte wire
// format: [C2 C1 C0 W1 W2 DAC1 DAC0 ~UDAC, VREF PD1 PD0 Gx D11..D8, D7..D0].
// Vref, gain, power-down mode, and UDAC are always the device defaults (VDD
// reference, 1x gain, normal power, latch-on-write), matching every call
// site in original_source/.../output.c. Grounded on
// original_source/.../hardware/mcp4728.h's mcp4728_build_write_cmd.
func buildCommand(ch Channel, value uint16) [3]byte {
	if value > Max {
		value = Max
	}
	cmd := byte(cmdWriteMultiIR) | ((byte(ch) & 0x03) << 1)
	return [3]byte{cmd, byte(value >> 8), byte(value)}
}

// Write sets ch to value (clamped to [0, Max]). Returns platform.ErrBusTimeout
// on a bus failure, per spec.md §4.2's "reject if outside [0, DAC_MAX]" and
// §7's bus-failure recovery policy (log, return failure, resume).
func (d *DAC) Write(ch Channel, value uint16) error {
	if ch >= numChannels {
		return nil
	}
	cmd := buildCommand(ch, value)
	return d.Bus.WriteTimeout(d.Addr, cmd[:], WriteTimeout)
}
