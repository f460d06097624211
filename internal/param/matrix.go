// Package param implements the per-channel x per-parameter x per-target
// value matrix and its cycling/stepping sub-state (spec.md §3 Parameter
// matrix / Parameter cycling state, §4.3).
package param

import "github.com/saawsm/swx-go/internal/swx"

// Param names one of the seven waveform parameters.
type Param uint8

const (
	Power Param = iota
	Frequency
	PulseWidth
	OnTime
	OnRampTime
	OffTime
	OffRampTime
	paramCount
)

// Count is the number of distinct Param values, for callers (e.g.
// script.Engine's PARAM_UPDATE-all dispatch) that need to iterate every
// parameter of a channel.
const Count = int(paramCount)

// All is the sentinel Param value meaning "every parameter", used by the
// PARAM_UPDATE action and the CH_PARAM_UPDATE host command (spec.md §6:
// "param=0xff = all").
const All Param = 0xFF

// Target names one of the six per-parameter value slots.
type Target uint8

const (
	Value Target = iota
	Min
	Max
	Rate
	Mode
	ActionRange
	targetCount
)

// Mode bit layout (spec.md §3): two flag bits plus a 3-bit sub-mode.
const (
	ModeHidden   uint16 = 1 << 15
	ModeReadonly uint16 = 1 << 14
	modeFlagMask uint16 = ModeHidden | ModeReadonly
	modeSubMask  uint16 = 0x0007
)

// SubMode is the cycling behavior selected by the low bits of MODE.
type SubMode uint16

const (
	Disabled SubMode = iota
	UpDown
	DownUp
	UpReset
	DownReset
	Up
	Down
)

// SubModeOf extracts the sub-mode from a raw MODE value.
func SubModeOf(mode uint16) SubMode { return SubMode(mode & modeSubMask) }

// WithSubMode returns mode with its sub-mode bits replaced, flags preserved.
func WithSubMode(mode uint16, sm SubMode) uint16 {
	return (mode &^ modeSubMask) | (uint16(sm) & modeSubMask)
}

// PackActionRange packs [start,end) into the wire format spec.md §3
// describes: "[start:8 | end:8]".
func PackActionRange(start, end uint8) uint16 {
	return uint16(start)<<8 | uint16(end)
}

// UnpackActionRange decodes a value produced by PackActionRange.
func UnpackActionRange(v uint16) (start, end uint8) {
	return uint8(v >> 8), uint8(v)
}

// CyclingState is the per (channel, parameter) cadence derived by Update
// (spec.md §3/§4.3).
type CyclingState struct {
	Step           int16
	UpdatePeriodUS uint32
	LastUpdateUS   uint32
}

// Matrix holds every channel's parameter values and cycling state. The zero
// value is usable but has no sensible defaults; use NewMatrix.
type Matrix struct {
	values  [swx.ChannelCount][paramCount][targetCount]uint16
	cycling [swx.ChannelCount][paramCount]CyclingState
}

// defaultValue is spec.md §3's Lifecycle default for (param, target).
// Timings default MIN=1 (see SPEC_FULL.md SUPPLEMENT: a 1ms floor keeps the
// generator's state cursor from spinning at an effectively-zero period).
func defaultValue(p Param, t Target) uint16 {
	switch p {
	case Power:
		switch t {
		case Value, Max:
			return 65535
		case Min:
			return 0
		}
	case Frequency:
		switch t {
		case Value, Max:
			return 1800 // 180 Hz in decihertz
		case Min:
			return 0
		}
	case PulseWidth:
		switch t {
		case Value, Max:
			return 150
		case Min:
			return 0
		}
	case OnTime, OffTime, OnRampTime, OffRampTime:
		switch t {
		case Value:
			return 1000
		case Max:
			return 10000
		case Min:
			return 1
		}
	}
	switch t {
	case Mode:
		return uint16(Disabled)
	default:
		return 0
	}
}

// NewMatrix returns a matrix initialized to spec.md §3's documented
// defaults for every channel.
func NewMatrix() *Matrix {
	m := &Matrix{}
	for ch := swx.Channel(0); ch < swx.ChannelCount; ch++ {
		for p := Param(0); p < paramCount; p++ {
			for t := Target(0); t < targetCount; t++ {
				m.values[ch][p][t] = defaultValue(p, t)
			}
		}
	}
	return m
}

// Get returns the raw 16-bit value at (ch, p, t).
func (m *Matrix) Get(ch swx.Channel, p Param, t Target) uint16 {
	return m.values[ch][p][t]
}

// Set writes value at (ch, p, t). Writes to Value are clamped to the
// parameter's current [MIN, MAX] per spec.md §3's invariant; writes to MIN
// or MAX do not retroactively clamp VALUE (the next Step or Set to VALUE
// will).
func (m *Matrix) Set(ch swx.Channel, p Param, t Target, value uint16) {
	if p == PulseWidth && t == Value {
		value = swx.ClampU16(value, 0, 500)
	}
	if t == Value {
		min := m.values[ch][p][Min]
		max := m.values[ch][p][Max]
		value = clampToRange(value, min, max)
	}
	m.values[ch][p][t] = value
}

// clampToRange clamps v into [min, max], tolerating a caller that has set
// min > max by treating the pair as [max, min] in that case so VALUE always
// ends up bounded by both.
func clampToRange(v, min, max uint16) uint16 {
	lo, hi := min, max
	if lo > hi {
		lo, hi = hi, lo
	}
	return swx.ClampU16(v, lo, hi)
}

// Cycling returns a copy of the cycling state for (ch, p).
func (m *Matrix) Cycling(ch swx.Channel, p Param) CyclingState {
	return m.cycling[ch][p]
}
