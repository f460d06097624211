package param

import "github.com/saawsm/swx-go/internal/swx"

const maxCadenceSteps = 100

// Update recomputes the cycling cadence for (ch, p) from its current
// MIN/MAX/RATE/MODE, per spec.md §4.3's cadence-derivation algorithm. It
// must be called whenever MIN, MAX, RATE, or MODE changes (the PARAM_UPDATE
// action and the CH_PARAM_UPDATE host command do this explicitly).
func (m *Matrix) Update(ch swx.Channel, p Param) {
	cs := &m.cycling[ch][p]

	mode := m.values[ch][p][Mode]
	sub := SubModeOf(mode)
	rate := m.values[ch][p][Rate]
	if sub == Disabled || rate == 0 {
		cs.Step = 0
		cs.UpdatePeriodUS = 0
		return
	}

	min := m.values[ch][p][Min]
	max := m.values[ch][p][Max]
	span := int64(max) - int64(min)
	if span < 0 {
		span = -span
	}

	step := int64(1)
	newPeriod := uint32(0)
	disabled := false
	for {
		if step >= maxCadenceSteps {
			disabled = true
			break
		}
		delta := span / step
		if delta == 0 {
			disabled = true
			break
		}
		period := int64(1_000_000_000) / int64(rate)
		if period >= delta {
			newPeriod = uint32(period / delta)
			break
		}
		step++
	}
	if disabled {
		cs.Step = 0
		cs.UpdatePeriodUS = 0
		return
	}

	sign := int64(1)
	switch sub {
	case Down, DownReset:
		sign = -1
	case UpDown:
		if cs.Step < 0 {
			sign = -1
		}
	case DownUp:
		if cs.Step <= 0 {
			sign = -1
		}
	}
	cs.Step = int16(sign * step)
	cs.UpdatePeriodUS = newPeriod
}

// Step advances (ch, p)'s VALUE by one increment if the cadence period has
// elapsed at time now (microseconds). It returns the ACTION_RANGE to
// execute when the step reaches an end and ACTION_RANGE is non-empty;
// fired is false otherwise, including when the step was a no-op because
// the period hasn't elapsed or cycling is disabled.
func (m *Matrix) Step(ch swx.Channel, p Param, now uint32) (start, end uint8, fired bool) {
	cs := &m.cycling[ch][p]
	if cs.Step == 0 {
		return 0, 0, false
	}
	if now-cs.LastUpdateUS < cs.UpdatePeriodUS {
		return 0, 0, false
	}
	cs.LastUpdateUS = now

	min := m.values[ch][p][Min]
	max := m.values[ch][p][Max]
	previous := m.values[ch][p][Value]
	value := uint16(int32(previous) + int32(cs.Step))

	hitMin := value <= min || (cs.Step < 0 && value > previous)
	hitMax := value >= max || (cs.Step > 0 && value < previous)
	endReached := hitMin || hitMax

	if endReached {
		sub := SubModeOf(m.values[ch][p][Mode])
		switch sub {
		case UpDown, DownUp:
			if hitMin {
				value = min
			} else {
				value = max
			}
			cs.Step = -cs.Step
		case UpReset:
			value = min
		case DownReset:
			value = max
		case Up:
			value = max
			m.values[ch][p][Mode] = WithSubMode(m.values[ch][p][Mode], Disabled)
			cs.Step = 0
		case Down:
			value = min
			m.values[ch][p][Mode] = WithSubMode(m.values[ch][p][Mode], Disabled)
			cs.Step = 0
		}
	}

	m.values[ch][p][Value] = value

	if !endReached {
		return 0, 0, false
	}
	ar := m.values[ch][p][ActionRange]
	s, e := UnpackActionRange(ar)
	if s == e {
		return 0, 0, false
	}
	return s, e, true
}
