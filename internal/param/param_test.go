package param_test

import (
	"testing"

	"github.com/saawsm/swx-go/internal/param"
	"github.com/saawsm/swx-go/internal/swx"
)

func TestSetClampsValueToMinMax(t *testing.T) {
	m := param.NewMatrix()
	m.Set(swx.Ch0, param.Frequency, param.Min, 100)
	m.Set(swx.Ch0, param.Frequency, param.Max, 2000)

	m.Set(swx.Ch0, param.Frequency, param.Value, 50)
	if got := m.Get(swx.Ch0, param.Frequency, param.Value); got != 100 {
		t.Fatalf("expected clamp to MIN=100, got %d", got)
	}

	m.Set(swx.Ch0, param.Frequency, param.Value, 5000)
	if got := m.Get(swx.Ch0, param.Frequency, param.Value); got != 2000 {
		t.Fatalf("expected clamp to MAX=2000, got %d", got)
	}
}

func TestSetClampsPulseWidthTo500(t *testing.T) {
	m := param.NewMatrix()
	m.Set(swx.Ch0, param.PulseWidth, param.Max, 10000)
	m.Set(swx.Ch0, param.PulseWidth, param.Value, 900)
	if got := m.Get(swx.Ch0, param.PulseWidth, param.Value); got != 500 {
		t.Fatalf("expected hard clamp to 500us, got %d", got)
	}
}

func TestUpdateDisabledModeZeroesCadence(t *testing.T) {
	m := param.NewMatrix()
	m.Update(swx.Ch0, param.Power)
	cs := m.Cycling(swx.Ch0, param.Power)
	if cs.Step != 0 || cs.UpdatePeriodUS != 0 {
		t.Fatalf("expected inert cadence for disabled mode, got %+v", cs)
	}
}

func TestUpdateZeroRateZeroesCadence(t *testing.T) {
	m := param.NewMatrix()
	m.Set(swx.Ch0, param.Power, param.Mode, uint16(param.UpDown))
	m.Set(swx.Ch0, param.Power, param.Rate, 0)
	m.Update(swx.Ch0, param.Power)
	cs := m.Cycling(swx.Ch0, param.Power)
	if cs.Step != 0 {
		t.Fatalf("expected zero rate to disable cycling, got %+v", cs)
	}
}

func TestUpdateComputesPositivePeriod(t *testing.T) {
	m := param.NewMatrix()
	m.Set(swx.Ch0, param.Power, param.Min, 0)
	m.Set(swx.Ch0, param.Power, param.Max, 1000)
	m.Set(swx.Ch0, param.Power, param.Rate, 100) // 100 mHz -> 10s period
	m.Set(swx.Ch0, param.Power, param.Mode, uint16(param.UpDown))
	m.Update(swx.Ch0, param.Power)

	cs := m.Cycling(swx.Ch0, param.Power)
	if cs.Step <= 0 {
		t.Fatalf("expected positive (ascending) step for UP_DOWN's first direction, got %+v", cs)
	}
	if cs.UpdatePeriodUS == 0 {
		t.Fatalf("expected a nonzero update period, got %+v", cs)
	}
}

func TestUpdateDownStartsNegative(t *testing.T) {
	m := param.NewMatrix()
	m.Set(swx.Ch0, param.Power, param.Min, 0)
	m.Set(swx.Ch0, param.Power, param.Max, 1000)
	m.Set(swx.Ch0, param.Power, param.Rate, 100)
	m.Set(swx.Ch0, param.Power, param.Mode, uint16(param.Down))
	m.Update(swx.Ch0, param.Power)

	cs := m.Cycling(swx.Ch0, param.Power)
	if cs.Step >= 0 {
		t.Fatalf("expected negative step for DOWN mode, got %+v", cs)
	}
}

func TestStepNoopBeforePeriodElapses(t *testing.T) {
	m := param.NewMatrix()
	m.Set(swx.Ch0, param.Power, param.Min, 0)
	m.Set(swx.Ch0, param.Power, param.Max, 1000)
	m.Set(swx.Ch0, param.Power, param.Rate, 1)
	m.Set(swx.Ch0, param.Power, param.Mode, uint16(param.UpDown))
	m.Update(swx.Ch0, param.Power)

	before := m.Get(swx.Ch0, param.Power, param.Value)
	_, _, fired := m.Step(swx.Ch0, param.Power, 0)
	if fired {
		t.Fatalf("expected no action fired on a no-op step")
	}
	if got := m.Get(swx.Ch0, param.Power, param.Value); got != before {
		t.Fatalf("value should be unchanged before period elapses: got %d want %d", got, before)
	}
}

func TestStepUpDownBouncesBetweenBounds(t *testing.T) {
	m := param.NewMatrix()
	m.Set(swx.Ch0, param.Power, param.Min, 0)
	m.Set(swx.Ch0, param.Power, param.Max, 5)
	m.Set(swx.Ch0, param.Power, param.Value, 0)
	m.Set(swx.Ch0, param.Power, param.Rate, 65535) // fast cadence -> step=1 each tick
	m.Set(swx.Ch0, param.Power, param.Mode, uint16(param.UpDown))
	m.Update(swx.Ch0, param.Power)

	cs := m.Cycling(swx.Ch0, param.Power)
	period := cs.UpdatePeriodUS

	now := uint32(0)
	sawMax, sawMin := false, false
	for i := 0; i < 40; i++ {
		now += period
		m.Step(swx.Ch0, param.Power, now)
		v := m.Get(swx.Ch0, param.Power, param.Value)
		if v == 5 {
			sawMax = true
		}
		if v == 0 {
			sawMin = true
		}
		if v < 0 || v > 5 {
			t.Fatalf("value escaped [MIN,MAX]: %d", v)
		}
	}
	if !sawMax || !sawMin {
		t.Fatalf("expected UP_DOWN to bounce between 0 and 5, sawMax=%v sawMin=%v", sawMax, sawMin)
	}
}

func TestStepUpDisablesAtMax(t *testing.T) {
	m := param.NewMatrix()
	m.Set(swx.Ch0, param.Power, param.Min, 0)
	m.Set(swx.Ch0, param.Power, param.Max, 2)
	m.Set(swx.Ch0, param.Power, param.Value, 0)
	m.Set(swx.Ch0, param.Power, param.Rate, 65535)
	m.Set(swx.Ch0, param.Power, param.Mode, uint16(param.Up))
	m.Update(swx.Ch0, param.Power)

	cs := m.Cycling(swx.Ch0, param.Power)
	now := uint32(0)
	for i := 0; i < 10; i++ {
		now += cs.UpdatePeriodUS
		m.Step(swx.Ch0, param.Power, now)
	}
	if got := m.Get(swx.Ch0, param.Power, param.Value); got != 2 {
		t.Fatalf("expected value pinned at MAX=2, got %d", got)
	}
	mode := m.Get(swx.Ch0, param.Power, param.Mode)
	if param.SubModeOf(mode) != param.Disabled {
		t.Fatalf("expected UP mode to self-disable at MAX, mode=%v", mode)
	}
}

func TestStepFiresActionRangeOnEndReached(t *testing.T) {
	m := param.NewMatrix()
	m.Set(swx.Ch0, param.Power, param.Min, 0)
	m.Set(swx.Ch0, param.Power, param.Max, 1)
	m.Set(swx.Ch0, param.Power, param.Value, 0)
	m.Set(swx.Ch0, param.Power, param.Rate, 65535)
	m.Set(swx.Ch0, param.Power, param.Mode, uint16(param.UpReset))
	m.Set(swx.Ch0, param.Power, param.ActionRange, param.PackActionRange(3, 7))
	m.Update(swx.Ch0, param.Power)

	cs := m.Cycling(swx.Ch0, param.Power)
	start, end, fired := m.Step(swx.Ch0, param.Power, cs.UpdatePeriodUS)
	if !fired {
		t.Fatalf("expected end-reached step to fire its action range")
	}
	if start != 3 || end != 7 {
		t.Fatalf("unexpected action range: got [%d,%d)", start, end)
	}
}

func TestPackUnpackActionRangeRoundTrip(t *testing.T) {
	v := param.PackActionRange(12, 200)
	s, e := param.UnpackActionRange(v)
	if s != 12 || e != 200 {
		t.Fatalf("round trip failed: got [%d,%d)", s, e)
	}
}
