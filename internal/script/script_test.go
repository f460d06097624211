package script_test

import (
	"testing"

	"github.com/saawsm/swx-go/internal/capture"
	"github.com/saawsm/swx-go/internal/param"
	"github.com/saawsm/swx-go/internal/platform"
	"github.com/saawsm/swx-go/internal/script"
	"github.com/saawsm/swx-go/internal/swx"
)

func newEngine() *script.Engine {
	return script.NewEngine(param.NewMatrix(), &platform.Flag{}, platform.NewAlarmScheduler())
}

func TestExecuteRangeSetClampsToMinMax(t *testing.T) {
	e := newEngine()
	e.Matrix.Set(swx.Ch0, param.Power, param.Min, 10)
	e.Matrix.Set(swx.Ch0, param.Power, param.Max, 100)
	e.Actions[0] = script.Action{Enabled: true, Type: script.ActionSet, ChMask: swx.ChannelMask(swx.Ch0), Param: param.Power, Target: param.Value, Value: 5000}

	e.ExecuteRange(0, 1)
	if got := e.Matrix.Get(swx.Ch0, param.Power, param.Value); got != 100 {
		t.Fatalf("expected clamp to MAX=100, got %d", got)
	}
}

func TestExecuteRangeIncrementAccumulates(t *testing.T) {
	e := newEngine()
	e.Matrix.Set(swx.Ch0, param.Power, param.Min, 0)
	e.Matrix.Set(swx.Ch0, param.Power, param.Max, 1000)
	e.Matrix.Set(swx.Ch0, param.Power, param.Value, 5)
	e.Actions[0] = script.Action{Enabled: true, Type: script.ActionIncrement, ChMask: swx.ChannelMask(swx.Ch0), Param: param.Power, Target: param.Value, Value: 3}

	e.ExecuteRange(0, 1)
	if got := e.Matrix.Get(swx.Ch0, param.Power, param.Value); got != 8 {
		t.Fatalf("expected 5+3=8, got %d", got)
	}
}

func TestExecuteRangeEnableMutatesMaskImmediately(t *testing.T) {
	e := newEngine()
	e.Actions[0] = script.Action{Enabled: true, Type: script.ActionEnable, ChMask: swx.ChannelMask(swx.Ch1)}

	e.ExecuteRange(0, 1)
	if !e.EnMask.Has(swx.ChannelMask(swx.Ch1)) {
		t.Fatalf("expected channel 1 enabled immediately")
	}
}

func TestExecuteRangeEnableSchedulesInverseAlarm(t *testing.T) {
	e := newEngine()
	e.Actions[0] = script.Action{Enabled: true, Type: script.ActionEnable, ChMask: swx.ChannelMask(swx.Ch2), Value: 5}

	e.ExecuteRange(0, 1)
	if !e.EnMask.Has(swx.ChannelMask(swx.Ch2)) {
		t.Fatalf("expected channel 2 enabled immediately")
	}
	if e.Alarms.Pending() != 1 {
		t.Fatalf("expected one pending alarm for the delayed reversal, got %d", e.Alarms.Pending())
	}
}

func TestExecuteRangeToggleXors(t *testing.T) {
	e := newEngine()
	e.EnMask.Store(uint8(swx.ChannelMask(swx.Ch0)))
	e.Actions[0] = script.Action{Enabled: true, Type: script.ActionToggle, ChMask: swx.ChannelMask(swx.Ch0)}
	e.ExecuteRange(0, 1)
	if e.EnMask.Has(swx.ChannelMask(swx.Ch0)) {
		t.Fatalf("expected toggle to clear an already-set bit")
	}
}

func TestExecuteRangeRecursesWithinDepthCap(t *testing.T) {
	e := newEngine()
	// action 0: EXECUTE -> [1,2)
	e.Actions[0] = script.Action{Enabled: true, Type: script.ActionExecute, Value: param.PackActionRange(1, 2)}
	// action 1: EXECUTE -> [2,3)
	e.Actions[1] = script.Action{Enabled: true, Type: script.ActionExecute, Value: param.PackActionRange(2, 3)}
	// action 2: a real SET at max depth
	e.Matrix.Set(swx.Ch0, param.Power, param.Max, 100)
	e.Actions[2] = script.Action{Enabled: true, Type: script.ActionSet, ChMask: swx.ChannelMask(swx.Ch0), Param: param.Power, Target: param.Value, Value: 42}

	e.ExecuteRange(0, 1)
	if got := e.Matrix.Get(swx.Ch0, param.Power, param.Value); got != 42 {
		t.Fatalf("expected the depth-2 SET to run, got %d", got)
	}
}

func TestExecuteRangeDropsBeyondDepthCap(t *testing.T) {
	e := newEngine()
	e.Actions[0] = script.Action{Enabled: true, Type: script.ActionExecute, Value: param.PackActionRange(1, 2)}
	e.Actions[1] = script.Action{Enabled: true, Type: script.ActionExecute, Value: param.PackActionRange(2, 3)}
	e.Actions[2] = script.Action{Enabled: true, Type: script.ActionExecute, Value: param.PackActionRange(3, 4)}
	e.Matrix.Set(swx.Ch0, param.Power, param.Max, 100)
	e.Actions[3] = script.Action{Enabled: true, Type: script.ActionSet, ChMask: swx.ChannelMask(swx.Ch0), Param: param.Power, Target: param.Value, Value: 42}

	var dropped bool
	e.OnDepthExceeded = func(start, end uint8) { dropped = true }

	e.ExecuteRange(0, 1)
	if !dropped {
		t.Fatalf("expected the fourth-level EXECUTE to be dropped and reported")
	}
	if got := e.Matrix.Get(swx.Ch0, param.Power, param.Value); got == 42 {
		t.Fatalf("expected the depth-3 SET to never run")
	}
}

func TestTriggerOOAMatchesWorkedExample(t *testing.T) {
	cases := []struct {
		t1, t2, t3, t4 bool
		want           bool
	}{
		{true, false, false, false, true},
		{false, true, false, false, true},
		{false, false, true, true, true},
		{false, false, true, false, false},
		{false, false, false, false, false},
	}
	for _, c := range cases {
		got := scriptEvalOpForTest(script.OpOOA, [4]bool{c.t1, c.t2, c.t3, c.t4})
		if got != c.want {
			t.Fatalf("OOA(%v,%v,%v,%v) = %v, want %v", c.t1, c.t2, c.t3, c.t4, got, c.want)
		}
	}
}

func TestTriggerAAARequiresAllFour(t *testing.T) {
	all := scriptEvalOpForTest(script.OpAAA, [4]bool{true, true, true, true})
	if !all {
		t.Fatalf("expected AAA(1,1,1,1) = true")
	}
	notAll := scriptEvalOpForTest(script.OpAAA, [4]bool{true, true, true, false})
	if notAll {
		t.Fatalf("expected AAA(1,1,1,0) = false")
	}
}

func TestTriggerFiresOnRisingEdgeOnly(t *testing.T) {
	e := newEngine()
	cap := capture.New()
	e.Matrix.Set(swx.Ch0, param.Power, param.Max, 100)
	e.Actions[0] = script.Action{Enabled: true, Type: script.ActionSet, ChMask: swx.ChannelMask(swx.Ch0), Param: param.Power, Target: param.Value, Value: 7}
	e.Triggers[0] = script.Trigger{
		Enabled:     true,
		InputMask:   0x01,
		Op:          script.OpOOO,
		ActionStart: 0,
		ActionEnd:   1,
	}

	e.Tick(0, 0x01, cap)
	if got := e.Matrix.Get(swx.Ch0, param.Power, param.Value); got != 7 {
		t.Fatalf("expected trigger to fire on rising edge, got %d", got)
	}

	e.Matrix.Set(swx.Ch0, param.Power, param.Value, 0)
	e.Tick(10, 0x01, cap) // still true, not repeating: must not re-fire
	if got := e.Matrix.Get(swx.Ch0, param.Power, param.Value); got != 0 {
		t.Fatalf("expected non-repeating trigger to not re-fire while held true, got %d", got)
	}
}

func TestSequencerInertWhenPeriodOrCountZero(t *testing.T) {
	var s script.Sequencer
	if s.EffectiveMask(0x0F) != 0x0F {
		t.Fatalf("expected inert sequencer to pass enMask through unchanged")
	}
}

func TestSequencerAdvancesOnPeriod(t *testing.T) {
	s := script.Sequencer{Count: 3, PeriodUS: 100}
	s.Masks[0] = 0x1
	s.Masks[1] = 0x2
	s.Masks[2] = 0x4

	if s.CurrentMask() != 0x1 {
		t.Fatalf("expected to start at index 0")
	}
	s.Tick(150)
	if s.CurrentMask() != 0x2 {
		t.Fatalf("expected index to advance to 1, got mask %#x", s.CurrentMask())
	}
}

// scriptEvalOpForTest exercises a trigger op's boolean reduction through the
// public Trigger/Engine API: a repeating trigger over the four raw input
// bits fires an ENABLE action iff evalOp(op, bits) is true.
func scriptEvalOpForTest(op script.TriggerOp, bits [4]bool) bool {
	mask := uint8(0)
	for i, b := range bits {
		if b {
			mask |= 1 << uint(i)
		}
	}
	cap := capture.New()
	e := script.NewEngine(param.NewMatrix(), &platform.Flag{}, platform.NewAlarmScheduler())
	e.Actions[0] = script.Action{Enabled: true, Type: script.ActionEnable, ChMask: swx.ChannelMask(swx.Ch0)}
	e.Triggers[0] = script.Trigger{Enabled: true, InputMask: 0x0F, Op: op, Repeating: true, ActionStart: 0, ActionEnd: 1}
	e.Tick(0, mask, cap)
	return e.EnMask.Has(swx.ChannelMask(swx.Ch0))
}
