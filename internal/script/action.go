// Package script implements the action/trigger/sequencer scripting layer:
// a table of parameterized actions callable by index range, a table of
// triggers that watch hardware input lines and/or audio amplitude and fire
// action ranges, and a sequencer that cycles a per-tick channel-enable
// mask (spec.md §4.5).
package script

import (
	"time"

	"github.com/saawsm/swx-go/internal/param"
	"github.com/saawsm/swx-go/internal/platform"
	"github.com/saawsm/swx-go/internal/swx"
)

func millisToDuration(ms uint16) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ActionType tags one action's behavior (spec.md §3 Action slot).
type ActionType uint8

const (
	ActionNone ActionType = iota
	ActionSet
	ActionIncrement
	ActionDecrement
	ActionEnable
	ActionDisable
	ActionToggle
	ActionExecute
	ActionParamUpdate
)

// Action is one scripted operation (spec.md §3).
type Action struct {
	Enabled bool
	Type    ActionType
	ChMask  uint8
	Param   param.Param
	Target  param.Target
	Value   uint16
}

// MaxActions is the number of addressable action slots (spec.md §3: "up to
// 255").
const MaxActions = 255

// maxExecuteDepth bounds EXECUTE recursion: spec.md §4.5 caps depth at 2,
// i.e. three levels total (the initial call plus two nested EXECUTEs).
const maxExecuteDepth = 2

// Engine holds the action table, the enable mask, and the alarm scheduler
// used for delayed ENABLE/DISABLE/TOGGLE reversal, plus a reference to the
// parameter matrix PARAM_UPDATE recomputes.
type Engine struct {
	Actions  [MaxActions]Action
	Triggers [MaxTriggers]Trigger
	Matrix   *param.Matrix
	EnMask   *platform.Flag
	Alarms   *platform.AlarmScheduler

	// OnDepthExceeded, if set, is called when an EXECUTE action's recursion
	// would exceed maxExecuteDepth, so the caller can log the drop; the
	// action is always ignored regardless.
	OnDepthExceeded func(start, end uint8)
}

// NewEngine returns an Engine wired to m/enMask/alarms. All action slots
// start disabled.
func NewEngine(m *param.Matrix, enMask *platform.Flag, alarms *platform.AlarmScheduler) *Engine {
	return &Engine{Matrix: m, EnMask: enMask, Alarms: alarms}
}

// ExecuteRange runs execute_action_list(start, end) (spec.md §4.5).
func (e *Engine) ExecuteRange(start, end uint8) {
	e.executeRange(start, end, 0)
}

// RunOne runs a single action slot directly (host RUN_ACTION, spec.md §6),
// sidestepping ExecuteRange's exclusive-end uint8 range, which cannot
// address index 255 alone.
func (e *Engine) RunOne(index uint8) {
	a := e.Actions[index]
	if !a.Enabled {
		return
	}
	e.dispatch(a, 0)
}

func (e *Engine) executeRange(start, end uint8, depth int) {
	for i := int(start); i < int(end) && i < MaxActions; i++ {
		a := e.Actions[i]
		if !a.Enabled {
			continue
		}
		e.dispatch(a, depth)
	}
}

func (e *Engine) dispatch(a Action, depth int) {
	switch a.Type {
	case ActionSet, ActionIncrement, ActionDecrement:
		e.applyValueAction(a)
	case ActionEnable:
		e.applyMaskAction(a, e.EnMask.Or, e.EnMask.AndNot)
	case ActionDisable:
		e.applyMaskAction(a, e.EnMask.AndNot, e.EnMask.Or)
	case ActionToggle:
		e.applyMaskAction(a, e.EnMask.Xor, e.EnMask.Xor)
	case ActionExecute:
		if depth >= maxExecuteDepth {
			if e.OnDepthExceeded != nil {
				s, end := uint8(a.Value>>8), uint8(a.Value)
				e.OnDepthExceeded(s, end)
			}
			return
		}
		s, end := uint8(a.Value>>8), uint8(a.Value)
		e.executeRange(s, end, depth+1)
	case ActionParamUpdate:
		for ch := swx.Channel(0); ch < swx.ChannelCount; ch++ {
			if a.ChMask&swx.ChannelMask(ch) != 0 {
				if a.Param == param.All {
					for p := 0; p < param.Count; p++ {
						e.Matrix.Update(ch, param.Param(p))
					}
				} else {
					e.Matrix.Update(ch, a.Param)
				}
			}
		}
	}
}

// applyValueAction implements SET/INCREMENT/DECREMENT (spec.md §4.5): the
// new value is a literal for SET or current+/-delta for INC/DEC; writes to
// VALUE go through Matrix.Set so the MIN/MAX clamp applies uniformly.
func (e *Engine) applyValueAction(a Action) {
	for ch := swx.Channel(0); ch < swx.ChannelCount; ch++ {
		if a.ChMask&swx.ChannelMask(ch) == 0 {
			continue
		}
		var newValue uint16
		switch a.Type {
		case ActionSet:
			newValue = a.Value
		case ActionIncrement:
			newValue = e.Matrix.Get(ch, a.Param, a.Target) + a.Value
		case ActionDecrement:
			newValue = e.Matrix.Get(ch, a.Param, a.Target) - a.Value
		}
		e.Matrix.Set(ch, a.Param, a.Target, newValue)
	}
}

// applyMaskAction mutates EnMask immediately with immediate, and schedules
// a one-shot alarm performing inverse after Value milliseconds if
// Value > 0 (spec.md §4.5).
func (e *Engine) applyMaskAction(a Action, immediate, inverse func(byte) byte) {
	immediate(a.ChMask)
	if a.Value > 0 {
		ms := a.Value
		e.Alarms.Schedule(millisToDuration(ms), func() {
			inverse(a.ChMask)
		})
	}
}
