package script

import "github.com/saawsm/swx-go/internal/capture"

// TriggerOp names the boolean reduction applied across the four input
// bits t1..t4 (spec.md §4.5). The three letters name the operator between
// t1/t2, t2/t3, and t3/t4 respectively, 'O' for OR and 'A' for AND — e.g.
// OOA is t1||t2||(t3&&t4).
type TriggerOp uint8

const (
	OpOOO TriggerOp = iota
	OpOOA
	OpOAO
	OpOAA
	OpAOO
	OpAOA
	OpAAO
	OpAAA
)

// evalOp folds t right to left: acc starts at t[3], then each step either
// ORs or ANDs the next input in, per op's bit at that position.
func evalOp(op TriggerOp, t [4]bool) bool {
	acc := t[3]
	if op&1 != 0 {
		acc = t[2] && acc
	} else {
		acc = t[2] || acc
	}
	if op&2 != 0 {
		acc = t[1] && acc
	} else {
		acc = t[1] || acc
	}
	if op&4 != 0 {
		acc = t[0] && acc
	} else {
		acc = t[0] || acc
	}
	return acc
}

// AudioChannel names the four analog sources a trigger can watch, with 0
// meaning "no audio condition" (spec.md §3: "input_audio ... 0 disables").
type AudioChannel uint8

const (
	AudioNone AudioChannel = iota
	AudioMic
	AudioLeft
	AudioRight
)

// CaptureSource converts ac to the capture package's source enum. ok is
// false for AudioNone.
func (ac AudioChannel) CaptureSource() (capture.Source, bool) {
	switch ac {
	case AudioMic:
		return capture.Mic, true
	case AudioLeft:
		return capture.Left, true
	case AudioRight:
		return capture.Right, true
	default:
		return 0, false
	}
}

// Trigger is one watch/fire rule (spec.md §3 Trigger slot).
type Trigger struct {
	Enabled         bool
	InputMask       uint8 // 4 meaningful bits
	InputInvertMask uint8 // 4 meaningful bits
	Op              TriggerOp
	OutputInvert    bool
	InputAudio      AudioChannel
	Threshold       float32
	ThresholdInvert bool
	RequireBoth     bool
	Repeating       bool
	MinPeriodUS     uint32
	ActionStart     uint8
	ActionEnd       uint8

	lastExecUS uint32
	prevTrue   bool
}

// MaxTriggers is the number of addressable trigger slots (spec.md §3: "up
// to 64").
const MaxTriggers = 64

// LastState reports whether index's combined predicate was true the last
// time Engine.Tick evaluated it, for the host REQUEST_TRIGGER_STATE command
// (spec.md §6).
func (e *Engine) LastState(index uint8) bool {
	if int(index) >= len(e.Triggers) {
		return false
	}
	return e.Triggers[index].prevTrue
}

// evaluateLine applies the input-mask/invert/op/output-invert chain to the
// raw hardware input bits (spec.md §4.5).
func (t *Trigger) evaluateLine(trigInputs uint8) bool {
	s := (trigInputs & t.InputMask) ^ t.InputInvertMask
	var bits [4]bool
	for i := 0; i < 4; i++ {
		bits[i] = (s>>uint(i))&1 == 1
	}
	result := evalOp(t.Op, bits)
	return result != t.OutputInvert
}

// evaluateAudio returns the audio condition, or false with ok=false when
// InputAudio is AudioNone.
func (t *Trigger) evaluateAudio(cap *capture.Capture) (peaked bool, ok bool) {
	src, has := t.InputAudio.CaptureSource()
	if !has {
		return false, false
	}
	amplitude := cap.FetchWindow(src).Amplitude
	peaked = (float64(t.Threshold) > amplitude) != t.ThresholdInvert
	return peaked, true
}

// evaluate combines the line and audio conditions per spec.md §4.5's
// "enabled && (input_mask && op) || input_audio" gate: the line condition
// is always evaluated (InputMask == 0 degrades it to a constant via the
// op fold), and the audio term only participates when InputAudio != 0.
func (t *Trigger) evaluate(trigInputs uint8, cap *capture.Capture) bool {
	line := t.evaluateLine(trigInputs)
	audio, hasAudio := t.evaluateAudio(cap)
	if !hasAudio {
		return line
	}
	if t.RequireBoth {
		return line && audio
	}
	return line || audio
}

// Tick evaluates every enabled trigger once per call and fires execute for
// those whose edge/period conditions are met. It applies no 10ms cadence of
// its own: machine.Tick calls it on every control-loop pass.
func (e *Engine) Tick(now uint32, trigInputs uint8, cap *capture.Capture) {
	for i := range e.Triggers {
		t := &e.Triggers[i]
		if !t.Enabled {
			continue
		}
		cur := t.evaluate(trigInputs, cap)

		fire := false
		if t.Repeating {
			fire = cur
		} else {
			fire = cur && !t.prevTrue
		}
		t.prevTrue = cur

		if fire && now-t.lastExecUS >= t.MinPeriodUS {
			t.lastExecUS = now
			e.ExecuteRange(t.ActionStart, t.ActionEnd)
		}
	}
}
