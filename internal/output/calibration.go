package output

import (
	"time"

	"github.com/saawsm/swx-go/internal/emitter"
	"github.com/saawsm/swx-go/internal/platform"
	"github.com/saawsm/swx-go/internal/swx"
)

// Sleep is overridable in tests to avoid real delays during calibration.
var Sleep = time.Sleep

// railSettleDelay is the pause between switching the drive rail and
// touching it again, letting the bus voltage settle before calibration
// samples it and before it is dropped at the end of the sweep.
const railSettleDelay = 2 * time.Millisecond

// Calibrate runs the one-time per-channel calibration sweep (spec.md
// §4.2). It must be called once after Init. It forces the drive rail on for
// the sweep and disables it again before returning.
func (s *Scheduler) Calibrate() {
	s.enableRail()
	Sleep(railSettleDelay)
	for i := range s.channels {
		s.calibrateChannel(swx.Channel(i))
	}
	Sleep(railSettleDelay)
	s.disableRail()
}

func (s *Scheduler) calibrateChannel(ch swx.Channel) {
	cr := s.channels[ch]
	if cr.status != swx.Invalid {
		return
	}

	if s.Sense != nil && s.Sense.ReadVoltage(ch) > s.preCalMaxVoltage {
		cr.status = swx.Fault
		return
	}

	foundOK := false
	leg := 0
	for code := CalSweepStart; code >= CalSweepEnd; code -= CalSweepStep {
		if s.DAC != nil {
			_ = s.DAC.Write(cr.dacCh, uint16(code))
		}
		Sleep(dacWriteSettleUS)

		raiseLeg(cr, leg)
		Sleep(gateSettleUS)
		leg = 1 - leg

		var sense float64
		if s.Sense != nil {
			sense = s.Sense.ReadVoltage(ch)
		}
		lowerGates(cr)

		if sense > s.calThresholdOver {
			cr.status = swx.Fault
			return
		}
		if sense > s.calThresholdOK {
			cr.calValue = uint16(code)
			cr.status = swx.Ready
			foundOK = true
			break
		}
	}

	if !foundOK {
		cr.status = swx.Fault
		return
	}

	cr.emitter = emitter.New(cr.gateA, cr.gateB)
	cr.emitter.Start()
}

func raiseLeg(cr *channelRuntime, leg int) {
	if leg == 0 {
		if cr.gateA != nil {
			cr.gateA.SetLevel(platform.High)
		}
	} else {
		if cr.gateB != nil {
			cr.gateB.SetLevel(platform.High)
		}
	}
}

func lowerGates(cr *channelRuntime) {
	if cr.gateA != nil {
		cr.gateA.SetLevel(platform.Low)
	}
	if cr.gateB != nil {
		cr.gateB.SetLevel(platform.Low)
	}
}
