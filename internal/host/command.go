// Package host defines the decoded command surface a connected controller
// uses to read and update board state (spec.md §6 "EXTERNAL INTERFACES")
// and a dispatcher that routes a decoded command to the board. Byte framing,
// checksums, and the serial/USB link itself are the excluded transport
// layer (spec.md §1 Non-goals: "Protocol transport"); this package only
// ever sees and produces already-decoded Go values.
package host

import (
	"github.com/saawsm/swx-go/internal/param"
	"github.com/saawsm/swx-go/internal/script"
	"github.com/saawsm/swx-go/internal/swx"
)

// CommandID identifies one request/update message (spec.md §6).
type CommandID byte

const (
	CmdVersionRequest CommandID = 2
	CmdVersion        CommandID = 3

	CmdErrRequest CommandID = 4
	CmdErr        CommandID = 5

	CmdShutdown       CommandID = 9
	CmdResetToUSBBoot CommandID = 10

	CmdMicPipEnRequest CommandID = 11
	CmdUpdateMicPipEn  CommandID = 12

	CmdMicGainRequest CommandID = 13
	CmdUpdateMicGain  CommandID = 14

	CmdMaxPowerRequest CommandID = 20
	CmdUpdateMaxPower  CommandID = 21

	CmdRequireZeroRequest CommandID = 22
	CmdUpdateRequireZero  CommandID = 23

	CmdChAudioRequest CommandID = 24
	CmdUpdateChAudio  CommandID = 25

	CmdGainRequest CommandID = 26
	CmdUpdateGain  CommandID = 27

	CmdChEnMaskRequest CommandID = 28
	CmdUpdateChEnMask  CommandID = 29

	CmdChParamRequest CommandID = 30
	CmdUpdateChParam  CommandID = 31
	CmdChParamUpdate  CommandID = 32

	CmdChStatusRequest CommandID = 33
	CmdChStatus        CommandID = 34

	CmdSeqRequest CommandID = 35
	CmdUpdateSeq  CommandID = 36

	CmdSeqCountRequest CommandID = 37
	CmdUpdateSeqCount  CommandID = 38

	CmdSeqReset CommandID = 39

	CmdSeqPeriodRequest CommandID = 40
	CmdUpdateSeqPeriod  CommandID = 41

	CmdActionRequest CommandID = 42
	CmdUpdateAction  CommandID = 43
	CmdRunActionList CommandID = 44

	CmdTriggerRequest      CommandID = 50
	CmdUpdateTrigger       CommandID = 51
	CmdTriggerStateRequest CommandID = 52
	CmdTriggerState        CommandID = 53
)

// ErrFlags is the bitfield answered by ERR (spec.md §6), grounded on the
// teacher's aerotech.Status manual bit-unpack style.
type ErrFlags uint16

const (
	ErrHWPot    ErrFlags = 1
	ErrHWDAC    ErrFlags = 2
	ErrHWOutput ErrFlags = 4
	ErrCal      ErrFlags = 32
)

// Has reports whether every bit in mask is set.
func (e ErrFlags) Has(mask ErrFlags) bool { return e&mask == mask }

// Set returns e with every bit in mask set.
func (e ErrFlags) Set(mask ErrFlags) ErrFlags { return e | mask }

// Clear returns e with every bit in mask cleared.
func (e ErrFlags) Clear(mask ErrFlags) ErrFlags { return e &^ mask }

func (e ErrFlags) String() string {
	if e == 0 {
		return "OK"
	}
	var s string
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if e.Has(ErrHWPot) {
		add("HW_POT")
	}
	if e.Has(ErrHWDAC) {
		add("HW_DAC")
	}
	if e.Has(ErrHWOutput) {
		add("HW_OUTPUT")
	}
	if e.Has(ErrCal) {
		add("CAL")
	}
	return s
}

// VersionInfo answers VERSION_REQUEST with a protocol number, a firmware
// number and a human-readable Build string, injected by cmd/swxd the way
// the teacher's cmd/multiserver injects its own Version variable. It has
// no separate PCB-revision or major/minor firmware fields.
type VersionInfo struct {
	Protocol uint16
	Firmware uint16
	Build    string
}

// Request/reply value types, one per command in spec.md §6. These are the
// decoded payloads a transport layer (outside this package's scope) is
// responsible for producing from and encoding back to wire bytes.

type ChannelArg struct{ Channel swx.Channel }

type BoolValue struct{ Value bool }
type ByteValue struct{ Value uint8 }
type U16Value struct{ Value uint16 }
type U32Value struct{ Value uint32 }
type F64Value struct{ Value float64 }

type UpdateMaxPower struct {
	Channel swx.Channel
	Value   float64
}

type ChAudioReply struct {
	GenPulses bool
	GenPower  bool
	Source    uint8
}

type UpdateChAudio struct {
	Channel   swx.Channel
	GenPulses bool
	GenPower  bool
	Source    uint8
}

type GainArg struct{ Channel uint8 }

type UpdateGain struct {
	Channel uint8
	Value   uint8
}

type ChParamArg struct {
	Channel swx.Channel
	Param   param.Param
	Target  param.Target
}

type UpdateChParam struct {
	Channel swx.Channel
	Param   param.Param
	Target  param.Target
	Value   uint16
}

type ChParamUpdateArg struct {
	Channel swx.Channel
	Param   param.Param // param.All updates every parameter
}

type IndexArg struct{ Index uint8 }

type UpdateSeq struct {
	Index uint8
	Mask  uint8
}

type UpdateAction struct {
	Index  uint8
	Action script.Action
}

type RunActionListArg struct{ Start, End uint8 }

type UpdateTrigger struct {
	Index   uint8
	Trigger script.Trigger
}
