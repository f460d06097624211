package host

import (
	"fmt"

	"github.com/saawsm/swx-go/internal/param"
	"github.com/saawsm/swx-go/internal/script"
	"github.com/saawsm/swx-go/internal/swx"
)

// Handler is everything machine.Machine must expose for the command table
// to read and mutate board state. Declared locally so host does not import
// machine, mirroring generator.Scheduler's small-local-interface shape.
type Handler interface {
	Version() VersionInfo
	Err() ErrFlags

	Shutdown()
	ResetToUSBBoot()

	MicPipEnabled() bool
	SetMicPipEnabled(bool)

	MicGain() uint8
	SetMicGain(uint8)

	MaxPower(ch swx.Channel) float64
	SetMaxPower(ch swx.Channel, v float64)

	RequireZeroMask() uint8
	SetRequireZeroMask(mask uint8)

	ChAudio(ch swx.Channel) (genPulses, genPower bool, src uint8)
	SetChAudio(ch swx.Channel, genPulses, genPower bool, src uint8)

	Gain(channel uint8) uint8
	SetGain(channel uint8, value uint8)

	ChEnMask() uint8
	SetChEnMask(mask uint8)

	ChParam(ch swx.Channel, p param.Param, t param.Target) uint16
	SetChParam(ch swx.Channel, p param.Param, t param.Target, value uint16)
	UpdateChParam(ch swx.Channel, p param.Param) // p == param.All means every param

	ChStatus(ch swx.Channel) swx.Status

	SeqMask(index uint8) uint8
	SetSeqMask(index uint8, mask uint8)
	SeqCount() uint8
	SetSeqCount(uint8)
	ResetSeq()
	SeqPeriodUS() uint32
	SetSeqPeriodUS(uint32)

	Action(index uint8) script.Action
	SetAction(index uint8, a script.Action)
	RunAction(index uint8)
	RunActionList(start, end uint8)

	Trigger(index uint8) script.Trigger
	SetTrigger(index uint8, t script.Trigger)
	TriggerState(index uint8) bool
}

// HandlerFunc answers one command against h given its decoded request
// value (one of the types in command.go, or nil for commands that take no
// argument), returning the decoded reply value.
type HandlerFunc func(h Handler, req any) (any, error)

// CommandTable maps a CommandID to the function that answers it — the
// decoded-value analogue of generichttp.RouteTable's pattern-to-handler
// map, keyed by command id instead of an HTTP route.
type CommandTable map[CommandID]HandlerFunc

// Dispatch looks up id in the table and runs its handler against h with
// req.
func (rt CommandTable) Dispatch(h Handler, id CommandID, req any) (any, error) {
	fn, ok := rt[id]
	if !ok {
		return nil, fmt.Errorf("host: no handler for command %d", id)
	}
	return fn(h, req)
}

func requireZeroBit(h Handler, ch swx.Channel) {
	h.SetRequireZeroMask(h.RequireZeroMask() | swx.ChannelMask(ch))
}

// NewCommandTable builds the full command table for spec.md §6.
func NewCommandTable() CommandTable {
	rt := CommandTable{}

	rt[CmdVersionRequest] = func(h Handler, _ any) (any, error) {
		return h.Version(), nil
	}

	rt[CmdErrRequest] = func(h Handler, _ any) (any, error) {
		return h.Err(), nil
	}

	rt[CmdShutdown] = func(h Handler, _ any) (any, error) {
		h.Shutdown()
		return nil, nil
	}
	rt[CmdResetToUSBBoot] = func(h Handler, _ any) (any, error) {
		h.ResetToUSBBoot()
		return nil, nil
	}

	rt[CmdMicPipEnRequest] = func(h Handler, _ any) (any, error) {
		return BoolValue{Value: h.MicPipEnabled()}, nil
	}
	rt[CmdUpdateMicPipEn] = func(h Handler, req any) (any, error) {
		v, ok := req.(BoolValue)
		if !ok {
			return nil, fmt.Errorf("host: UPDATE_MIC_PIP_EN wants BoolValue")
		}
		h.SetMicPipEnabled(v.Value)
		return nil, nil
	}

	rt[CmdMicGainRequest] = func(h Handler, _ any) (any, error) {
		return ByteValue{Value: h.MicGain()}, nil
	}
	rt[CmdUpdateMicGain] = func(h Handler, req any) (any, error) {
		v, ok := req.(ByteValue)
		if !ok {
			return nil, fmt.Errorf("host: UPDATE_MIC_GAIN wants ByteValue")
		}
		h.SetMicGain(v.Value)
		return nil, nil
	}

	rt[CmdMaxPowerRequest] = func(h Handler, req any) (any, error) {
		a, ok := req.(ChannelArg)
		if !ok {
			return nil, fmt.Errorf("host: MAX_POWER_REQUEST wants ChannelArg")
		}
		return F64Value{Value: h.MaxPower(a.Channel)}, nil
	}
	rt[CmdUpdateMaxPower] = func(h Handler, req any) (any, error) {
		u, ok := req.(UpdateMaxPower)
		if !ok {
			return nil, fmt.Errorf("host: UPDATE_MAX_POWER wants UpdateMaxPower")
		}
		before := h.MaxPower(u.Channel)
		h.SetMaxPower(u.Channel, u.Value)
		if h.MaxPower(u.Channel) != before {
			requireZeroBit(h, u.Channel)
		}
		return nil, nil
	}

	rt[CmdRequireZeroRequest] = func(h Handler, _ any) (any, error) {
		return ByteValue{Value: h.RequireZeroMask()}, nil
	}
	rt[CmdUpdateRequireZero] = func(h Handler, req any) (any, error) {
		v, ok := req.(ByteValue)
		if !ok {
			return nil, fmt.Errorf("host: UPDATE_REQUIRE_ZERO wants ByteValue")
		}
		h.SetRequireZeroMask(v.Value)
		return nil, nil
	}

	rt[CmdChAudioRequest] = func(h Handler, req any) (any, error) {
		a, ok := req.(ChannelArg)
		if !ok {
			return nil, fmt.Errorf("host: CH_AUDIO_REQUEST wants ChannelArg")
		}
		gp, gpow, src := h.ChAudio(a.Channel)
		return ChAudioReply{GenPulses: gp, GenPower: gpow, Source: src}, nil
	}
	rt[CmdUpdateChAudio] = func(h Handler, req any) (any, error) {
		u, ok := req.(UpdateChAudio)
		if !ok {
			return nil, fmt.Errorf("host: UPDATE_CH_AUDIO wants UpdateChAudio")
		}
		oldGP, oldGPow, oldSrc := h.ChAudio(u.Channel)
		h.SetChAudio(u.Channel, u.GenPulses, u.GenPower, u.Source)
		if u.GenPulses != oldGP || u.GenPower != oldGPow || u.Source != oldSrc {
			requireZeroBit(h, u.Channel)
		}
		return nil, nil
	}

	rt[CmdGainRequest] = func(h Handler, req any) (any, error) {
		a, ok := req.(GainArg)
		if !ok {
			return nil, fmt.Errorf("host: GAIN_REQUEST wants GainArg")
		}
		return ByteValue{Value: h.Gain(a.Channel)}, nil
	}
	rt[CmdUpdateGain] = func(h Handler, req any) (any, error) {
		u, ok := req.(UpdateGain)
		if !ok {
			return nil, fmt.Errorf("host: UPDATE_GAIN wants UpdateGain")
		}
		h.SetGain(u.Channel, u.Value)
		return nil, nil
	}

	rt[CmdChEnMaskRequest] = func(h Handler, _ any) (any, error) {
		return ByteValue{Value: h.ChEnMask()}, nil
	}
	rt[CmdUpdateChEnMask] = func(h Handler, req any) (any, error) {
		v, ok := req.(ByteValue)
		if !ok {
			return nil, fmt.Errorf("host: UPDATE_CH_EN_MASK wants ByteValue")
		}
		before := h.ChEnMask()
		h.SetChEnMask(v.Value)
		if h.ChEnMask() != before {
			h.SetRequireZeroMask(h.RequireZeroMask() | (before ^ h.ChEnMask()))
		}
		return nil, nil
	}

	rt[CmdChParamRequest] = func(h Handler, req any) (any, error) {
		a, ok := req.(ChParamArg)
		if !ok {
			return nil, fmt.Errorf("host: CH_PARAM_REQUEST wants ChParamArg")
		}
		return U16Value{Value: h.ChParam(a.Channel, a.Param, a.Target)}, nil
	}
	rt[CmdUpdateChParam] = func(h Handler, req any) (any, error) {
		u, ok := req.(UpdateChParam)
		if !ok {
			return nil, fmt.Errorf("host: UPDATE_CH_PARAM wants UpdateChParam")
		}
		h.SetChParam(u.Channel, u.Param, u.Target, u.Value)
		return nil, nil
	}
	rt[CmdChParamUpdate] = func(h Handler, req any) (any, error) {
		a, ok := req.(ChParamUpdateArg)
		if !ok {
			return nil, fmt.Errorf("host: CH_PARAM_UPDATE wants ChParamUpdateArg")
		}
		h.UpdateChParam(a.Channel, a.Param)
		return nil, nil
	}

	rt[CmdChStatusRequest] = func(h Handler, req any) (any, error) {
		a, ok := req.(ChannelArg)
		if !ok {
			return nil, fmt.Errorf("host: CH_STATUS_REQUEST wants ChannelArg")
		}
		return h.ChStatus(a.Channel), nil
	}

	rt[CmdSeqRequest] = func(h Handler, req any) (any, error) {
		a, ok := req.(IndexArg)
		if !ok {
			return nil, fmt.Errorf("host: SEQ_REQUEST wants IndexArg")
		}
		return ByteValue{Value: h.SeqMask(a.Index)}, nil
	}
	rt[CmdUpdateSeq] = func(h Handler, req any) (any, error) {
		u, ok := req.(UpdateSeq)
		if !ok {
			return nil, fmt.Errorf("host: UPDATE_SEQ wants UpdateSeq")
		}
		h.SetSeqMask(u.Index, u.Mask)
		return nil, nil
	}

	rt[CmdSeqCountRequest] = func(h Handler, _ any) (any, error) {
		return ByteValue{Value: h.SeqCount()}, nil
	}
	rt[CmdUpdateSeqCount] = func(h Handler, req any) (any, error) {
		v, ok := req.(ByteValue)
		if !ok {
			return nil, fmt.Errorf("host: UPDATE_SEQ_COUNT wants ByteValue")
		}
		h.SetSeqCount(v.Value)
		return nil, nil
	}

	rt[CmdSeqReset] = func(h Handler, _ any) (any, error) {
		h.ResetSeq()
		return nil, nil
	}

	rt[CmdSeqPeriodRequest] = func(h Handler, _ any) (any, error) {
		return U32Value{Value: h.SeqPeriodUS()}, nil
	}
	rt[CmdUpdateSeqPeriod] = func(h Handler, req any) (any, error) {
		v, ok := req.(U32Value)
		if !ok {
			return nil, fmt.Errorf("host: UPDATE_SEQ_PERIOD wants U32Value")
		}
		h.SetSeqPeriodUS(v.Value)
		return nil, nil
	}

	rt[CmdActionRequest] = func(h Handler, req any) (any, error) {
		a, ok := req.(IndexArg)
		if !ok {
			return nil, fmt.Errorf("host: ACTION_REQUEST wants IndexArg")
		}
		return h.Action(a.Index), nil
	}
	rt[CmdUpdateAction] = func(h Handler, req any) (any, error) {
		u, ok := req.(UpdateAction)
		if !ok {
			return nil, fmt.Errorf("host: UPDATE_ACTION wants UpdateAction")
		}
		h.SetAction(u.Index, u.Action)
		return nil, nil
	}
	rt[CmdRunActionList] = func(h Handler, req any) (any, error) {
		a, ok := req.(RunActionListArg)
		if !ok {
			return nil, fmt.Errorf("host: RUN_ACTION_LIST wants RunActionListArg")
		}
		h.RunActionList(a.Start, a.End)
		return nil, nil
	}

	rt[CmdTriggerRequest] = func(h Handler, req any) (any, error) {
		a, ok := req.(IndexArg)
		if !ok {
			return nil, fmt.Errorf("host: TRIGGER_REQUEST wants IndexArg")
		}
		return h.Trigger(a.Index), nil
	}
	rt[CmdUpdateTrigger] = func(h Handler, req any) (any, error) {
		u, ok := req.(UpdateTrigger)
		if !ok {
			return nil, fmt.Errorf("host: UPDATE_TRIGGER wants UpdateTrigger")
		}
		h.SetTrigger(u.Index, u.Trigger)
		return nil, nil
	}
	rt[CmdTriggerStateRequest] = func(h Handler, req any) (any, error) {
		a, ok := req.(IndexArg)
		if !ok {
			return nil, fmt.Errorf("host: TRIGGER_STATE_REQUEST wants IndexArg")
		}
		return BoolValue{Value: h.TriggerState(a.Index)}, nil
	}

	return rt
}
