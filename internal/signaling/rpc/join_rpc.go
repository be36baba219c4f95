package rpc

import (
	"encoding/json"

	"github.com/lumaclass/liveroom/internal/core"
)

type JoinRpc struct {
	jsonRpcHead
	Params *core.Participant `json:"params"`
}

func NewJoinRpc(participant *core.Participant) *JoinRpc {
	return &JoinRpc{
		jsonRpcHead: newHead(JoinMethod),
		Params:      participant,
	}
}

func (r JoinRpc) GetMethod() Method {
	return r.Method
}

func (r JoinRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

type LeaveParams struct {
	ParticipantID core.ParticipantID `json:"participant_id"`
}

type LeaveRpc struct {
	jsonRpcHead
	Params LeaveParams `json:"params"`
}

func NewLeaveRpc(participantID core.ParticipantID) *LeaveRpc {
	return &LeaveRpc{
		jsonRpcHead: newHead(LeaveMethod),
		Params:      LeaveParams{ParticipantID: participantID},
	}
}

func (r LeaveRpc) GetMethod() Method {
	return r.Method
}

func (r LeaveRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
