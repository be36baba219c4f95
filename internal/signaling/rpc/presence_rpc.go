package rpc

import (
	"encoding/json"

	"github.com/lumaclass/liveroom/internal/core"
)

type PresenceParams struct {
	ParticipantID core.ParticipantID `json:"participant_id"`
	core.MediaFlags
}

// PresenceRpc announces the sender's last known media state. Partial: absent
// flags leave the roster entry untouched.
type PresenceRpc struct {
	jsonRpcHead
	Params PresenceParams `json:"params"`
}

func NewPresenceRpc(participantID core.ParticipantID, flags core.MediaFlags) *PresenceRpc {
	return &PresenceRpc{
		jsonRpcHead: newHead(PresenceMethod),
		Params: PresenceParams{
			ParticipantID: participantID,
			MediaFlags:    flags,
		},
	}
}

func (r PresenceRpc) GetMethod() Method {
	return r.Method
}

func (r PresenceRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

type HeartbeatRpc struct {
	jsonRpcHead
	Params interface{} `json:"params"`
}

func NewHeartbeatRpc() *HeartbeatRpc {
	return &HeartbeatRpc{
		jsonRpcHead: newHead(HeartbeatMethod),
	}
}

func (r HeartbeatRpc) GetMethod() Method {
	return r.Method
}

func (r HeartbeatRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
