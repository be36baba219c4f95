package rpc

import (
	"encoding/json"

	"github.com/lumaclass/liveroom/internal/core"
)

type RosterParams struct {
	Participants []*core.Participant `json:"participants"`
}

// RosterRpc is the server's snapshot of the room, pushed to a client right
// after it joins so it can open a peer link per existing participant.
type RosterRpc struct {
	jsonRpcHead
	Params RosterParams `json:"params"`
}

func NewRosterRpc(participants []*core.Participant) *RosterRpc {
	return &RosterRpc{
		jsonRpcHead: newHead(RosterMethod),
		Params:      RosterParams{Participants: participants},
	}
}

func (r RosterRpc) GetMethod() Method {
	return r.Method
}

func (r RosterRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
