package rpc

import (
	"encoding/json"

	"github.com/lumaclass/liveroom/internal/core"
	"github.com/pion/webrtc/v3"
)

type ICECandidateParams struct {
	webrtc.ICECandidateInit
	From core.ParticipantID `json:"from"`
	To   core.ParticipantID `json:"to"`
}

// ICE candidate RPC
type ICECandidateRpc struct {
	jsonRpcHead
	Params ICECandidateParams `json:"params"`
}

func NewICECandidateRpc(from, to core.ParticipantID, candidate webrtc.ICECandidateInit) *ICECandidateRpc {
	return &ICECandidateRpc{
		jsonRpcHead: newHead(ICECandidateMethod),
		Params: ICECandidateParams{
			ICECandidateInit: candidate,
			From:             from,
			To:               to,
		},
	}
}

func (r ICECandidateRpc) GetMethod() Method {
	return r.Method
}

func (r ICECandidateRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
