package rpc

import (
	"encoding/json"

	"github.com/lumaclass/liveroom/internal/core"
	"github.com/pion/webrtc/v3"
)

// SDPParams address one peer link of the mesh: From is the describing side,
// To is the peer the description is for.
type SDPParams struct {
	webrtc.SessionDescription
	From core.ParticipantID `json:"from"`
	To   core.ParticipantID `json:"to"`
}

type SDPRpc struct {
	jsonRpcHead
	Params SDPParams `json:"params"`
}

func NewSDPOfferRpc(from, to core.ParticipantID, sdp webrtc.SessionDescription) *SDPRpc {
	return &SDPRpc{
		jsonRpcHead: newHead(SDPOfferMethod),
		Params: SDPParams{
			SessionDescription: sdp,
			From:               from,
			To:                 to,
		},
	}
}

func NewSDPAnswerRpc(from, to core.ParticipantID, sdp webrtc.SessionDescription) *SDPRpc {
	return &SDPRpc{
		jsonRpcHead: newHead(SDPAnswerMethod),
		Params: SDPParams{
			SessionDescription: sdp,
			From:               from,
			To:                 to,
		},
	}
}

func (r SDPRpc) GetMethod() Method {
	return r.Method
}

func (r SDPRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
