package rpc

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/lumaclass/liveroom/internal/core"
)

const jsonRpcVersion = "2.0"

type Method string

const (
	JoinMethod         Method = "join"
	LeaveMethod        Method = "leave"
	PresenceMethod     Method = "presence"
	HeartbeatMethod    Method = "heartbeat"
	SDPOfferMethod     Method = "offer"
	SDPAnswerMethod    Method = "answer"
	ICECandidateMethod Method = "iceCandidate"
	ChatMethod         Method = "chat"
	RosterMethod       Method = "roster"
	StreamStatusMethod Method = "streamStatus"
	StartStreamMethod  Method = "start_stream"
	EndStreamMethod    Method = "end_stream"
)

var (
	ErrUnknownRpcType = errors.New("unknown RPC type")
	ErrMalformedRpc   = errors.New("malformed RPC")
)

type Rpc interface {
	GetMethod() Method
	ToJSON() ([]byte, error)
}

type jsonRpcHead struct {
	Version string `json:"jsonrpc"`
	Method  Method `json:"method"`
}

func newHead(method Method) jsonRpcHead {
	return jsonRpcHead{
		Version: jsonRpcVersion,
		Method:  method,
	}
}

type jsonRpc struct {
	jsonRpcHead
	Params json.RawMessage `json:"params"`
}

func FromReader(reader io.Reader) (Rpc, error) {
	rpc := &jsonRpc{}

	if err := json.NewDecoder(reader).Decode(rpc); err != nil {
		return nil, err
	}

	switch rpc.Method {
	case JoinMethod:
		p := &core.Participant{}
		if err := json.Unmarshal(rpc.Params, p); err != nil {
			return nil, err
		}

		return NewJoinRpc(p), nil
	case LeaveMethod:
		params := &LeaveParams{}
		if err := json.Unmarshal(rpc.Params, params); err != nil {
			return nil, err
		}

		return NewLeaveRpc(params.ParticipantID), nil
	case PresenceMethod:
		params := &PresenceParams{}
		if err := json.Unmarshal(rpc.Params, params); err != nil {
			return nil, err
		}

		return NewPresenceRpc(params.ParticipantID, params.MediaFlags), nil
	case HeartbeatMethod:
		return NewHeartbeatRpc(), nil
	case SDPOfferMethod, SDPAnswerMethod:
		params := &SDPParams{}
		if err := json.Unmarshal(rpc.Params, params); err != nil {
			return nil, err
		}

		if rpc.Method == SDPOfferMethod {
			return NewSDPOfferRpc(params.From, params.To, params.SessionDescription), nil
		}

		return NewSDPAnswerRpc(params.From, params.To, params.SessionDescription), nil
	case ICECandidateMethod:
		params := &ICECandidateParams{}
		if err := json.Unmarshal(rpc.Params, params); err != nil {
			return nil, err
		}

		return NewICECandidateRpc(params.From, params.To, params.ICECandidateInit), nil
	case ChatMethod:
		msg := &core.ChatMessage{}
		if err := json.Unmarshal(rpc.Params, msg); err != nil {
			return nil, err
		}

		return NewChatRpc(msg), nil
	case RosterMethod:
		params := &RosterParams{}
		if err := json.Unmarshal(rpc.Params, params); err != nil {
			return nil, err
		}

		return NewRosterRpc(params.Participants), nil
	case StreamStatusMethod:
		params := &StreamStatusParams{}
		if err := json.Unmarshal(rpc.Params, params); err != nil {
			return nil, err
		}

		return NewStreamStatusRpc(params.LessonID, params.Status), nil
	case StartStreamMethod:
		return NewStartStreamRpc(), nil
	case EndStreamMethod:
		return NewEndStreamRpc(), nil
	default:
		return nil, ErrUnknownRpcType
	}
}
