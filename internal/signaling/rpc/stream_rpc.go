package rpc

import (
	"encoding/json"

	"github.com/lumaclass/liveroom/internal/core"
)

type StreamStatusParams struct {
	LessonID core.LessonID     `json:"lesson_id"`
	Status   core.StreamStatus `json:"status"`
}

// StreamStatusRpc carries the persisted lifecycle state so late joiners
// never need to replay start/end signals.
type StreamStatusRpc struct {
	jsonRpcHead
	Params StreamStatusParams `json:"params"`
}

func NewStreamStatusRpc(lessonID core.LessonID, status core.StreamStatus) *StreamStatusRpc {
	return &StreamStatusRpc{
		jsonRpcHead: newHead(StreamStatusMethod),
		Params: StreamStatusParams{
			LessonID: lessonID,
			Status:   status,
		},
	}
}

func (r StreamStatusRpc) GetMethod() Method {
	return r.Method
}

func (r StreamStatusRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

type StartStreamRpc struct {
	jsonRpcHead
	Params interface{} `json:"params"`
}

func NewStartStreamRpc() *StartStreamRpc {
	return &StartStreamRpc{
		jsonRpcHead: newHead(StartStreamMethod),
	}
}

func (r StartStreamRpc) GetMethod() Method {
	return r.Method
}

func (r StartStreamRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

type EndStreamRpc struct {
	jsonRpcHead
	Params interface{} `json:"params"`
}

func NewEndStreamRpc() *EndStreamRpc {
	return &EndStreamRpc{
		jsonRpcHead: newHead(EndStreamMethod),
	}
}

func (r EndStreamRpc) GetMethod() Method {
	return r.Method
}

func (r EndStreamRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
