package rpc

import (
	"encoding/json"

	"github.com/lumaclass/liveroom/internal/core"
)

type ChatRpc struct {
	jsonRpcHead
	Params *core.ChatMessage `json:"params"`
}

func NewChatRpc(message *core.ChatMessage) *ChatRpc {
	return &ChatRpc{
		jsonRpcHead: newHead(ChatMethod),
		Params:      message,
	}
}

func (r ChatRpc) GetMethod() Method {
	return r.Method
}

func (r ChatRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
