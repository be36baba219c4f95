package chat

import (
	"errors"
	"strings"
	"sync"

	"github.com/lumaclass/liveroom/internal/core"
	"github.com/lumaclass/liveroom/internal/telemetry"
)

var (
	ErrEmptyMessage   = errors.New("chat message is empty")
	ErrMessageTooLong = errors.New("chat message exceeds length bound")
)

// Publisher broadcasts a chat message to the rest of the room
type Publisher interface {
	PublishChat(msg *core.ChatMessage) error
}

// Relay keeps the in-session chat log. Messages from one sender keep their
// send order; interleaving between senders follows arrival. History lives in
// memory only and dies with the session.
type Relay struct {
	sender    *core.Participant
	publisher Publisher
	onMessage func(*core.ChatMessage)

	lock     sync.RWMutex
	messages []*core.ChatMessage
	// echoed remembers locally appended ids so the broadcast loopback of our
	// own message is not appended twice
	echoed map[string]struct{}
}

func NewRelay(sender *core.Participant, publisher Publisher, onMessage func(*core.ChatMessage)) *Relay {
	return &Relay{
		sender:    sender,
		publisher: publisher,
		onMessage: onMessage,
		messages:  make([]*core.ChatMessage, 0),
		echoed:    make(map[string]struct{}),
	}
}

// Send stamps and broadcasts a message. The local echo is immediate: the
// message lands in the log before the round trip completes, and stays there
// even if the broadcast fails.
func (r *Relay) Send(text string) (*core.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if len(text) > core.MaxChatMessageLen {
		return nil, ErrMessageTooLong
	}

	msg := core.NewChatMessage(r.sender, text)

	r.lock.Lock()
	r.messages = append(r.messages, msg)
	r.echoed[msg.ID] = struct{}{}
	r.lock.Unlock()

	r.notify(msg)

	if err := r.publisher.PublishChat(msg); err != nil {
		return msg, err
	}

	return msg, nil
}

// Deliver appends a message received from the room, preserving arrival order.
// Our own loopback echo is dropped.
func (r *Relay) Deliver(msg *core.ChatMessage) {
	r.lock.Lock()
	if _, ok := r.echoed[msg.ID]; ok {
		delete(r.echoed, msg.ID)
		r.lock.Unlock()
		return
	}
	r.messages = append(r.messages, msg)
	r.lock.Unlock()

	telemetry.ChatMessageRelayed()
	r.notify(msg)
}

// Messages returns a detached snapshot of the log
func (r *Relay) Messages() []*core.ChatMessage {
	r.lock.RLock()
	defer r.lock.RUnlock()

	out := make([]*core.ChatMessage, len(r.messages))
	copy(out, r.messages)

	return out
}

func (r *Relay) notify(msg *core.ChatMessage) {
	if r.onMessage != nil {
		r.onMessage(msg)
	}
}
