package chat

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumaclass/liveroom/internal/core"
)

type MockPublisher struct {
	Published []*core.ChatMessage
	Err       error
}

func (p *MockPublisher) PublishChat(msg *core.ChatMessage) error {
	if p.Err != nil {
		return p.Err
	}
	p.Published = append(p.Published, msg)
	return nil
}

func testSender() *core.Participant {
	return &core.Participant{ID: "alice", Name: "Alice"}
}

func TestRelaySendEchoesBeforeBroadcast(t *testing.T) {
	publisher := &MockPublisher{}
	relay := NewRelay(testSender(), publisher, nil)

	msg, err := relay.Send("hello class")
	assert.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, core.ParticipantID("alice"), msg.ParticipantID)
	assert.Equal(t, "Alice", msg.ParticipantName)

	messages := relay.Messages()
	assert.Len(t, messages, 1)
	assert.Len(t, publisher.Published, 1)
}

func TestRelaySendKeepsEchoOnPublishFailure(t *testing.T) {
	publisher := &MockPublisher{Err: errors.New("redis gone")}
	relay := NewRelay(testSender(), publisher, nil)

	msg, err := relay.Send("hello")
	assert.Error(t, err)
	assert.NotNil(t, msg)
	assert.Len(t, relay.Messages(), 1)
}

func TestRelaySendRejectsEmptyAndOversized(t *testing.T) {
	relay := NewRelay(testSender(), &MockPublisher{}, nil)

	_, err := relay.Send("   ")
	assert.Equal(t, ErrEmptyMessage, err)

	_, err = relay.Send(strings.Repeat("a", core.MaxChatMessageLen+1))
	assert.Equal(t, ErrMessageTooLong, err)

	assert.Empty(t, relay.Messages())
}

func TestRelayDeliverDropsOwnEcho(t *testing.T) {
	publisher := &MockPublisher{}
	relay := NewRelay(testSender(), publisher, nil)

	msg, err := relay.Send("hello")
	assert.NoError(t, err)

	// broadcast loops back through the room channel
	relay.Deliver(msg)
	assert.Len(t, relay.Messages(), 1)

	// a genuinely new delivery with the same text still lands
	other := core.NewChatMessage(&core.Participant{ID: "bob", Name: "Bob"}, "hello")
	relay.Deliver(other)
	assert.Len(t, relay.Messages(), 2)
}

func TestRelayPerSenderOrder(t *testing.T) {
	relay := NewRelay(&core.Participant{ID: "observer", Name: "Observer"}, &MockPublisher{}, nil)

	alice := &core.Participant{ID: "alice", Name: "Alice"}
	carol := &core.Participant{ID: "carol", Name: "Carol"}

	first := core.NewChatMessage(alice, "hi")
	interleaved := core.NewChatMessage(carol, "o/")
	second := core.NewChatMessage(alice, "there")

	relay.Deliver(first)
	relay.Deliver(interleaved)
	relay.Deliver(second)

	var fromAlice []string
	for _, msg := range relay.Messages() {
		if msg.ParticipantID == alice.ID {
			fromAlice = append(fromAlice, msg.Message)
		}
	}
	assert.Equal(t, []string{"hi", "there"}, fromAlice)
}

func TestRelayNotifiesListener(t *testing.T) {
	var seen []string
	relay := NewRelay(testSender(), &MockPublisher{}, func(msg *core.ChatMessage) {
		seen = append(seen, msg.Message)
	})

	_, err := relay.Send("mine")
	assert.NoError(t, err)
	relay.Deliver(core.NewChatMessage(&core.Participant{ID: "bob", Name: "Bob"}, "yours"))

	assert.Equal(t, []string{"mine", "yours"}, seen)
}

func TestRelayMessagesSnapshotDetached(t *testing.T) {
	relay := NewRelay(testSender(), &MockPublisher{}, nil)
	relay.Deliver(core.NewChatMessage(testSender(), "one"))

	snapshot := relay.Messages()
	snapshot[0] = nil

	assert.NotNil(t, relay.Messages()[0])
}
