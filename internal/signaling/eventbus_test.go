package signaling

import (
	"github.com/go-redis/redis/v8"

	"github.com/lumaclass/liveroom/internal/core"
)

type MockSubscriber struct {
	ServerSubscribed bool
	Bus              Bus
}

func NewMockSubscriber(bus Bus) *MockSubscriber {
	return &MockSubscriber{
		Bus: bus,
	}
}

func (s *MockSubscriber) SubscribeServer() (Bus, error) {
	s.ServerSubscribed = true

	return s.Bus, nil
}

func (s *MockSubscriber) SubscribeRoom(lessonID core.LessonID) (Bus, error) {
	return s.Bus, nil
}

func (s *MockSubscriber) SubscribePeer(lessonID core.LessonID, participantID core.ParticipantID) (Bus, error) {
	return s.Bus, nil
}

type MockBus struct {
	Messages chan *redis.Message
}

func NewMockBus() *MockBus {
	return &MockBus{Messages: make(chan *redis.Message)}
}

func (b *MockBus) Channel() <-chan *redis.Message {
	return b.Messages
}

func (b *MockBus) Close() error {
	close(b.Messages)
	return nil
}
