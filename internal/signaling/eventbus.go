package signaling

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/lumaclass/liveroom/internal/core"
	"github.com/lumaclass/liveroom/internal/signaling/rpc"
)

type Channel string

const (
	// RoomMessages fan out to every participant of a lesson
	RoomMessages Channel = "room"
	// PeerMessages are addressed to a single participant (offer/answer/ICE)
	PeerMessages Channel = "peer"
	// ServerMessages is the single inbound channel the router consumes
	ServerMessages Channel = "server_messages"
)

func (c Channel) room(lessonID core.LessonID) string {
	return string(c) + ":" + string(lessonID)
}

func (c Channel) peer(lessonID core.LessonID, participantID core.ParticipantID) string {
	return string(c) + ":" + string(lessonID) + ":" + string(participantID)
}

// ServerMessage is the envelope for client-originated RPCs: the websocket
// bridge stamps the sender identity so handlers never trust the payload for it.
type ServerMessage struct {
	LessonID      core.LessonID      `json:"lesson_id"`
	ParticipantID core.ParticipantID `json:"participant_id"`
	Rpc           json.RawMessage    `json:"rpc"`
}

type Publisher interface {
	PublishRoom(lessonID core.LessonID, rpc rpc.Rpc) error
	PublishPeer(lessonID core.LessonID, participantID core.ParticipantID, rpc rpc.Rpc) error
	PublishServer(lessonID core.LessonID, participantID core.ParticipantID, rpc rpc.Rpc) error
}

type Subscriber interface {
	SubscribeRoom(lessonID core.LessonID) (Bus, error)
	SubscribePeer(lessonID core.LessonID, participantID core.ParticipantID) (Bus, error)
	SubscribeServer() (Bus, error)
}

// Bus is one live subscription. Redis pub/sub keeps per-publisher FIFO order,
// which is what gives presence and chat their per-sender ordering guarantee.
type Bus interface {
	Channel() <-chan *redis.Message
	Close() error
}

type Subscription struct {
	pubsub *redis.PubSub
}

func (s *Subscription) Channel() <-chan *redis.Message {
	return s.pubsub.Channel()
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

type Eventbus struct {
	rdb *redis.Client
}

// RedisPubSub is factory for building Eventbus based on redis pubsub
func RedisPubSub(rdb *redis.Client) *Eventbus {
	return &Eventbus{rdb: rdb}
}

func (e *Eventbus) PublishRoom(lessonID core.LessonID, r rpc.Rpc) error {
	msg, err := r.ToJSON()
	if err != nil {
		return err
	}
	return e.rdb.Publish(context.Background(), RoomMessages.room(lessonID), msg).Err()
}

func (e *Eventbus) PublishPeer(lessonID core.LessonID, participantID core.ParticipantID, r rpc.Rpc) error {
	msg, err := r.ToJSON()
	if err != nil {
		return err
	}
	return e.rdb.Publish(context.Background(), PeerMessages.peer(lessonID, participantID), msg).Err()
}

func (e *Eventbus) PublishServer(lessonID core.LessonID, participantID core.ParticipantID, r rpc.Rpc) error {
	raw, err := r.ToJSON()
	if err != nil {
		return err
	}
	envelope, err := json.Marshal(ServerMessage{
		LessonID:      lessonID,
		ParticipantID: participantID,
		Rpc:           raw,
	})
	if err != nil {
		return err
	}
	return e.rdb.Publish(context.Background(), string(ServerMessages), envelope).Err()
}

func (e *Eventbus) SubscribeRoom(lessonID core.LessonID) (Bus, error) {
	return e.subscribe(RoomMessages.room(lessonID))
}

func (e *Eventbus) SubscribePeer(lessonID core.LessonID, participantID core.ParticipantID) (Bus, error) {
	return e.subscribe(PeerMessages.peer(lessonID, participantID))
}

func (e *Eventbus) SubscribeServer() (Bus, error) {
	return e.subscribe(string(ServerMessages))
}

func (e *Eventbus) subscribe(channel string) (Bus, error) {
	ctx := context.Background()
	pubsub := e.rdb.Subscribe(ctx, channel)
	// Wait until subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}

	return &Subscription{pubsub: pubsub}, nil
}
