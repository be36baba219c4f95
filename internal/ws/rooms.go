package ws

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lumaclass/liveroom/internal/core"
	"github.com/lumaclass/liveroom/internal/lifecycle"
	"github.com/lumaclass/liveroom/internal/roster"
	"github.com/lumaclass/liveroom/internal/signaling"
	"github.com/lumaclass/liveroom/internal/signaling/rpc"
	"github.com/lumaclass/liveroom/internal/telemetry"
)

// Notifier is the LMS-facing event surface. Delivery is fire and forget:
// a lost notification never blocks the room.
type Notifier interface {
	StreamStarted(lessonID core.LessonID)
	StreamEnded(lessonID core.LessonID)
	ParticipantJoined(lessonID core.LessonID, participant *core.Participant)
	ParticipantLeft(lessonID core.LessonID, participantID core.ParticipantID)
}

// Rooms is the authoritative room state on the server: one registry and one
// lifecycle controller per lesson, driven by the signaling router callbacks.
type Rooms struct {
	publisher  signaling.Publisher
	streams    lifecycle.StatusStore
	attendance core.AttendanceDBStorer
	notifier   Notifier

	heartbeatInterval time.Duration
	heartbeatWindow   time.Duration

	lock  sync.Mutex
	rooms map[core.LessonID]*roomState

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

type roomState struct {
	registry     *roster.Registry
	lifecycle    *lifecycle.Controller
	instructorID core.ParticipantID
}

type RoomsParams struct {
	Publisher  signaling.Publisher
	Streams    lifecycle.StatusStore
	Attendance core.AttendanceDBStorer
	Notifier   Notifier

	HeartbeatInterval time.Duration
	HeartbeatWindow   time.Duration
}

func NewRooms(params RoomsParams) *Rooms {
	return &Rooms{
		publisher:         params.Publisher,
		streams:           params.Streams,
		attendance:        params.Attendance,
		notifier:          params.Notifier,
		heartbeatInterval: params.HeartbeatInterval,
		heartbeatWindow:   params.HeartbeatWindow,
		rooms:             make(map[core.LessonID]*roomState),
		stopped:           make(chan struct{}),
		done:              make(chan struct{}),
	}
}

// Bind registers the room handlers on the signaling router
func (rm *Rooms) Bind(router *signaling.Router) {
	router.OnJoin(rm.HandleJoin)
	router.OnLeave(rm.HandleLeave)
	router.OnPresence(rm.HandlePresence)
	router.OnHeartbeat(rm.HandleHeartbeat)
	router.OnOffer(rm.HandleOffer)
	router.OnAnswer(rm.HandleAnswer)
	router.OnICECandidate(rm.HandleICECandidate)
	router.OnChat(rm.HandleChat)
	router.OnStartStream(rm.HandleStartStream)
	router.OnEndStream(rm.HandleEndStream)
}

// Start runs the heartbeat sweeper that evicts participants whose client
// vanished without a leave message
func (rm *Rooms) Start() {
	go func() {
		defer close(rm.done)

		ticker := time.NewTicker(rm.heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rm.sweep()
			case <-rm.stopped:
				return
			}
		}
	}()
}

func (rm *Rooms) Stop() {
	rm.stopOnce.Do(func() { close(rm.stopped) })
	<-rm.done
}

// HandleJoin admits a participant: roster entry, attendance row, roster and
// stream status snapshots back to the joiner, join fanout to everyone else.
func (rm *Rooms) HandleJoin(lessonID core.LessonID, participant *core.Participant) error {
	room, err := rm.room(lessonID)
	if err != nil {
		return err
	}

	// the instructor role comes from the lesson record, never from the client
	if room.instructorID != "" {
		participant.IsInstructor = participant.ID == room.instructorID
	}

	room.registry.Upsert(participant)
	telemetry.ParticipantJoined()

	// a rejoin conflicts on the unique attendance row and is a no-op
	if err := rm.attendance.Record(lessonID, participant); err != nil {
		log.Error().Err(err).Str("service", "rooms").Str("lessonID", string(lessonID)).Msg("record attendance")
	}

	if err := rm.publisher.PublishRoom(lessonID, rpc.NewJoinRpc(participant)); err != nil {
		return err
	}
	if err := rm.publisher.PublishPeer(lessonID, participant.ID, rpc.NewRosterRpc(room.registry.Participants())); err != nil {
		return err
	}
	if err := rm.publisher.PublishPeer(lessonID, participant.ID, rpc.NewStreamStatusRpc(lessonID, room.lifecycle.Status())); err != nil {
		return err
	}

	rm.notifier.ParticipantJoined(lessonID, participant)

	return nil
}

func (rm *Rooms) HandleLeave(lessonID core.LessonID, participantID core.ParticipantID) error {
	room, err := rm.room(lessonID)
	if err != nil {
		return err
	}

	room.registry.Remove(participantID)
	telemetry.ParticipantLeft()

	if err := rm.publisher.PublishRoom(lessonID, rpc.NewLeaveRpc(participantID)); err != nil {
		return err
	}

	rm.notifier.ParticipantLeft(lessonID, participantID)

	return nil
}

func (rm *Rooms) HandlePresence(lessonID core.LessonID, params rpc.PresenceParams) error {
	room, err := rm.room(lessonID)
	if err != nil {
		return err
	}

	room.registry.ApplyMediaFlags(params.ParticipantID, params.MediaFlags)
	room.registry.Touch(params.ParticipantID)

	return rm.publisher.PublishRoom(lessonID, rpc.NewPresenceRpc(params.ParticipantID, params.MediaFlags))
}

func (rm *Rooms) HandleHeartbeat(lessonID core.LessonID, participantID core.ParticipantID) error {
	room, err := rm.room(lessonID)
	if err != nil {
		return err
	}

	room.registry.Touch(participantID)

	return nil
}

// negotiation messages relay to the addressed peer only, never the room
func (rm *Rooms) HandleOffer(lessonID core.LessonID, params rpc.SDPParams) error {
	return rm.publisher.PublishPeer(lessonID, params.To,
		rpc.NewSDPOfferRpc(params.From, params.To, params.SessionDescription))
}

func (rm *Rooms) HandleAnswer(lessonID core.LessonID, params rpc.SDPParams) error {
	return rm.publisher.PublishPeer(lessonID, params.To,
		rpc.NewSDPAnswerRpc(params.From, params.To, params.SessionDescription))
}

func (rm *Rooms) HandleICECandidate(lessonID core.LessonID, params rpc.ICECandidateParams) error {
	return rm.publisher.PublishPeer(lessonID, params.To,
		rpc.NewICECandidateRpc(params.From, params.To, params.ICECandidateInit))
}

// HandleChat restamps the sender from the registry and fans the message out.
// The payload never decides who spoke.
func (rm *Rooms) HandleChat(lessonID core.LessonID, participantID core.ParticipantID, msg *core.ChatMessage) error {
	if msg.Message == "" || len(msg.Message) > core.MaxChatMessageLen {
		return rpc.ErrMalformedRpc
	}

	room, err := rm.room(lessonID)
	if err != nil {
		return err
	}

	sender, ok := room.registry.Get(participantID)
	if !ok {
		return rpc.ErrMalformedRpc
	}
	msg.ParticipantID = sender.ID
	msg.ParticipantName = sender.Name

	telemetry.ChatMessageRelayed()

	return rm.publisher.PublishRoom(lessonID, rpc.NewChatRpc(msg))
}

func (rm *Rooms) HandleStartStream(lessonID core.LessonID, participantID core.ParticipantID) error {
	room, err := rm.room(lessonID)
	if err != nil {
		return err
	}

	actor, ok := room.registry.Get(participantID)
	if !ok {
		return lifecycle.ErrUnauthorized
	}

	if err := room.lifecycle.Start(&actor); err != nil {
		return err
	}

	if err := rm.publisher.PublishRoom(lessonID, rpc.NewStreamStatusRpc(lessonID, core.StreamLive)); err != nil {
		return err
	}

	rm.notifier.StreamStarted(lessonID)

	return nil
}

func (rm *Rooms) HandleEndStream(lessonID core.LessonID, participantID core.ParticipantID) error {
	room, err := rm.room(lessonID)
	if err != nil {
		return err
	}

	actor, ok := room.registry.Get(participantID)
	if !ok {
		return lifecycle.ErrUnauthorized
	}

	if err := room.lifecycle.End(&actor); err != nil {
		return err
	}

	if err := rm.publisher.PublishRoom(lessonID, rpc.NewStreamStatusRpc(lessonID, core.StreamEnded)); err != nil {
		return err
	}

	rm.notifier.StreamEnded(lessonID)

	return nil
}

// Status reports the lifecycle state of one lesson
func (rm *Rooms) Status(lessonID core.LessonID) (core.StreamStatus, error) {
	room, err := rm.room(lessonID)
	if err != nil {
		return "", err
	}

	return room.lifecycle.Status(), nil
}

// Participants reports the roster snapshot of one lesson
func (rm *Rooms) Participants(lessonID core.LessonID) ([]*core.Participant, error) {
	room, err := rm.room(lessonID)
	if err != nil {
		return nil, err
	}

	return room.registry.Participants(), nil
}

func (rm *Rooms) room(lessonID core.LessonID) (*roomState, error) {
	rm.lock.Lock()
	defer rm.lock.Unlock()

	if room, ok := rm.rooms[lessonID]; ok {
		return room, nil
	}

	controller, err := lifecycle.NewController(lessonID, rm.streams)
	if err != nil {
		return nil, err
	}

	session, err := rm.streams.Find(lessonID)
	if err != nil {
		return nil, err
	}

	room := &roomState{
		registry:     roster.NewRegistry(),
		lifecycle:    controller,
		instructorID: session.InstructorID,
	}
	rm.rooms[lessonID] = room

	return room, nil
}

func (rm *Rooms) sweep() {
	rm.lock.Lock()
	rooms := make(map[core.LessonID]*roomState, len(rm.rooms))
	for id, room := range rm.rooms {
		rooms[id] = room
	}
	rm.lock.Unlock()

	for lessonID, room := range rooms {
		for _, expired := range room.registry.Sweep(rm.heartbeatWindow) {
			log.Warn().Str("service", "rooms").
				Str("lessonID", string(lessonID)).
				Str("participantID", string(expired.ID)).
				Msg("participant expired without leave")

			telemetry.ParticipantLeft()

			if err := rm.publisher.PublishRoom(lessonID, rpc.NewLeaveRpc(expired.ID)); err != nil {
				log.Error().Err(err).Str("service", "rooms").Str("lessonID", string(lessonID)).Msg("broadcast eviction")
			}
			rm.notifier.ParticipantLeft(lessonID, expired.ID)
		}
	}
}
