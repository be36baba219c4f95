package notify

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/lumaclass/liveroom/internal/core"
)

// LessonEventsSubject carries room lifecycle events to the back-office
// notification consumers (toasts, attendance dashboards).
const LessonEventsSubject = "lessons.events"

const (
	EventStreamStarted     = "stream.started"
	EventStreamEnded       = "stream.ended"
	EventParticipantJoined = "participant.joined"
	EventParticipantLeft   = "participant.left"
)

// Event is the wire payload published for every room transition
type Event struct {
	Type            string             `json:"type"`
	LessonID        core.LessonID      `json:"lesson_id"`
	ParticipantID   core.ParticipantID `json:"participant_id,omitempty"`
	ParticipantName string             `json:"participant_name,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
}

// Conn is the slice of the NATS connection the notifier uses; *nats.Conn
// satisfies it
type Conn interface {
	Publish(subject string, data []byte) error
}

// LessonNotifier publishes room events fire-and-forget: a publish failure is
// logged and never surfaces to the room handlers.
type LessonNotifier struct {
	nc Conn
}

func New(natsAddr string) (*LessonNotifier, error) {
	nc, err := nats.Connect(natsAddr, nats.NoEcho())
	if err != nil {
		return nil, err
	}

	return NewWithConn(nc), nil
}

func NewWithConn(nc Conn) *LessonNotifier {
	return &LessonNotifier{nc: nc}
}

func (n *LessonNotifier) StreamStarted(lessonID core.LessonID) {
	n.publish(Event{Type: EventStreamStarted, LessonID: lessonID})
}

func (n *LessonNotifier) StreamEnded(lessonID core.LessonID) {
	n.publish(Event{Type: EventStreamEnded, LessonID: lessonID})
}

func (n *LessonNotifier) ParticipantJoined(lessonID core.LessonID, participant *core.Participant) {
	n.publish(Event{
		Type:            EventParticipantJoined,
		LessonID:        lessonID,
		ParticipantID:   participant.ID,
		ParticipantName: participant.Name,
	})
}

func (n *LessonNotifier) ParticipantLeft(lessonID core.LessonID, participantID core.ParticipantID) {
	n.publish(Event{
		Type:          EventParticipantLeft,
		LessonID:      lessonID,
		ParticipantID: participantID,
	})
}

func (n *LessonNotifier) publish(event Event) {
	event.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("service", "notify").Msg("marshal lesson event")
		return
	}

	if err := n.nc.Publish(LessonEventsSubject, payload); err != nil {
		log.Error().Err(err).Str("service", "notify").Str("eventType", event.Type).Msg("publish lesson event")
	}
}
