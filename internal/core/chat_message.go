package core

import (
	"time"

	"github.com/google/uuid"
)

// MaxChatMessageLen bounds a single chat message payload
const MaxChatMessageLen = 2000

// ChatMessage is immutable once created. ParticipantName is denormalized
// at send time and does not track later renames.
type ChatMessage struct {
	ID              string        `json:"id"`
	ParticipantID   ParticipantID `json:"participant_id"`
	ParticipantName string        `json:"participant_name"`
	Message         string        `json:"message"`
	Timestamp       time.Time     `json:"timestamp"`
}

func NewChatMessage(sender *Participant, text string) *ChatMessage {
	return &ChatMessage{
		ID:              uuid.New().String(),
		ParticipantID:   sender.ID,
		ParticipantName: sender.Name,
		Message:         text,
		Timestamp:       time.Now().UTC(),
	}
}
