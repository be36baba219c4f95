package core

import (
	"time"
)

// ParticipantID identifies a joined user for the whole lifetime of a lesson session
type ParticipantID string

// LessonID is a reference to the lesson entity owned by the LMS back office
type LessonID string

// Participant is the roster view of one user in a live lesson room.
// The media flags reflect the last announced state of the client and
// are eventually consistent: a degraded network may leave them stale
// until the next presence update or the heartbeat sweep.
type Participant struct {
	ID            ParticipantID `json:"id" db:"user_id"`
	Name          string        `json:"name" db:"user_name"`
	IsInstructor  bool          `json:"is_instructor" db:"is_instructor"`
	AudioEnabled  bool          `json:"audio_enabled" db:"audio_enabled"`
	VideoEnabled  bool          `json:"video_enabled" db:"video_enabled"`
	ScreenSharing bool          `json:"screen_sharing" db:"-"`
	// ConnectionLost marks a participant whose peer link failed repeatedly.
	// The entry stays in the roster until an explicit leave or the heartbeat
	// window expires.
	ConnectionLost bool      `json:"connection_lost,omitempty" db:"-"`
	LastSeenAt     time.Time `json:"-" db:"-"`
}

// MediaFlags is a partial presence update: nil fields are left untouched
type MediaFlags struct {
	AudioEnabled  *bool `json:"audio_enabled,omitempty"`
	VideoEnabled  *bool `json:"video_enabled,omitempty"`
	ScreenSharing *bool `json:"screen_sharing,omitempty"`
}
