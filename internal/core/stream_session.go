package core

// StreamStatus is the lifecycle state of a lesson's live stream
type StreamStatus string

const (
	StreamWaiting StreamStatus = "waiting"
	StreamLive    StreamStatus = "live"
	// StreamEnded is terminal: no session may return to waiting or live
	StreamEnded StreamStatus = "ended"
)

func (s StreamStatus) Valid() bool {
	switch s {
	case StreamWaiting, StreamLive, StreamEnded:
		return true
	}
	return false
}

// StreamSession is the per-lesson stream row consumed by re-joining clients
type StreamSession struct {
	LessonID     LessonID      `json:"lesson_id" db:"lesson_id"`
	Status       StreamStatus  `json:"status" db:"live_stream_status"`
	InstructorID ParticipantID `json:"instructor_id" db:"instructor_id"`
}
