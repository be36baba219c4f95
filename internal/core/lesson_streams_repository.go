package core

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// LessonStreamsDBStorer persists the live_stream_status field of the lesson row.
// Joining clients read the persisted status instead of replaying signaling history.
type LessonStreamsDBStorer interface {
	Find(lessonID LessonID) (*StreamSession, error)
	SetStatus(lessonID LessonID, status StreamStatus) error
}

type LessonStreamsRepository struct {
	db *sqlx.DB
}

func NewLessonStreamsRepository(db *sqlx.DB) LessonStreamsDBStorer {
	return &LessonStreamsRepository{
		db: db,
	}
}

// Find returns the stream session of the lesson. A lesson that has never been
// streamed reads as waiting.
func (r *LessonStreamsRepository) Find(lessonID LessonID) (*StreamSession, error) {
	session := &StreamSession{}

	err := r.db.Get(session,
		`SELECT
			id AS lesson_id,
			COALESCE(live_stream_status, 'waiting') AS live_stream_status,
			COALESCE(instructor_id, '') AS instructor_id
		FROM lessons
		WHERE id = $1 LIMIT 1`,
		string(lessonID),
	)
	if err == sql.ErrNoRows {
		return &StreamSession{LessonID: lessonID, Status: StreamWaiting}, nil
	}
	if err != nil {
		return nil, err
	}

	return session, nil
}

func (r *LessonStreamsRepository) SetStatus(lessonID LessonID, status StreamStatus) error {
	_, err := r.db.Exec(
		`UPDATE lessons SET
			live_stream_status = $1,
			updated_at = NOW()
		WHERE id = $2`,
		string(status),
		string(lessonID),
	)
	return err
}
