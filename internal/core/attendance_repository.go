package core

import (
	"github.com/jmoiron/sqlx"
)

// AttendanceDBStorer records who joined a lesson stream. A duplicate insert
// on rejoin is tolerated as a no-op, not an error.
type AttendanceDBStorer interface {
	Record(lessonID LessonID, participant *Participant) error
}

type AttendanceRepository struct {
	db *sqlx.DB
}

func NewAttendanceRepository(db *sqlx.DB) AttendanceDBStorer {
	return &AttendanceRepository{
		db: db,
	}
}

func (r *AttendanceRepository) Record(lessonID LessonID, participant *Participant) error {
	_, err := r.db.Exec(
		`INSERT INTO lesson_attendances
			(lesson_id, user_id, user_name, is_instructor, audio_enabled, video_enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT ON CONSTRAINT uniq_lesson_attendances_lesson_user DO NOTHING`,
		string(lessonID),
		string(participant.ID),
		participant.Name,
		participant.IsInstructor,
		participant.AudioEnabled,
		participant.VideoEnabled,
	)
	return err
}
