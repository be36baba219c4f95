package core

import (
	"github.com/jmoiron/sqlx"
)

// ParticipantsDBStorer resolves an authenticated identity into the LMS user
type ParticipantsDBStorer interface {
	FindByUID(uid string) (*Participant, error)
}

type ParticipantsRepository struct {
	db *sqlx.DB
}

func NewParticipantsRepository(db *sqlx.DB) ParticipantsDBStorer {
	return &ParticipantsRepository{
		db: db,
	}
}

func (r *ParticipantsRepository) FindByUID(uid string) (*Participant, error) {
	participant := &Participant{}

	err := r.db.Get(participant,
		`SELECT
			id AS user_id,
			name AS user_name
		FROM users
		WHERE firebase_uid = $1 LIMIT 1`,
		uid,
	)
	if err != nil {
		return nil, err
	}

	return participant, nil
}
