package lifecycle

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lumaclass/liveroom/internal/core"
)

var (
	// ErrUnauthorized is a local guard for non-instructor lifecycle actions.
	// It is never sent over the wire.
	ErrUnauthorized = errors.New("only the instructor may change the stream state")
	// ErrStreamEnded rejects any attempt to restart a terminal session
	ErrStreamEnded = errors.New("stream has ended")
	// ErrStreamNotLive rejects ending a stream that never went live
	ErrStreamNotLive = errors.New("stream is not live")
)

// StatusStore persists the lifecycle state so re-joining clients observe it
// without replaying signaling history.
type StatusStore interface {
	Find(lessonID core.LessonID) (*core.StreamSession, error)
	SetStatus(lessonID core.LessonID, status core.StreamStatus) error
}

// Controller is the waiting -> live -> ended state machine of one lesson,
// gated to the instructor role. An unexpected instructor disconnect does not
// transition anything: a dropped connection must not silently end the class.
type Controller struct {
	lessonID core.LessonID
	store    StatusStore

	// one pending transition at a time
	lock   sync.Mutex
	status core.StreamStatus
}

func NewController(lessonID core.LessonID, store StatusStore) (*Controller, error) {
	session, err := store.Find(lessonID)
	if err != nil {
		return nil, err
	}

	status := session.Status
	if !status.Valid() {
		status = core.StreamWaiting
	}

	return &Controller{
		lessonID: lessonID,
		store:    store,
		status:   status,
	}, nil
}

func (c *Controller) Status() core.StreamStatus {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.status
}

// Start moves waiting to live. Calling it when already live is a no-op.
func (c *Controller) Start(actor *core.Participant) error {
	if !actor.IsInstructor {
		return ErrUnauthorized
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	switch c.status {
	case core.StreamEnded:
		return ErrStreamEnded
	case core.StreamLive:
		return nil
	}

	if err := c.store.SetStatus(c.lessonID, core.StreamLive); err != nil {
		return err
	}
	c.status = core.StreamLive

	log.Info().Str("service", "lifecycle").Str("lessonID", string(c.lessonID)).Msg("stream started")

	return nil
}

// End moves live to ended, terminally. Ending twice is a no-op; a stream
// that never started has nothing to end.
func (c *Controller) End(actor *core.Participant) error {
	if !actor.IsInstructor {
		return ErrUnauthorized
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	switch c.status {
	case core.StreamEnded:
		return nil
	case core.StreamWaiting:
		return ErrStreamNotLive
	}

	if err := c.store.SetStatus(c.lessonID, core.StreamEnded); err != nil {
		return err
	}
	c.status = core.StreamEnded

	log.Info().Str("service", "lifecycle").Str("lessonID", string(c.lessonID)).Msg("stream ended")

	return nil
}

// Observe applies a transition announced by the signaling channel. The ended
// state stays terminal even against reordered announcements.
func (c *Controller) Observe(status core.StreamStatus) {
	if !status.Valid() {
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if c.status == core.StreamEnded {
		return
	}
	c.status = status
}
