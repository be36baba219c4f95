package roster

import (
	"sort"
	"sync"
	"time"

	"github.com/lumaclass/liveroom/internal/core"
)

type EventType string

const (
	ParticipantJoined  EventType = "joined"
	ParticipantUpdated EventType = "updated"
	ParticipantLeft    EventType = "left"
	ConnectionLost     EventType = "connection_lost"
)

// Event describes one roster change, delivered to subscribers in the order
// the registry applied it.
type Event struct {
	Type        EventType
	Participant core.Participant
}

// Registry is the canonical deduplicated view of who is in the room. All
// mutation funnels through the event loop that owns it; the lock only guards
// snapshot reads taken from other goroutines.
type Registry struct {
	lock         sync.RWMutex
	participants map[core.ParticipantID]*core.Participant
	subscribers  []chan Event

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[core.ParticipantID]*core.Participant),
		now:          time.Now,
	}
}

// Upsert is idempotent: a join with an id already present replaces the entry
// instead of duplicating it. The latest announced state wins.
func (r *Registry) Upsert(participant *core.Participant) {
	p := *participant
	p.LastSeenAt = r.now()

	r.lock.Lock()
	_, rejoin := r.participants[p.ID]
	r.participants[p.ID] = &p
	r.lock.Unlock()

	eventType := ParticipantJoined
	if rejoin {
		eventType = ParticipantUpdated
	}
	r.notify(Event{Type: eventType, Participant: p})
}

func (r *Registry) Remove(id core.ParticipantID) {
	r.lock.Lock()
	p, ok := r.participants[id]
	if ok {
		delete(r.participants, id)
	}
	r.lock.Unlock()

	if ok {
		r.notify(Event{Type: ParticipantLeft, Participant: *p})
	}
}

// ApplyMediaFlags is a partial update. An unknown id is ignored: a late or
// duplicate presence message after a leave must not resurrect the entry.
func (r *Registry) ApplyMediaFlags(id core.ParticipantID, flags core.MediaFlags) {
	r.lock.Lock()
	p, ok := r.participants[id]
	if !ok {
		r.lock.Unlock()
		return
	}

	if flags.AudioEnabled != nil {
		p.AudioEnabled = *flags.AudioEnabled
	}
	if flags.VideoEnabled != nil {
		p.VideoEnabled = *flags.VideoEnabled
	}
	if flags.ScreenSharing != nil {
		p.ScreenSharing = *flags.ScreenSharing
	}
	p.LastSeenAt = r.now()
	snapshot := *p
	r.lock.Unlock()

	r.notify(Event{Type: ParticipantUpdated, Participant: snapshot})
}

// MarkLost flags a participant whose peer link failed repeatedly. The entry
// stays until an explicit leave or the heartbeat window expires.
func (r *Registry) MarkLost(id core.ParticipantID) {
	r.lock.Lock()
	p, ok := r.participants[id]
	if !ok {
		r.lock.Unlock()
		return
	}
	p.ConnectionLost = true
	snapshot := *p
	r.lock.Unlock()

	r.notify(Event{Type: ConnectionLost, Participant: snapshot})
}

// Touch refreshes the heartbeat clock of a participant
func (r *Registry) Touch(id core.ParticipantID) {
	r.lock.Lock()
	if p, ok := r.participants[id]; ok {
		p.LastSeenAt = r.now()
	}
	r.lock.Unlock()
}

// Sweep removes every participant that has been silent for longer than the
// window. This is the guard against ungraceful disconnects where no leave
// message could be sent.
func (r *Registry) Sweep(window time.Duration) []core.Participant {
	deadline := r.now().Add(-window)

	r.lock.Lock()
	var expired []core.Participant
	for id, p := range r.participants {
		if p.LastSeenAt.Before(deadline) {
			expired = append(expired, *p)
			delete(r.participants, id)
		}
	}
	r.lock.Unlock()

	for _, p := range expired {
		r.notify(Event{Type: ParticipantLeft, Participant: p})
	}

	return expired
}

func (r *Registry) Get(id core.ParticipantID) (core.Participant, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	p, ok := r.participants[id]
	if !ok {
		return core.Participant{}, false
	}
	return *p, true
}

// Participants returns a stable-ordered snapshot of the roster
func (r *Registry) Participants() []*core.Participant {
	r.lock.RLock()
	snapshot := make([]*core.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		clone := *p
		snapshot = append(snapshot, &clone)
	}
	r.lock.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].ID < snapshot[j].ID
	})

	return snapshot
}

func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return len(r.participants)
}

// Subscribe returns a buffered channel of roster changes. Slow consumers
// drop events instead of blocking the registry.
func (r *Registry) Subscribe() <-chan Event {
	ch := make(chan Event, 64)

	r.lock.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.lock.Unlock()

	return ch
}

func (r *Registry) notify(event Event) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
