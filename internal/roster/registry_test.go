package roster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lumaclass/liveroom/internal/core"
)

func boolPtr(v bool) *bool {
	return &v
}

func TestUpsertIsIdempotent(t *testing.T) {
	registry := NewRegistry()

	registry.Upsert(&core.Participant{ID: "user-1", Name: "Alice", AudioEnabled: true})
	registry.Upsert(&core.Participant{ID: "user-1", Name: "Alice", AudioEnabled: false})

	assert.Equal(t, 1, registry.Len())

	p, ok := registry.Get("user-1")
	assert.Equal(t, true, ok)
	// the latest announced state wins
	assert.Equal(t, false, p.AudioEnabled)
}

func TestApplyMediaFlags(t *testing.T) {
	registry := NewRegistry()
	registry.Upsert(&core.Participant{ID: "user-1", AudioEnabled: true, VideoEnabled: true})

	t.Run("partial update leaves absent flags untouched", func(t *testing.T) {
		registry.ApplyMediaFlags("user-1", core.MediaFlags{ScreenSharing: boolPtr(true)})

		p, _ := registry.Get("user-1")
		assert.Equal(t, true, p.AudioEnabled)
		assert.Equal(t, true, p.VideoEnabled)
		assert.Equal(t, true, p.ScreenSharing)
	})

	t.Run("unknown id is ignored", func(t *testing.T) {
		registry.ApplyMediaFlags("gone", core.MediaFlags{AudioEnabled: boolPtr(false)})
		assert.Equal(t, 1, registry.Len())
	})

	t.Run("late flags update does not resurrect a removed entry", func(t *testing.T) {
		registry.Remove("user-1")
		registry.ApplyMediaFlags("user-1", core.MediaFlags{AudioEnabled: boolPtr(false)})
		assert.Equal(t, 0, registry.Len())
	})
}

func TestMarkLostKeepsEntry(t *testing.T) {
	registry := NewRegistry()
	registry.Upsert(&core.Participant{ID: "user-1"})
	registry.Upsert(&core.Participant{ID: "user-2"})

	registry.MarkLost("user-1")

	assert.Equal(t, 2, registry.Len())
	p, _ := registry.Get("user-1")
	assert.Equal(t, true, p.ConnectionLost)

	other, _ := registry.Get("user-2")
	assert.Equal(t, false, other.ConnectionLost)
}

func TestSweepRemovesSilentParticipants(t *testing.T) {
	registry := NewRegistry()

	current := time.Now()
	registry.now = func() time.Time { return current }

	registry.Upsert(&core.Participant{ID: "silent"})
	registry.Upsert(&core.Participant{ID: "alive"})

	current = current.Add(20 * time.Second)
	registry.Touch("alive")

	expired := registry.Sweep(15 * time.Second)

	assert.Equal(t, 1, len(expired))
	assert.Equal(t, core.ParticipantID("silent"), expired[0].ID)
	assert.Equal(t, 1, registry.Len())

	_, ok := registry.Get("alive")
	assert.Equal(t, true, ok)
}

func TestSubscribeObservesMutationOrder(t *testing.T) {
	registry := NewRegistry()
	events := registry.Subscribe()

	registry.Upsert(&core.Participant{ID: "user-1"})
	registry.ApplyMediaFlags("user-1", core.MediaFlags{AudioEnabled: boolPtr(false)})
	registry.Remove("user-1")

	assert.Equal(t, ParticipantJoined, (<-events).Type)
	assert.Equal(t, ParticipantUpdated, (<-events).Type)
	assert.Equal(t, ParticipantLeft, (<-events).Type)
}

func TestParticipantsSnapshotIsDetached(t *testing.T) {
	registry := NewRegistry()
	registry.Upsert(&core.Participant{ID: "b"})
	registry.Upsert(&core.Participant{ID: "a"})

	snapshot := registry.Participants()
	assert.Equal(t, 2, len(snapshot))
	assert.Equal(t, core.ParticipantID("a"), snapshot[0].ID)

	snapshot[0].Name = "mutated"
	p, _ := registry.Get("a")
	assert.Equal(t, "", p.Name)
}
