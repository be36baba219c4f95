package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/lumaclass/liveroom/internal/core"
)

type MockStreamsStorage struct {
	Sessions map[core.LessonID]*core.StreamSession
	MockErr  error
}

func (s *MockStreamsStorage) Find(lessonID core.LessonID) (*core.StreamSession, error) {
	if s.MockErr != nil {
		return nil, s.MockErr
	}
	if session, ok := s.Sessions[lessonID]; ok {
		return session, nil
	}
	return &core.StreamSession{LessonID: lessonID, Status: core.StreamWaiting}, nil
}

func (s *MockStreamsStorage) SetStatus(core.LessonID, core.StreamStatus) error {
	return nil
}

type MockParticipantsStorage struct {
	Participant *core.Participant
	MockErr     error
}

func (s *MockParticipantsStorage) FindByUID(string) (*core.Participant, error) {
	return s.Participant, s.MockErr
}

func stubbedAuth(participant *core.Participant) *FirebaseAuth {
	auth := NewFirebaseAuth(&MockParticipantsStorage{Participant: participant})
	auth.StubHandler = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ParticipantContextKey, participant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	return auth
}

func TestLessonStreamHandler(t *testing.T) {
	auth := stubbedAuth(&core.Participant{ID: "alice", Name: "Alice"})

	t.Run("returns the persisted stream state", func(t *testing.T) {
		r := chi.NewRouter()
		r.Use(auth.Middleware())

		streams := &MockStreamsStorage{
			Sessions: map[core.LessonID]*core.StreamSession{
				"L1": {LessonID: "L1", Status: core.StreamLive, InstructorID: "teacher"},
			},
		}
		r.Get("/api/v1/lessons/{lessonID}/stream", LessonStreamHandler(streams))

		ts := httptest.NewServer(r)
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/lessons/L1/stream")
		assert.Nil(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		session := &core.StreamSession{}
		assert.Nil(t, json.NewDecoder(resp.Body).Decode(session))
		assert.Equal(t, core.StreamLive, session.Status)
		assert.Equal(t, core.ParticipantID("teacher"), session.InstructorID)
	})

	t.Run("unstreamed lesson reads as waiting", func(t *testing.T) {
		r := chi.NewRouter()
		r.Use(auth.Middleware())
		r.Get("/api/v1/lessons/{lessonID}/stream", LessonStreamHandler(&MockStreamsStorage{}))

		ts := httptest.NewServer(r)
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/lessons/L9/stream")
		assert.Nil(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		session := &core.StreamSession{}
		assert.Nil(t, json.NewDecoder(resp.Body).Decode(session))
		assert.Equal(t, core.StreamWaiting, session.Status)
	})

	t.Run("internal server error if Find failed", func(t *testing.T) {
		r := chi.NewRouter()
		r.Use(auth.Middleware())
		r.Get("/api/v1/lessons/{lessonID}/stream", LessonStreamHandler(&MockStreamsStorage{MockErr: errors.New("boom")}))

		ts := httptest.NewServer(r)
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/api/v1/lessons/L1/stream")
		assert.Nil(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestMiddlewareRejectsEmptyToken(t *testing.T) {
	auth := NewFirebaseAuth(&MockParticipantsStorage{})

	r := chi.NewRouter()
	r.Use(auth.Middleware())
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	assert.Nil(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestParticipantFromRequest(t *testing.T) {
	participant := &core.Participant{ID: "alice"}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ParticipantFromRequest(req)
	assert.Error(t, err)

	ctx := context.WithValue(req.Context(), ParticipantContextKey, participant)
	got, err := ParticipantFromRequest(req.WithContext(ctx))
	assert.Nil(t, err)
	assert.Equal(t, participant, got)
}
