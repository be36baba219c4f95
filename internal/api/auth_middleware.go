package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	firebase "github.com/isqad/firebase-auth-service/pkg/service"
	"google.golang.org/grpc"

	"github.com/lumaclass/liveroom/internal/core"
)

type ctxKey string

const (
	// ParticipantContextKey is used for extract the joined user from request context
	ParticipantContextKey ctxKey = "current_participant"
)

// AuthFailFunc is function that is called when authentication failed
type AuthFailFunc func(w http.ResponseWriter, r *http.Request, err error)

// AuthHandler is optional handler for mocking in tests
type AuthHandler func(next http.Handler) http.Handler

var (
	xAuth             = http.CanonicalHeaderKey("X-Auth")
	ErrEmptyAuthToken = errors.New("empty auth token")
)

type FirebaseAuth struct {
	Addr         string
	AuthFailFunc AuthFailFunc
	StubHandler  AuthHandler

	participants core.ParticipantsDBStorer
}

func NewFirebaseAuth(participants core.ParticipantsDBStorer) *FirebaseAuth {
	return &FirebaseAuth{
		participants: participants,
	}
}

// Middleware is a middleware that verifies token from Firebase Auth
func (m *FirebaseAuth) Middleware() AuthHandler {
	if m.StubHandler != nil {
		return m.StubHandler
	}

	return m.defaultMiddleware()
}

func (m *FirebaseAuth) defaultMiddleware() AuthHandler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(xAuth)
			if token == "" {
				m.authFailed(w, r, ErrEmptyAuthToken)
				return
			}

			conn, err := grpc.Dial(m.Addr, []grpc.DialOption{
				grpc.WithInsecure(),
				grpc.WithBlock(),
			}...)
			if err != nil {
				m.authFailed(w, r, err)
				return
			}
			defer conn.Close()

			authClient := firebase.NewAuthClient(conn)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			t, err := authClient.Verify(ctx, &firebase.Token{Token: token})
			if err != nil {
				m.authFailed(w, r, err)
				return
			}

			participant, err := m.participants.FindByUID(t.GetUserId())
			if err != nil {
				m.authFailed(w, r, err)
				return
			}

			ctx = context.WithValue(r.Context(), ParticipantContextKey, participant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *FirebaseAuth) authFailed(w http.ResponseWriter, r *http.Request, err error) {
	if m.AuthFailFunc != nil {
		m.AuthFailFunc(w, r, err)
	} else {
		w.WriteHeader(http.StatusUnauthorized)
	}
}

// ParticipantFromRequest extracts the authenticated participant from the
// request context
func ParticipantFromRequest(r *http.Request) (*core.Participant, error) {
	participant, ok := r.Context().Value(ParticipantContextKey).(*core.Participant)
	if !ok {
		return nil, errors.New("can't get participant from request context")
	}

	return participant, nil
}
