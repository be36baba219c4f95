package ws

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isqad/melody"
	"github.com/rs/zerolog/log"

	"github.com/lumaclass/liveroom/internal/api"
	"github.com/lumaclass/liveroom/internal/core"
	"github.com/lumaclass/liveroom/internal/signaling"
	"github.com/lumaclass/liveroom/internal/signaling/rpc"
)

const (
	wsLessonSessionKey      = "lessonID"
	wsParticipantSessionKey = "participant"
	wsRoomSubSessionKey     = "roomSubscription"
	wsPeerSubSessionKey     = "peerSubscription"
)

var errNoSessionKey = errors.New("websocket session key missing")

// WsHandler upgrades the connection and subscribes the participant to the
// lesson fanout channel and to their own directed channel before the melody
// session starts pumping.
func WsHandler(websocket *melody.Melody, subscriber signaling.Subscriber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participant, err := api.ParticipantFromRequest(r)
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("no participant in request context")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		lessonID := core.LessonID(chi.URLParam(r, "lessonID"))
		if lessonID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		roomSub, err := subscriber.SubscribeRoom(lessonID)
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("subscribe room channel")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		peerSub, err := subscriber.SubscribePeer(lessonID, participant.ID)
		if err != nil {
			roomSub.Close()
			log.Error().Err(err).Str("service", "ws").Msg("subscribe peer channel")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		sessKeys := make(map[string]interface{})
		sessKeys[wsLessonSessionKey] = lessonID
		sessKeys[wsParticipantSessionKey] = participant
		sessKeys[wsRoomSubSessionKey] = roomSub
		sessKeys[wsPeerSubSessionKey] = peerSub

		if err := websocket.HandleRequestWithKeys(w, r, sessKeys); err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("handle websocket request")
		}
	}
}

// ConnectHandler starts the pumps that copy both subscriptions into the socket
func ConnectHandler() func(session *melody.Session) {
	return func(session *melody.Session) {
		roomSub, err := subscriptionFromSession(session, wsRoomSubSessionKey)
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("extract room subscription")
			session.Close()
			return
		}
		peerSub, err := subscriptionFromSession(session, wsPeerSubSessionKey)
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("extract peer subscription")
			session.Close()
			return
		}

		go pump(session, roomSub)
		go pump(session, peerSub)
	}
}

func pump(session *melody.Session, sub signaling.Bus) {
	for msg := range sub.Channel() {
		if err := session.Write([]byte(msg.Payload)); err != nil {
			// the session is gone, the disconnect handler cleans up
			return
		}
	}
}

// DisconnectHandler closes the subscriptions and synthesizes a leave so an
// abrupt socket drop still clears the roster entry
func DisconnectHandler(publisher signaling.Publisher) func(session *melody.Session) {
	return func(session *melody.Session) {
		for _, key := range []string{wsRoomSubSessionKey, wsPeerSubSessionKey} {
			if sub, err := subscriptionFromSession(session, key); err == nil {
				if err := sub.Close(); err != nil {
					log.Error().Err(err).Str("service", "ws").Msg("close subscription")
				}
			}
		}

		lessonID, participant, err := identityFromSession(session)
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("extract identity")
			return
		}

		if err := publisher.PublishServer(lessonID, participant.ID, rpc.NewLeaveRpc(participant.ID)); err != nil {
			log.Error().Err(err).Str("service", "ws").Str("participantID", string(participant.ID)).Msg("publish leave")
		}
	}
}

// HandleMessage forwards every client RPC to the server channel with the
// authenticated identity stamped on the envelope. Whatever ids the payload
// claims are overridden downstream.
func HandleMessage(publisher signaling.Publisher) func(session *melody.Session, msg []byte) {
	return func(session *melody.Session, msg []byte) {
		lessonID, participant, err := identityFromSession(session)
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("extract identity")
			session.Close()
			return
		}

		r, err := rpc.FromReader(bytes.NewReader(msg))
		if err != nil {
			log.Warn().Err(err).Str("service", "ws").Str("participantID", string(participant.ID)).Msg("malformed rpc")
			return
		}

		if err := publisher.PublishServer(lessonID, participant.ID, r); err != nil {
			log.Error().Err(err).Str("service", "ws").Str("participantID", string(participant.ID)).Msg("publish server rpc")
		}
	}
}

func subscriptionFromSession(session *melody.Session, key string) (signaling.Bus, error) {
	value, ok := session.Keys[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNoSessionKey, key)
	}
	sub, ok := value.(signaling.Bus)
	if !ok {
		return nil, fmt.Errorf("can't convert subscription: %+v", value)
	}
	return sub, nil
}

func identityFromSession(session *melody.Session) (core.LessonID, *core.Participant, error) {
	lessonValue, ok := session.Keys[wsLessonSessionKey]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", errNoSessionKey, wsLessonSessionKey)
	}
	lessonID, ok := lessonValue.(core.LessonID)
	if !ok {
		return "", nil, fmt.Errorf("can't convert lesson id: %+v", lessonValue)
	}

	participantValue, ok := session.Keys[wsParticipantSessionKey]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", errNoSessionKey, wsParticipantSessionKey)
	}
	participant, ok := participantValue.(*core.Participant)
	if !ok {
		return "", nil, fmt.Errorf("can't convert participant: %+v", participantValue)
	}

	return lessonID, participant, nil
}
