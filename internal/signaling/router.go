package signaling

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/lumaclass/liveroom/internal/core"
	"github.com/lumaclass/liveroom/internal/signaling/rpc"
)

var (
	errConvertJoin         = errors.New("can't convert to join rpc")
	errConvertLeave        = errors.New("can't convert to leave rpc")
	errConvertPresence     = errors.New("can't convert to presence rpc")
	errConvertSDP          = errors.New("can't convert to sdp rpc")
	errConvertIceCandidate = errors.New("can't convert to ice candidate rpc")
	errConvertChat         = errors.New("can't convert to chat rpc")
	errUndefinedMethod     = errors.New("undefined method")
)

// Router subscribes to the server channel and dispatches every inbound RPC to
// the registered callback. All roster and lifecycle mutation happens inside
// these callbacks, one message at a time, which keeps the single-writer rule
// without per-entry locks.
type Router struct {
	EventsSubscriber Subscriber
	subscription     Bus

	stopped chan struct{}

	onJoin         func(core.LessonID, *core.Participant) error
	onLeave        func(core.LessonID, core.ParticipantID) error
	onPresence     func(core.LessonID, rpc.PresenceParams) error
	onHeartbeat    func(core.LessonID, core.ParticipantID) error
	onOffer        func(core.LessonID, rpc.SDPParams) error
	onAnswer       func(core.LessonID, rpc.SDPParams) error
	onICECandidate func(core.LessonID, rpc.ICECandidateParams) error
	onChat         func(core.LessonID, core.ParticipantID, *core.ChatMessage) error
	onStartStream  func(core.LessonID, core.ParticipantID) error
	onEndStream    func(core.LessonID, core.ParticipantID) error
}

func NewRouter(sub Subscriber) (*Router, error) {
	router := &Router{
		EventsSubscriber: sub,
	}
	subscription, err := router.EventsSubscriber.SubscribeServer()
	if err != nil {
		return nil, err
	}
	router.subscription = subscription

	return router, nil
}

func (router *Router) Start() <-chan struct{} {
	log.Debug().Str("service", "router").Msg("start")

	ready := make(chan struct{})
	router.stopped = make(chan struct{})

	go func() {
		defer close(router.stopped)

		channel := router.subscription.Channel()
		close(ready)

		for msg := range channel {
			if err := router.dispatch(msg.Payload); err != nil {
				log.Error().Err(err).Str("service", "router").Msg("")
			}
		}
	}()

	return ready
}

func (router *Router) Stop() <-chan struct{} {
	if err := router.subscription.Close(); err != nil {
		log.Error().Err(err).Str("service", "router").Msg("close subscription")
	}
	return router.stopped
}

func (router *Router) dispatch(payload string) error {
	lessonID, participantID, r, err := parseServerMessage(payload)
	if err != nil {
		return err
	}

	switch r.GetMethod() {
	case rpc.JoinMethod:
		msg, ok := r.(*rpc.JoinRpc)
		if !ok {
			return errConvertJoin
		}
		// the bridge identity wins over whatever the client claimed
		msg.Params.ID = participantID

		return router.onJoin(lessonID, msg.Params)
	case rpc.LeaveMethod:
		if _, ok := r.(*rpc.LeaveRpc); !ok {
			return errConvertLeave
		}

		return router.onLeave(lessonID, participantID)
	case rpc.PresenceMethod:
		msg, ok := r.(*rpc.PresenceRpc)
		if !ok {
			return errConvertPresence
		}
		msg.Params.ParticipantID = participantID

		return router.onPresence(lessonID, msg.Params)
	case rpc.HeartbeatMethod:
		return router.onHeartbeat(lessonID, participantID)
	case rpc.SDPOfferMethod:
		msg, ok := r.(*rpc.SDPRpc)
		if !ok {
			return errConvertSDP
		}
		msg.Params.From = participantID

		return router.onOffer(lessonID, msg.Params)
	case rpc.SDPAnswerMethod:
		msg, ok := r.(*rpc.SDPRpc)
		if !ok {
			return errConvertSDP
		}
		msg.Params.From = participantID

		return router.onAnswer(lessonID, msg.Params)
	case rpc.ICECandidateMethod:
		msg, ok := r.(*rpc.ICECandidateRpc)
		if !ok {
			return errConvertIceCandidate
		}
		msg.Params.From = participantID

		return router.onICECandidate(lessonID, msg.Params)
	case rpc.ChatMethod:
		msg, ok := r.(*rpc.ChatRpc)
		if !ok {
			return errConvertChat
		}

		return router.onChat(lessonID, participantID, msg.Params)
	case rpc.StartStreamMethod:
		return router.onStartStream(lessonID, participantID)
	case rpc.EndStreamMethod:
		return router.onEndStream(lessonID, participantID)
	default:
		log.Error().Err(errUndefinedMethod).Str("rpcMethod", string(r.GetMethod())).Str("service", "router").Msg("")
		return nil
	}
}

func parseServerMessage(payload string) (core.LessonID, core.ParticipantID, rpc.Rpc, error) {
	envelope := &ServerMessage{}
	if err := json.Unmarshal([]byte(payload), envelope); err != nil {
		return "", "", nil, err
	}

	if envelope.ParticipantID == "" || envelope.LessonID == "" {
		return "", "", nil, rpc.ErrMalformedRpc
	}

	r, err := rpc.FromReader(bytes.NewReader(envelope.Rpc))
	if err != nil {
		return "", "", nil, err
	}

	return envelope.LessonID, envelope.ParticipantID, r, nil
}

func (router *Router) OnJoin(callback func(core.LessonID, *core.Participant) error) {
	router.onJoin = callback
}

func (router *Router) OnLeave(callback func(core.LessonID, core.ParticipantID) error) {
	router.onLeave = callback
}

func (router *Router) OnPresence(callback func(core.LessonID, rpc.PresenceParams) error) {
	router.onPresence = callback
}

func (router *Router) OnHeartbeat(callback func(core.LessonID, core.ParticipantID) error) {
	router.onHeartbeat = callback
}

func (router *Router) OnOffer(callback func(core.LessonID, rpc.SDPParams) error) {
	router.onOffer = callback
}

func (router *Router) OnAnswer(callback func(core.LessonID, rpc.SDPParams) error) {
	router.onAnswer = callback
}

func (router *Router) OnICECandidate(callback func(core.LessonID, rpc.ICECandidateParams) error) {
	router.onICECandidate = callback
}

func (router *Router) OnChat(callback func(core.LessonID, core.ParticipantID, *core.ChatMessage) error) {
	router.onChat = callback
}

func (router *Router) OnStartStream(callback func(core.LessonID, core.ParticipantID) error) {
	router.onStartStream = callback
}

func (router *Router) OnEndStream(callback func(core.LessonID, core.ParticipantID) error) {
	router.onEndStream = callback
}
