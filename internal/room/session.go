package room

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/lumaclass/liveroom/internal/chat"
	"github.com/lumaclass/liveroom/internal/config"
	"github.com/lumaclass/liveroom/internal/core"
	"github.com/lumaclass/liveroom/internal/lifecycle"
	"github.com/lumaclass/liveroom/internal/media"
	"github.com/lumaclass/liveroom/internal/mesh"
	"github.com/lumaclass/liveroom/internal/roster"
	"github.com/lumaclass/liveroom/internal/signaling/rpc"
)

var (
	ErrSessionClosed        = errors.New("session is closed")
	ErrSignalingUnreachable = errors.New("signaling channel unreachable")
)

// Conn is the signaling socket surface the session needs; *websocket.Conn
// satisfies it
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dial opens the signaling websocket for one lesson
func Dial(url string, header http.Header) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: 45 * time.Second}

	conn, resp, err := dialer.Dial(url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignalingUnreachable, err)
	}
	resp.Body.Close()

	return conn, nil
}

// Session is the client side of a live lesson room. One run-loop goroutine
// owns all state transitions: inbound signaling, user actions and the
// heartbeat ticker all funnel into it, so no handler ever races another.
type Session struct {
	lessonID core.LessonID
	self     *core.Participant

	conn      Conn
	writeLock sync.Mutex

	media    *media.Controller
	pool     *mesh.Pool
	registry *roster.Registry
	relay    *chat.Relay

	heartbeatInterval time.Duration

	stateLock sync.RWMutex
	status    core.StreamStatus

	actions chan func()
	inbound chan rpc.Rpc

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}

	onRemoteTrack func(core.ParticipantID, *webrtc.TrackRemote)
	onChatMessage func(*core.ChatMessage)
}

type SessionParams struct {
	LessonID core.LessonID
	Self     *core.Participant
	Conn     Conn
	Media    *media.Controller

	RTCConfig *config.WebRTCConfig
	Peer      config.PeerConfig

	HeartbeatInterval time.Duration

	// OnRemoteTrack receives media published by other participants; when nil
	// the session drains incoming packets itself
	OnRemoteTrack func(core.ParticipantID, *webrtc.TrackRemote)
	OnChatMessage func(*core.ChatMessage)
}

func NewSession(params SessionParams) *Session {
	s := &Session{
		lessonID:          params.LessonID,
		self:              params.Self,
		conn:              params.Conn,
		media:             params.Media,
		registry:          roster.NewRegistry(),
		heartbeatInterval: params.HeartbeatInterval,
		status:            core.StreamWaiting,
		actions:           make(chan func()),
		inbound:           make(chan rpc.Rpc, 64),
		stopped:           make(chan struct{}),
		done:              make(chan struct{}),
		onRemoteTrack:     params.OnRemoteTrack,
		onChatMessage:     params.OnChatMessage,
	}

	s.pool = mesh.NewPool(mesh.PoolParams{
		LocalID:    params.Self.ID,
		Config:     params.RTCConfig,
		Peer:       params.Peer,
		Signaler:   (*sessionSignaler)(s),
		OnPeerLost: s.registry.MarkLost,
		OnTrack:    s.handleRemoteTrack,
	})
	s.relay = chat.NewRelay(params.Self, (*sessionSignaler)(s), params.OnChatMessage)

	// screen share swaps propagate to every link without a caller in between
	s.media.OnVideoReplaced(s.pool.ReplaceVideoTrack)

	return s
}

// Start announces the join and spins up the reader and run loop. The roster
// snapshot and stream status arrive as regular inbound messages.
func (s *Session) Start() error {
	s.pool.SetLocalTracks(s.media.AudioTrack(), s.media.VideoTrack())
	s.registry.Upsert(s.self)

	if err := s.write(rpc.NewJoinRpc(s.self)); err != nil {
		return err
	}

	go s.read()
	go s.run()

	return nil
}

// Close tears the session down under any path: links, local media, socket.
// Safe to call more than once.
func (s *Session) Close() {
	s.signalStop()
	<-s.done
}

// Leave announces the departure before tearing down
func (s *Session) Leave() {
	if err := s.write(rpc.NewLeaveRpc(s.self.ID)); err != nil {
		log.Warn().Err(err).Str("service", "room").Msg("send leave")
	}
	s.Close()
}

func (s *Session) Participants() []*core.Participant {
	return s.registry.Participants()
}

func (s *Session) Messages() []*core.ChatMessage {
	return s.relay.Messages()
}

func (s *Session) Status() core.StreamStatus {
	s.stateLock.RLock()
	defer s.stateLock.RUnlock()

	return s.status
}

// ToggleAudio flips the mute flag. Senders stay attached: no negotiation
// happens, only a presence announcement.
func (s *Session) ToggleAudio() error {
	return s.do(func() error {
		enabled := !s.media.Enabled(media.AudioKind)
		s.media.SetEnabled(media.AudioKind, enabled)

		return s.announcePresence(core.MediaFlags{AudioEnabled: &enabled})
	})
}

func (s *Session) ToggleVideo() error {
	return s.do(func() error {
		enabled := !s.media.Enabled(media.VideoKind)
		s.media.SetEnabled(media.VideoKind, enabled)

		return s.announcePresence(core.MediaFlags{VideoEnabled: &enabled})
	})
}

func (s *Session) StartScreenShare() error {
	return s.do(func() error {
		if err := s.media.StartScreenShare(); err != nil {
			return err
		}

		sharing := true
		return s.announcePresence(core.MediaFlags{ScreenSharing: &sharing})
	})
}

func (s *Session) StopScreenShare() error {
	return s.do(func() error {
		s.media.StopScreenShare()

		sharing := false
		return s.announcePresence(core.MediaFlags{ScreenSharing: &sharing})
	})
}

// StartStream asks the server to take the lesson live. The gate mirrors the
// server's: only the instructor, and never out of the ended state.
func (s *Session) StartStream() error {
	return s.do(func() error {
		if !s.self.IsInstructor {
			return lifecycle.ErrUnauthorized
		}

		switch s.Status() {
		case core.StreamEnded:
			return lifecycle.ErrStreamEnded
		case core.StreamLive:
			return nil
		}

		return s.write(rpc.NewStartStreamRpc())
	})
}

func (s *Session) EndStream() error {
	return s.do(func() error {
		if !s.self.IsInstructor {
			return lifecycle.ErrUnauthorized
		}

		switch s.Status() {
		case core.StreamEnded:
			return nil
		case core.StreamWaiting:
			return lifecycle.ErrStreamNotLive
		}

		return s.write(rpc.NewEndStreamRpc())
	})
}

func (s *Session) SendChatMessage(text string) error {
	return s.do(func() error {
		_, err := s.relay.Send(text)
		return err
	})
}

// do runs fn on the loop goroutine and waits for its result
func (s *Session) do(fn func() error) error {
	reply := make(chan error, 1)

	select {
	case s.actions <- func() { reply <- fn() }:
	case <-s.stopped:
		return ErrSessionClosed
	}

	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) run() {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-s.actions:
			fn()
		case msg := <-s.inbound:
			s.handle(msg)
		case <-ticker.C:
			if err := s.write(rpc.NewHeartbeatRpc()); err != nil {
				log.Warn().Err(err).Str("service", "room").Msg("send heartbeat")
			}
		case <-s.stopped:
			s.teardown()
			close(s.done)
			return
		}
	}
}

func (s *Session) read() {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.signalStop()
			return
		}

		msg, err := rpc.FromReader(bytes.NewReader(payload))
		if err != nil {
			log.Warn().Err(err).Str("service", "room").Msg("decode signaling message")
			continue
		}

		select {
		case s.inbound <- msg:
		case <-s.stopped:
			return
		}
	}
}

func (s *Session) handle(msg rpc.Rpc) {
	switch m := msg.(type) {
	case *rpc.RosterRpc:
		s.handleRoster(m.Params.Participants)
	case *rpc.JoinRpc:
		if m.Params.ID == s.self.ID {
			return
		}
		s.registry.Upsert(m.Params)
	case *rpc.LeaveRpc:
		s.registry.Remove(m.Params.ParticipantID)
		s.pool.RemovePeer(m.Params.ParticipantID)
	case *rpc.PresenceRpc:
		s.registry.ApplyMediaFlags(m.Params.ParticipantID, m.Params.MediaFlags)
		s.registry.Touch(m.Params.ParticipantID)
	case *rpc.SDPRpc:
		s.handleSDP(m)
	case *rpc.ICECandidateRpc:
		if m.Params.To != s.self.ID {
			return
		}
		if err := s.pool.AddICECandidate(m.Params.From, m.Params.ICECandidateInit); err != nil {
			log.Error().Err(err).Str("service", "room").Str("from", string(m.Params.From)).Msg("add ICE candidate")
		}
	case *rpc.ChatRpc:
		s.relay.Deliver(m.Params)
	case *rpc.StreamStatusRpc:
		s.handleStreamStatus(m.Params.Status)
	default:
		log.Debug().Str("service", "room").Str("method", string(msg.GetMethod())).Msg("ignoring signaling message")
	}
}

// handleRoster opens a link to every participant already in the room. The
// joining side offers; the existing side answers when the offer lands.
func (s *Session) handleRoster(participants []*core.Participant) {
	for _, p := range participants {
		if p.ID == s.self.ID {
			continue
		}

		s.registry.Upsert(p)
		if err := s.pool.AddPeer(p.ID); err != nil {
			log.Error().Err(err).Str("service", "room").Str("remoteID", string(p.ID)).Msg("open peer link")
		}
	}

	if err := s.announcePresence(core.MediaFlags{
		AudioEnabled:  boolPtr(s.media.Enabled(media.AudioKind)),
		VideoEnabled:  boolPtr(s.media.Enabled(media.VideoKind)),
		ScreenSharing: boolPtr(s.media.ScreenSharing()),
	}); err != nil {
		log.Warn().Err(err).Str("service", "room").Msg("announce presence")
	}
}

func (s *Session) handleSDP(m *rpc.SDPRpc) {
	if m.Params.To != s.self.ID {
		return
	}

	var err error
	switch m.GetMethod() {
	case rpc.SDPOfferMethod:
		err = s.pool.HandleOffer(m.Params.From, m.Params.SessionDescription)
	case rpc.SDPAnswerMethod:
		err = s.pool.HandleAnswer(m.Params.From, m.Params.SessionDescription)
	}
	if err != nil {
		log.Error().Err(err).Str("service", "room").Str("from", string(m.Params.From)).Msg("apply session description")
	}
}

func (s *Session) handleStreamStatus(status core.StreamStatus) {
	s.stateLock.Lock()
	if s.status == core.StreamEnded {
		s.stateLock.Unlock()
		return
	}
	s.status = status
	s.stateLock.Unlock()

	if status == core.StreamEnded {
		s.signalStop()
	}
}

func (s *Session) handleRemoteTrack(id core.ParticipantID, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	if s.onRemoteTrack != nil {
		s.onRemoteTrack(id, track)
		return
	}

	// keep the transport flowing even when nobody renders the media
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				return
			}
		}
	}()
}

func (s *Session) announcePresence(flags core.MediaFlags) error {
	s.registry.ApplyMediaFlags(s.self.ID, flags)

	return s.write(rpc.NewPresenceRpc(s.self.ID, flags))
}

func (s *Session) write(r rpc.Rpc) error {
	payload, err := r.ToJSON()
	if err != nil {
		return err
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Session) signalStop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

func (s *Session) teardown() {
	s.pool.Close()
	s.media.Close()
	s.conn.Close()
}

// sessionSignaler lets the pool and the chat relay send through the session
// socket without exposing write on the public surface
type sessionSignaler Session

func (s *sessionSignaler) SendOffer(to core.ParticipantID, sdp webrtc.SessionDescription) error {
	return (*Session)(s).write(rpc.NewSDPOfferRpc(s.self.ID, to, sdp))
}

func (s *sessionSignaler) SendAnswer(to core.ParticipantID, sdp webrtc.SessionDescription) error {
	return (*Session)(s).write(rpc.NewSDPAnswerRpc(s.self.ID, to, sdp))
}

func (s *sessionSignaler) SendICECandidate(to core.ParticipantID, candidate webrtc.ICECandidateInit) error {
	return (*Session)(s).write(rpc.NewICECandidateRpc(s.self.ID, to, candidate))
}

func (s *sessionSignaler) PublishChat(msg *core.ChatMessage) error {
	return (*Session)(s).write(rpc.NewChatRpc(msg))
}

func boolPtr(v bool) *bool {
	return &v
}
