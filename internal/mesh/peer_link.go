package mesh

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/lumaclass/liveroom/internal/config"
	"github.com/lumaclass/liveroom/internal/core"
	"github.com/lumaclass/liveroom/internal/telemetry"
)

// Signaler carries negotiation messages to one addressed peer
type Signaler interface {
	SendOffer(to core.ParticipantID, sdp webrtc.SessionDescription) error
	SendAnswer(to core.ParticipantID, sdp webrtc.SessionDescription) error
	SendICECandidate(to core.ParticipantID, candidate webrtc.ICECandidateInit) error
}

// PeerLink owns the single connection to one remote participant and the
// negotiation state for that pair. It holds only ids, never a reference back
// into the pool, so teardown needs no cycle breaking.
type PeerLink struct {
	localID  core.ParticipantID
	remoteID core.ParticipantID

	pc       *webrtc.PeerConnection
	signaler Signaler

	lock              sync.Mutex
	pendingCandidates []webrtc.ICECandidateInit
	audioSender       *webrtc.RTPSender
	videoSender       *webrtc.RTPSender
	negotiations      int
	iceRestarts       int
	maxICERestarts    int
	debounce          *time.Timer
	debounceInterval  time.Duration
	closed            bool

	// onLost fires after the retry budget is spent; the pool degrades the
	// participant without touching any other link
	onLost func(core.ParticipantID)
}

type LinkParams struct {
	LocalID  core.ParticipantID
	RemoteID core.ParticipantID
	Config   *config.WebRTCConfig
	Peer     config.PeerConfig
	Signaler Signaler
	OnLost   func(core.ParticipantID)

	AudioTrack webrtc.TrackLocal
	VideoTrack webrtc.TrackLocal
}

func NewPeerLink(params LinkParams) (*PeerLink, error) {
	mediaEngine, err := newMediaEngine(params.Peer.EnabledCodecs, params.Config.Publisher)
	if err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithSettingEngine(params.Config.SettingEngine),
	)
	pc, err := api.NewPeerConnection(params.Config.Configuration)
	if err != nil {
		return nil, err
	}

	link := &PeerLink{
		localID:           params.LocalID,
		remoteID:          params.RemoteID,
		pc:                pc,
		signaler:          params.Signaler,
		pendingCandidates: make([]webrtc.ICECandidateInit, 0),
		maxICERestarts:    params.Peer.MaxICERestarts,
		debounceInterval:  params.Peer.NegotiationDebounce,
		onLost:            params.OnLost,
	}

	if err := link.publishLocalTracks(params.AudioTrack, params.VideoTrack); err != nil {
		pc.Close()
		return nil, err
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		if err := link.signaler.SendICECandidate(link.remoteID, candidate.ToJSON()); err != nil {
			log.Error().Err(err).Str("service", "mesh").Str("remoteID", string(link.remoteID)).Msg("send ICE candidate")
		}
	})
	pc.OnConnectionStateChange(link.handleConnectionStateChange)

	return link, nil
}

func (l *PeerLink) publishLocalTracks(audio, video webrtc.TrackLocal) error {
	if audio != nil {
		sender, err := l.pc.AddTrack(audio)
		if err != nil {
			return err
		}
		l.audioSender = sender
	} else {
		// still receive the remote side even when publishing nothing
		if _, err := l.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			return err
		}
	}

	if video != nil {
		sender, err := l.pc.AddTrack(video)
		if err != nil {
			return err
		}
		l.videoSender = sender
	} else {
		if _, err := l.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			return err
		}
	}

	return nil
}

// Offer starts a negotiation round as the discovering side
func (l *PeerLink) Offer() error {
	return l.negotiate(false)
}

func (l *PeerLink) negotiate(iceRestart bool) error {
	l.lock.Lock()
	if l.closed {
		l.lock.Unlock()
		return nil
	}
	l.negotiations++
	l.lock.Unlock()

	telemetry.NegotiationStarted()

	offer, err := l.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return err
	}

	return l.signaler.SendOffer(l.remoteID, *l.pc.LocalDescription())
}

// HandleOffer answers a remote negotiation round
func (l *PeerLink) HandleOffer(sdp webrtc.SessionDescription) error {
	if err := l.setRemoteDescription(sdp); err != nil {
		return err
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return err
	}

	return l.signaler.SendAnswer(l.remoteID, *l.pc.LocalDescription())
}

func (l *PeerLink) HandleAnswer(sdp webrtc.SessionDescription) error {
	return l.setRemoteDescription(sdp)
}

// AddICECandidate applies a candidate, buffering it until the remote
// description is set and flushing the buffer right after.
func (l *PeerLink) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	if l.pc.RemoteDescription() != nil {
		return l.pc.AddICECandidate(candidate)
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	l.pendingCandidates = append(l.pendingCandidates, candidate)

	return nil
}

func (l *PeerLink) setRemoteDescription(sdp webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(sdp); err != nil {
		return err
	}

	l.lock.Lock()
	pending := l.pendingCandidates
	l.pendingCandidates = make([]webrtc.ICECandidateInit, 0)
	l.lock.Unlock()

	for _, candidate := range pending {
		if err := l.pc.AddICECandidate(candidate); err != nil {
			log.Error().Err(err).Str("service", "mesh").Str("remoteID", string(l.remoteID)).Msg("flush pending candidate")
		}
	}

	return nil
}

// ReplaceVideoTrack swaps the published video track on the existing sender,
// avoiding a new negotiation round. Only when the link has never published
// video does it fall back to adding a track and a debounced renegotiation.
func (l *PeerLink) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	l.lock.Lock()
	sender := l.videoSender
	l.lock.Unlock()

	if sender != nil {
		return sender.ReplaceTrack(track)
	}

	if track == nil {
		return nil
	}

	newSender, err := l.pc.AddTrack(track)
	if err != nil {
		return err
	}

	l.lock.Lock()
	l.videoSender = newSender
	l.lock.Unlock()

	l.scheduleNegotiation()

	return nil
}

// scheduleNegotiation collapses rapid track changes into one offer exchange
func (l *PeerLink) scheduleNegotiation() {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.closed {
		return
	}
	if l.debounce != nil {
		l.debounce.Stop()
	}
	l.debounce = time.AfterFunc(l.debounceInterval, func() {
		if err := l.negotiate(false); err != nil {
			log.Error().Err(err).Str("service", "mesh").Str("remoteID", string(l.remoteID)).Msg("debounced negotiation")
		}
	})
}

func (l *PeerLink) handleConnectionStateChange(state webrtc.PeerConnectionState) {
	log.Debug().Str("service", "mesh").Str("remoteID", string(l.remoteID)).Str("state", state.String()).Msg("connection state changed")

	switch state {
	case webrtc.PeerConnectionStateConnected:
		telemetry.ServiceOperationCounter.WithLabelValues("peer_link", "success", "").Add(1)

		l.lock.Lock()
		l.iceRestarts = 0
		l.lock.Unlock()
	case webrtc.PeerConnectionStateFailed:
		telemetry.ServiceOperationCounter.WithLabelValues("peer_link", "error", "state_failed").Add(1)

		l.lock.Lock()
		if l.closed {
			l.lock.Unlock()
			return
		}
		l.iceRestarts++
		exhausted := l.iceRestarts > l.maxICERestarts
		l.lock.Unlock()

		if !exhausted {
			log.Warn().Str("service", "mesh").Str("remoteID", string(l.remoteID)).Msg("attempting ICE restart")
			if err := l.negotiate(true); err != nil {
				log.Error().Err(err).Str("service", "mesh").Str("remoteID", string(l.remoteID)).Msg("ICE restart")
			}
			return
		}

		// give up on this pair only; the rest of the mesh is unaffected
		l.Close()
		if l.onLost != nil {
			l.onLost(l.remoteID)
		}
	}
}

// Negotiations reports how many offer rounds this link has initiated
func (l *PeerLink) Negotiations() int {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.negotiations
}

// AudioTrack returns the currently published audio track of this link
func (l *PeerLink) AudioTrack() webrtc.TrackLocal {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.audioSender == nil {
		return nil
	}
	return l.audioSender.Track()
}

// VideoTrack returns the currently published video track of this link
func (l *PeerLink) VideoTrack() webrtc.TrackLocal {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.videoSender == nil {
		return nil
	}
	return l.videoSender.Track()
}

func (l *PeerLink) SignalingState() webrtc.SignalingState {
	return l.pc.SignalingState()
}

// OnTrack registers the remote media callback
func (l *PeerLink) OnTrack(callback func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	l.pc.OnTrack(callback)
}

// Close is idempotent. Closing the peer connection can block while gathering
// candidates, so it happens off the caller's goroutine.
func (l *PeerLink) Close() {
	l.lock.Lock()
	if l.closed {
		l.lock.Unlock()
		return
	}
	l.closed = true
	if l.debounce != nil {
		l.debounce.Stop()
	}
	l.lock.Unlock()

	go func() {
		if err := l.pc.Close(); err != nil {
			log.Error().Err(err).Str("service", "mesh").Str("remoteID", string(l.remoteID)).Msg("close peer connection")
		}
	}()
}
