package mesh

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/lumaclass/liveroom/internal/config"
	"github.com/lumaclass/liveroom/internal/core"
)

var (
	errLinkExists = errors.New("peer link already exists")
	ErrNoLink     = errors.New("no peer link for participant")
)

// Pool maintains the mesh: one dedicated link per remote participant, all
// kept in sync with the local media tracks. Links live in an arena keyed by
// participant id; nothing outside the pool holds a link reference.
type Pool struct {
	localID  core.ParticipantID
	rtcCfg   *config.WebRTCConfig
	peerCfg  config.PeerConfig
	signaler Signaler

	lock       sync.RWMutex
	links      map[core.ParticipantID]*PeerLink
	audioTrack webrtc.TrackLocal
	videoTrack webrtc.TrackLocal
	closed     bool

	onPeerLost func(core.ParticipantID)
	onTrack    func(core.ParticipantID, *webrtc.TrackRemote, *webrtc.RTPReceiver)
}

type PoolParams struct {
	LocalID  core.ParticipantID
	Config   *config.WebRTCConfig
	Peer     config.PeerConfig
	Signaler Signaler

	// OnPeerLost fires when a link spends its retry budget; the registry
	// marks the participant instead of removing it
	OnPeerLost func(core.ParticipantID)
	// OnTrack delivers remote media keyed by the owning participant
	OnTrack func(core.ParticipantID, *webrtc.TrackRemote, *webrtc.RTPReceiver)
}

func NewPool(params PoolParams) *Pool {
	return &Pool{
		localID:    params.LocalID,
		rtcCfg:     params.Config,
		peerCfg:    params.Peer,
		signaler:   params.Signaler,
		links:      make(map[core.ParticipantID]*PeerLink),
		onPeerLost: params.OnPeerLost,
		onTrack:    params.OnTrack,
	}
}

// SetLocalTracks fixes the media published on every link opened afterwards
func (p *Pool) SetLocalTracks(audio, video webrtc.TrackLocal) {
	p.lock.Lock()
	p.audioTrack = audio
	p.videoTrack = video
	p.lock.Unlock()
}

// AddPeer opens the link for a newly discovered participant and sends the
// first offer. The discovering side always offers; the side that already has
// the peer in its roster answers when the offer arrives. That fixed rule
// avoids duplicate offer races without a central arbiter.
func (p *Pool) AddPeer(remoteID core.ParticipantID) error {
	link, err := p.createLink(remoteID)
	if err != nil {
		if err == errLinkExists {
			return nil
		}
		return err
	}

	return link.Offer()
}

// HandleOffer answers an incoming negotiation round, opening the link first
// if this side has not seen the peer yet.
func (p *Pool) HandleOffer(from core.ParticipantID, sdp webrtc.SessionDescription) error {
	link, err := p.createLink(from)
	if err != nil && err != errLinkExists {
		return err
	}
	if err == errLinkExists {
		link = p.link(from)
		if link == nil {
			return ErrNoLink
		}

		// glare: both sides discovered each other at once and offered. The
		// lexically smaller id keeps its offer, the other side starts over
		// as the answering side.
		if link.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
			if p.localID < from {
				log.Debug().Str("service", "mesh").Str("remoteID", string(from)).Msg("offer glare, keeping local offer")
				return nil
			}

			link.Close()
			p.removeLink(from)
			link, err = p.createLink(from)
			if err != nil {
				return err
			}
		}
	}

	return link.HandleOffer(sdp)
}

func (p *Pool) HandleAnswer(from core.ParticipantID, sdp webrtc.SessionDescription) error {
	link := p.link(from)
	if link == nil {
		return ErrNoLink
	}

	return link.HandleAnswer(sdp)
}

// AddICECandidate forwards a candidate to the owning link. Candidates for an
// unknown peer are dropped: they are late arrivals after a leave.
func (p *Pool) AddICECandidate(from core.ParticipantID, candidate webrtc.ICECandidateInit) error {
	link := p.link(from)
	if link == nil {
		return nil
	}

	return link.AddICECandidate(candidate)
}

// ReplaceVideoTrack swaps the published video track on every link. Sender
// reuse keeps this renegotiation-free on links that already publish video.
func (p *Pool) ReplaceVideoTrack(track webrtc.TrackLocal) {
	p.lock.Lock()
	p.videoTrack = track
	links := p.snapshot()
	p.lock.Unlock()

	for id, link := range links {
		if err := link.ReplaceVideoTrack(track); err != nil {
			log.Error().Err(err).Str("service", "mesh").Str("remoteID", string(id)).Msg("replace video track")
		}
	}
}

// RemovePeer tears down a single link, leaving the rest of the mesh alone
func (p *Pool) RemovePeer(remoteID core.ParticipantID) {
	p.lock.Lock()
	link, ok := p.links[remoteID]
	if ok {
		delete(p.links, remoteID)
	}
	p.lock.Unlock()

	if ok {
		link.Close()
	}
}

// Negotiations reports the offer rounds initiated towards one peer
func (p *Pool) Negotiations(remoteID core.ParticipantID) int {
	link := p.link(remoteID)
	if link == nil {
		return 0
	}

	return link.Negotiations()
}

// PublishedTracks returns what this side currently sends to one peer
func (p *Pool) PublishedTracks(remoteID core.ParticipantID) (audio, video webrtc.TrackLocal) {
	link := p.link(remoteID)
	if link == nil {
		return nil, nil
	}

	return link.AudioTrack(), link.VideoTrack()
}

func (p *Pool) Len() int {
	p.lock.RLock()
	defer p.lock.RUnlock()

	return len(p.links)
}

// Close tears down every link. Idempotent.
func (p *Pool) Close() {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return
	}
	p.closed = true
	links := p.snapshot()
	p.links = make(map[core.ParticipantID]*PeerLink)
	p.lock.Unlock()

	for _, link := range links {
		link.Close()
	}
}

func (p *Pool) createLink(remoteID core.ParticipantID) (*PeerLink, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return nil, errors.New("pool is closed")
	}
	if _, ok := p.links[remoteID]; ok {
		return nil, errLinkExists
	}

	link, err := NewPeerLink(LinkParams{
		LocalID:    p.localID,
		RemoteID:   remoteID,
		Config:     p.rtcCfg,
		Peer:       p.peerCfg,
		Signaler:   p.signaler,
		OnLost:     p.onPeerLost,
		AudioTrack: p.audioTrack,
		VideoTrack: p.videoTrack,
	})
	if err != nil {
		return nil, err
	}

	if p.onTrack != nil {
		remoteID := remoteID
		link.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
			p.onTrack(remoteID, track, receiver)
		})
	}

	p.links[remoteID] = link

	return link, nil
}

func (p *Pool) removeLink(remoteID core.ParticipantID) {
	p.lock.Lock()
	delete(p.links, remoteID)
	p.lock.Unlock()
}

func (p *Pool) link(remoteID core.ParticipantID) *PeerLink {
	p.lock.RLock()
	defer p.lock.RUnlock()

	return p.links[remoteID]
}

// snapshot must be called with the lock held
func (p *Pool) snapshot() map[core.ParticipantID]*PeerLink {
	links := make(map[core.ParticipantID]*PeerLink, len(p.links))
	for id, link := range p.links {
		links[id] = link
	}
	return links
}
