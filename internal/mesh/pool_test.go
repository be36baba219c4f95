package mesh

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"

	"github.com/lumaclass/liveroom/internal/config"
	"github.com/lumaclass/liveroom/internal/core"
)

func testWebRTCConfig(t *testing.T) *config.WebRTCConfig {
	t.Helper()

	cfg, err := config.NewWebRTCConfig(&config.Config{
		RTC: config.RTCConfig{},
	})
	assert.NoError(t, err)

	return cfg
}

func testPeerConfig() config.PeerConfig {
	return config.PeerConfig{
		EnabledCodecs: []config.CodecSpec{
			{Mime: webrtc.MimeTypeOpus},
			{Mime: webrtc.MimeTypeVP8},
		},
		NegotiationDebounce: 10 * time.Millisecond,
		MaxICERestarts:      1,
	}
}

func testAudioTrack(t *testing.T) webrtc.TrackLocal {
	t.Helper()

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "mic")
	assert.NoError(t, err)

	return track
}

func testVideoTrack(t *testing.T, id string) webrtc.TrackLocal {
	t.Helper()

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, "cam")
	assert.NoError(t, err)

	return track
}

// meshHarness routes signaling between pools in-process, standing in for the
// redis-backed channel
type meshHarness struct {
	mu    sync.Mutex
	pools map[core.ParticipantID]*Pool
}

func newMeshHarness() *meshHarness {
	return &meshHarness{pools: make(map[core.ParticipantID]*Pool)}
}

func (h *meshHarness) addPool(t *testing.T, id core.ParticipantID) *Pool {
	t.Helper()

	pool := NewPool(PoolParams{
		LocalID:  id,
		Config:   testWebRTCConfig(t),
		Peer:     testPeerConfig(),
		Signaler: &routedSignaler{harness: h, local: id},
	})

	h.mu.Lock()
	h.pools[id] = pool
	h.mu.Unlock()

	t.Cleanup(pool.Close)

	return pool
}

func (h *meshHarness) pool(id core.ParticipantID) *Pool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.pools[id]
}

type routedSignaler struct {
	harness *meshHarness
	local   core.ParticipantID
}

func (s *routedSignaler) SendOffer(to core.ParticipantID, sdp webrtc.SessionDescription) error {
	if pool := s.harness.pool(to); pool != nil {
		return pool.HandleOffer(s.local, sdp)
	}
	return nil
}

func (s *routedSignaler) SendAnswer(to core.ParticipantID, sdp webrtc.SessionDescription) error {
	if pool := s.harness.pool(to); pool != nil {
		return pool.HandleAnswer(s.local, sdp)
	}
	return nil
}

func (s *routedSignaler) SendICECandidate(to core.ParticipantID, candidate webrtc.ICECandidateInit) error {
	if pool := s.harness.pool(to); pool != nil {
		return pool.AddICECandidate(s.local, candidate)
	}
	return nil
}

// recordingSignaler captures outbound messages for hand delivery
type recordingSignaler struct {
	mu      sync.Mutex
	offers  []webrtc.SessionDescription
	answers []webrtc.SessionDescription
}

func (s *recordingSignaler) SendOffer(_ core.ParticipantID, sdp webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, sdp)
	return nil
}

func (s *recordingSignaler) SendAnswer(_ core.ParticipantID, sdp webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, sdp)
	return nil
}

func (s *recordingSignaler) SendICECandidate(core.ParticipantID, webrtc.ICECandidateInit) error {
	return nil
}

func (s *recordingSignaler) lastOffer(t *testing.T) webrtc.SessionDescription {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotEmpty(t, s.offers)

	return s.offers[len(s.offers)-1]
}

func (s *recordingSignaler) lastAnswer(t *testing.T) webrtc.SessionDescription {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotEmpty(t, s.answers)

	return s.answers[len(s.answers)-1]
}

func (s *recordingSignaler) answerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.answers)
}

func newRecordingPool(t *testing.T, id core.ParticipantID) (*Pool, *recordingSignaler) {
	t.Helper()

	signaler := &recordingSignaler{}
	pool := NewPool(PoolParams{
		LocalID:  id,
		Config:   testWebRTCConfig(t),
		Peer:     testPeerConfig(),
		Signaler: signaler,
	})
	t.Cleanup(pool.Close)

	return pool, signaler
}

func TestPoolOfferAnswer(t *testing.T) {
	harness := newMeshHarness()
	alice := harness.addPool(t, "alice")
	bob := harness.addPool(t, "bob")

	err := alice.AddPeer("bob")
	assert.NoError(t, err)

	assert.Equal(t, 1, alice.Len())
	assert.Equal(t, 1, bob.Len())
	assert.Equal(t, 1, alice.Negotiations("bob"))
	assert.Equal(t, 0, bob.Negotiations("alice"))
}

func TestPoolAddPeerIdempotent(t *testing.T) {
	harness := newMeshHarness()
	alice := harness.addPool(t, "alice")
	harness.addPool(t, "bob")

	assert.NoError(t, alice.AddPeer("bob"))
	assert.NoError(t, alice.AddPeer("bob"))

	assert.Equal(t, 1, alice.Len())
	assert.Equal(t, 1, alice.Negotiations("bob"))
}

func TestPoolOfferGlare(t *testing.T) {
	alice, aliceSignaler := newRecordingPool(t, "alice")
	bob, bobSignaler := newRecordingPool(t, "bob")

	// both discover each other at the same time
	assert.NoError(t, alice.AddPeer("bob"))
	assert.NoError(t, bob.AddPeer("alice"))

	// alice has the smaller id: she ignores bob's competing offer
	assert.NoError(t, alice.HandleOffer("bob", bobSignaler.lastOffer(t)))
	assert.Zero(t, aliceSignaler.answerCount())

	// bob yields, reopening his side as the answering one
	assert.NoError(t, bob.HandleOffer("alice", aliceSignaler.lastOffer(t)))
	assert.Equal(t, 1, bobSignaler.answerCount())

	assert.NoError(t, alice.HandleAnswer("bob", bobSignaler.lastAnswer(t)))
}

func TestPoolCandidateForUnknownPeerDropped(t *testing.T) {
	pool, _ := newRecordingPool(t, "alice")

	err := pool.AddICECandidate("ghost", webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 3478 typ host"})
	assert.NoError(t, err)
	assert.Equal(t, 0, pool.Len())
}

func TestPoolCandidateBufferedUntilAnswer(t *testing.T) {
	alice, aliceSignaler := newRecordingPool(t, "alice")
	bob, bobSignaler := newRecordingPool(t, "bob")

	assert.NoError(t, alice.AddPeer("bob"))
	assert.NoError(t, bob.HandleOffer("alice", aliceSignaler.lastOffer(t)))

	// the answer is still in flight; the candidate must wait, not fail
	candidate := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 3478 typ host"}
	assert.NoError(t, alice.AddICECandidate("bob", candidate))

	assert.NoError(t, alice.HandleAnswer("bob", bobSignaler.lastAnswer(t)))
}

func TestPoolMuteNeedsNoNegotiation(t *testing.T) {
	harness := newMeshHarness()
	alice := harness.addPool(t, "alice")
	harness.addPool(t, "bob")

	audio := testAudioTrack(t)
	video := testVideoTrack(t, "cam-video")
	alice.SetLocalTracks(audio, video)

	assert.NoError(t, alice.AddPeer("bob"))
	negotiations := alice.Negotiations("bob")

	// muting is a flag flip upstream; the senders stay in place
	publishedAudio, publishedVideo := alice.PublishedTracks("bob")
	assert.Same(t, audio, publishedAudio)
	assert.Same(t, video, publishedVideo)
	assert.Equal(t, negotiations, alice.Negotiations("bob"))
}

func TestPoolReplaceVideoTrackKeepsNegotiationCount(t *testing.T) {
	harness := newMeshHarness()
	alice := harness.addPool(t, "alice")
	harness.addPool(t, "bob")

	audio := testAudioTrack(t)
	camera := testVideoTrack(t, "cam-video")
	alice.SetLocalTracks(audio, camera)
	assert.NoError(t, alice.AddPeer("bob"))

	negotiations := alice.Negotiations("bob")

	screen := testVideoTrack(t, "screen-video")
	alice.ReplaceVideoTrack(screen)

	publishedAudio, publishedVideo := alice.PublishedTracks("bob")
	assert.Same(t, screen, publishedVideo)
	assert.Same(t, audio, publishedAudio)
	assert.Equal(t, negotiations, alice.Negotiations("bob"))

	// switching back behaves the same way
	alice.ReplaceVideoTrack(camera)
	_, publishedVideo = alice.PublishedTracks("bob")
	assert.Same(t, camera, publishedVideo)
	assert.Equal(t, negotiations, alice.Negotiations("bob"))
}

func TestPoolReplaceVideoTrackWithoutSenderRenegotiates(t *testing.T) {
	harness := newMeshHarness()
	alice := harness.addPool(t, "alice")
	harness.addPool(t, "bob")

	alice.SetLocalTracks(testAudioTrack(t), nil)
	assert.NoError(t, alice.AddPeer("bob"))
	assert.Equal(t, 1, alice.Negotiations("bob"))

	alice.ReplaceVideoTrack(testVideoTrack(t, "cam-video"))

	assert.Eventually(t, func() bool {
		return alice.Negotiations("bob") == 2
	}, time.Second, 10*time.Millisecond)
}

func TestPoolRemovePeerLeavesOthers(t *testing.T) {
	harness := newMeshHarness()
	alice := harness.addPool(t, "alice")
	harness.addPool(t, "bob")
	harness.addPool(t, "carol")

	assert.NoError(t, alice.AddPeer("bob"))
	assert.NoError(t, alice.AddPeer("carol"))
	assert.Equal(t, 2, alice.Len())

	alice.RemovePeer("bob")

	assert.Equal(t, 1, alice.Len())
	assert.Equal(t, 0, alice.Negotiations("bob"))
	assert.Equal(t, 1, alice.Negotiations("carol"))
}

func TestPoolClose(t *testing.T) {
	harness := newMeshHarness()
	alice := harness.addPool(t, "alice")
	harness.addPool(t, "bob")

	assert.NoError(t, alice.AddPeer("bob"))

	alice.Close()
	alice.Close()

	assert.Equal(t, 0, alice.Len())
	assert.Error(t, alice.AddPeer("bob"))
}

func TestPoolOfferAdvertisesOnlyEnabledCodecs(t *testing.T) {
	pool, signaler := newRecordingPool(t, "alice")
	pool.SetLocalTracks(testAudioTrack(t), testVideoTrack(t, "cam"))

	assert.NoError(t, pool.AddPeer("bob"))

	offer := signaler.lastOffer(t)
	assert.Contains(t, offer.SDP, "opus")
	assert.Contains(t, offer.SDP, "VP8")
	assert.NotContains(t, offer.SDP, "H264")

	// the negotiated header extensions ride along in the offer
	assert.Contains(t, offer.SDP, sdp.SDESMidURI)
	assert.Contains(t, offer.SDP, sdp.TransportCCURI)
}
