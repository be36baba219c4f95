package media

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/rs/zerolog/log"
)

// frame cadence of the synthetic sources: opus at the usual 20ms packet
// time, video at roughly 30fps
const (
	syntheticAudioInterval = 20 * time.Millisecond
	syntheticVideoInterval = 33 * time.Millisecond
)

// opus DTX silence frame
var silenceFrame = []byte{0xf8, 0xff, 0xfe}

// blankFrame is not a decodable VP8 stream; it keeps packets flowing so the
// agent loads the transport path like a publishing participant
var blankFrame = make([]byte, 640)

// SyntheticProvider backs headless participants (the monitoring agent) with
// sample tracks instead of real capture devices.
type SyntheticProvider struct{}

func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{}
}

func (p *SyntheticProvider) OpenCamera() (Source, error) {
	return newSyntheticSource(webrtc.MimeTypeVP8, "camera", blankFrame, syntheticVideoInterval)
}

func (p *SyntheticProvider) OpenMicrophone() (Source, error) {
	return newSyntheticSource(webrtc.MimeTypeOpus, "microphone", silenceFrame, syntheticAudioInterval)
}

func (p *SyntheticProvider) OpenScreen() (Source, error) {
	return newSyntheticSource(webrtc.MimeTypeVP8, "screen", blankFrame, syntheticVideoInterval)
}

type syntheticSource struct {
	track *webrtc.TrackLocalStaticSample
	label string

	frame    []byte
	interval time.Duration
	write    func(pionmedia.Sample) error
	done     chan struct{}

	lock    sync.Mutex
	stopped bool
	onEnded func()
}

func newSyntheticSource(mimeType, label string, frame []byte, interval time.Duration) (*syntheticSource, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		label+"-"+uuid.New().String(),
		"liveroom-agent",
	)
	if err != nil {
		return nil, ErrDeviceUnavailable
	}

	s := &syntheticSource{
		track:    track,
		label:    label,
		frame:    frame,
		interval: interval,
		write:    track.WriteSample,
		done:     make(chan struct{}),
	}
	go s.pump()

	return s, nil
}

// pump feeds the track until Stop. Writing to a track no link has bound yet
// is a no-op, so pumping before the first negotiation completes is harmless.
func (s *syntheticSource) pump() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.write(pionmedia.Sample{Data: s.frame, Duration: s.interval}); err != nil {
				log.Error().Err(err).Str("service", "media").Str("source", s.label).Msg("write sample")
				return
			}
		}
	}
}

func (s *syntheticSource) Track() webrtc.TrackLocal {
	return s.track
}

func (s *syntheticSource) Stop() error {
	s.lock.Lock()
	if s.stopped {
		s.lock.Unlock()
		return nil
	}
	s.stopped = true
	close(s.done)
	onEnded := s.onEnded
	s.lock.Unlock()

	if onEnded != nil {
		onEnded()
	}

	return nil
}

func (s *syntheticSource) OnEnded(callback func()) {
	s.lock.Lock()
	s.onEnded = callback
	s.lock.Unlock()
}
