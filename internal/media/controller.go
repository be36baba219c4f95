package media

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
)

var (
	ErrMediaAccessDenied      = errors.New("camera or microphone permission denied")
	ErrDeviceUnavailable      = errors.New("no capture device present")
	ErrScreenShareDenied      = errors.New("screen capture permission denied")
	ErrScreenShareUnsupported = errors.New("screen capture is not supported on this platform")
)

type TrackKind string

const (
	AudioKind TrackKind = "audio"
	VideoKind TrackKind = "video"
)

// Source is one acquired capture device. Sources are exclusively owned by the
// Controller: the mesh and the room only ever reference the track, never stop it.
type Source interface {
	Track() webrtc.TrackLocal
	Stop() error
}

// EndedNotifier is implemented by sources whose capture can end out-of-band,
// e.g. the user clicking the native "stop sharing" control.
type EndedNotifier interface {
	OnEnded(func())
}

// SourceProvider abstracts the platform capture APIs behind the error
// taxonomy the room surfaces to the user.
type SourceProvider interface {
	OpenCamera() (Source, error)
	OpenMicrophone() (Source, error)
	OpenScreen() (Source, error)
}

// Controller owns every local track. Enable toggles are flag-only and never
// renegotiate; screen share replaces the published video track and reverts to
// the camera when stopped from either side.
type Controller struct {
	provider SourceProvider

	lock   sync.Mutex
	camera Source
	mic    Source
	screen Source

	audioEnabled bool
	videoEnabled bool
	closed       bool

	// onVideoReplaced fires when the published video track identity changes
	// (screen share start/stop). Mute toggles never fire it.
	onVideoReplaced func(webrtc.TrackLocal)
}

func NewController(provider SourceProvider) *Controller {
	return &Controller{
		provider: provider,
	}
}

// OnVideoReplaced registers the mesh-facing hook for video track swaps
func (c *Controller) OnVideoReplaced(callback func(webrtc.TrackLocal)) {
	c.lock.Lock()
	c.onVideoReplaced = callback
	c.lock.Unlock()
}

// Acquire opens the requested devices. A denied or missing device is not
// fatal to joining: whatever was acquired stays usable and the first error is
// returned so the caller can surface it and join in off mode.
func (c *Controller) Acquire(video, audio bool) error {
	var firstErr error

	if video {
		source, err := c.provider.OpenCamera()
		if err != nil {
			firstErr = err
		} else {
			c.lock.Lock()
			if c.closed {
				c.lock.Unlock()
				source.Stop()
				return nil
			}
			c.camera = source
			c.videoEnabled = true
			c.lock.Unlock()
		}
	}

	if audio {
		source, err := c.provider.OpenMicrophone()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			c.lock.Lock()
			if c.closed {
				c.lock.Unlock()
				source.Stop()
				return nil
			}
			c.mic = source
			c.audioEnabled = true
			c.lock.Unlock()
		}
	}

	return firstErr
}

// SetEnabled toggles the enabled flag of a kind. No track is replaced and no
// SDP exchange happens, which is what keeps mute/unmute instantaneous.
func (c *Controller) SetEnabled(kind TrackKind, enabled bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	switch kind {
	case AudioKind:
		c.audioEnabled = enabled
	case VideoKind:
		c.videoEnabled = enabled
	}
}

func (c *Controller) Enabled(kind TrackKind) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if kind == AudioKind {
		return c.audioEnabled
	}
	return c.videoEnabled
}

// AudioTrack returns the published audio track, nil when the mic is off
func (c *Controller) AudioTrack() webrtc.TrackLocal {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.mic == nil {
		return nil
	}
	return c.mic.Track()
}

// VideoTrack returns the published video track: the screen capture while
// sharing, the camera otherwise.
func (c *Controller) VideoTrack() webrtc.TrackLocal {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.screen != nil {
		return c.screen.Track()
	}
	if c.camera == nil {
		return nil
	}
	return c.camera.Track()
}

func (c *Controller) ScreenSharing() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.screen != nil
}

// StartScreenShare swaps the published video track for the screen capture.
// The microphone track is untouched. Idempotent while already sharing.
func (c *Controller) StartScreenShare() error {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return nil
	}
	if c.screen != nil {
		c.lock.Unlock()
		return nil
	}
	c.lock.Unlock()

	source, err := c.provider.OpenScreen()
	if err != nil {
		return err
	}

	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		source.Stop()
		return nil
	}
	c.screen = source
	callback := c.onVideoReplaced
	track := source.Track()
	c.lock.Unlock()

	// the OS can end the capture without us asking
	if notifier, ok := source.(EndedNotifier); ok {
		notifier.OnEnded(func() {
			log.Info().Str("service", "media").Msg("screen capture ended by the platform")
			c.StopScreenShare()
		})
	}

	if callback != nil {
		callback(track)
	}

	return nil
}

// StopScreenShare reverts to the camera track. Idempotent.
func (c *Controller) StopScreenShare() {
	c.lock.Lock()
	source := c.screen
	c.screen = nil
	callback := c.onVideoReplaced

	var track webrtc.TrackLocal
	if c.camera != nil {
		track = c.camera.Track()
	}
	c.lock.Unlock()

	if source == nil {
		return
	}

	if err := source.Stop(); err != nil {
		log.Error().Err(err).Str("service", "media").Msg("stop screen source")
	}

	if callback != nil {
		callback(track)
	}
}

// Close stops every acquired source. Safe to call twice and on half
// initialized state: no device may be left running after teardown.
func (c *Controller) Close() {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return
	}
	c.closed = true
	sources := []Source{c.camera, c.mic, c.screen}
	c.camera, c.mic, c.screen = nil, nil, nil
	c.lock.Unlock()

	for _, source := range sources {
		if source == nil {
			continue
		}
		if err := source.Stop(); err != nil {
			log.Error().Err(err).Str("service", "media").Msg("stop source")
		}
	}
}
