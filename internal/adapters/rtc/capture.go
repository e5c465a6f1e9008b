package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/peersync/watchparty/internal/core"
	"github.com/peersync/watchparty/internal/domain"
)

// TrackCapture exposes caller-provided local tracks as a capture
// device. The embedding process owns the actual capture pipeline (a
// screen grabber, an encoder) and hands its output tracks here.
type TrackCapture struct {
	tracks []webrtc.TrackLocal
}

func NewTrackCapture(tracks ...webrtc.TrackLocal) *TrackCapture {
	return &TrackCapture{tracks: tracks}
}

func (c *TrackCapture) Acquire(_ context.Context, _ core.CaptureConstraints) (core.CaptureStream, error) {
	if len(c.tracks) == 0 {
		return nil, fmt.Errorf("%w: no capture tracks available", domain.ErrCaptureDenied)
	}
	return &trackStream{tracks: c.tracks}, nil
}

type trackStream struct {
	mu      sync.Mutex
	tracks  []webrtc.TrackLocal
	onEnded func()
	stopped bool
}

func (s *trackStream) Tracks() []webrtc.TrackLocal {
	return s.tracks
}

func (s *trackStream) OnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

func (s *trackStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// End signals that the capture pipeline itself terminated the stream.
func (s *trackStream) End() {
	s.mu.Lock()
	fn := s.onEnded
	stopped := s.stopped
	s.stopped = true
	s.mu.Unlock()
	if fn != nil && !stopped {
		fn()
	}
}

// Unavailable is the capture device of a deployment that cannot share a
// screen; every Acquire is refused.
func Unavailable() core.Capture {
	return unavailableCapture{}
}

type unavailableCapture struct{}

func (unavailableCapture) Acquire(context.Context, core.CaptureConstraints) (core.CaptureStream, error) {
	return nil, fmt.Errorf("%w: no capture device in this deployment", domain.ErrCaptureDenied)
}
