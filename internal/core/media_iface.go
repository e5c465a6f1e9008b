package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/peersync/watchparty/internal/domain"
)

type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

// MediaTransport is one side of a pairwise media session. Owned
// exclusively by the signaling state machine that created it; the
// callbacks are invoked at most once per event by the transport
// collaborator.
type MediaTransport interface {
	AddLocalTrack(track webrtc.TrackLocal) error

	// CreateOffer and CreateAnswer also apply the result as the local
	// description before returning it.
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)

	SetRemoteDescription(sd domain.SessionDescription) error
	HasRemoteDescription() bool
	AddRemoteCandidate(c domain.Candidate) error

	OnLocalCandidate(fn func(domain.Candidate))
	OnRemoteTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	OnStateChange(fn func(TransportState))

	Close() error
}

// TransportFactory allocates one transport per remote peer.
type TransportFactory interface {
	NewTransport(peer domain.Identity) (MediaTransport, error)
}

// CaptureConstraints is the preset asked of the capture device.
type CaptureConstraints struct {
	Width     int
	Height    int
	FrameRate int
	Audio     bool
}

// CaptureStream holds the local tracks of an active capture. Stop
// releases every track; OnEnded fires when the capture subsystem itself
// ends a track (e.g. the user stops sharing from a system dialog).
type CaptureStream interface {
	Tracks() []webrtc.TrackLocal
	OnEnded(fn func())
	Stop()
}

// Capture is the local capture capability consumed by the sharer side.
type Capture interface {
	Acquire(ctx context.Context, c CaptureConstraints) (CaptureStream, error)
}
