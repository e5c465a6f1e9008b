// Package rtc implements the media transport and capture capabilities
// on pion/webrtc.
package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/peersync/watchparty/internal/core"
	"github.com/peersync/watchparty/internal/domain"
)

// Factory builds one PeerConnection-backed transport per remote peer.
type Factory struct {
	cfg webrtc.Configuration
}

func NewFactory(iceServers []string) *Factory {
	servers := make([]webrtc.ICEServer, 0, len(iceServers))
	for _, u := range iceServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return &Factory{cfg: webrtc.Configuration{ICEServers: servers}}
}

func (f *Factory) NewTransport(peer domain.Identity) (core.MediaTransport, error) {
	pc, err := webrtc.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{pc: pc, peer: peer}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			log.Debug().Str("module", "rtc").Str("peer", string(peer)).Msg("ICE gathering finished")
			return
		}
		if fn := c.candidateFn(); fn != nil {
			fn(fromICEInit(cand.ToJSON()))
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("peer", string(peer)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		if fn := c.trackFn(); fn != nil {
			fn(track, receiver)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", string(peer)).Str("state", s.String()).Msg("peer state")
		st, ok := mapState(s)
		if !ok {
			return
		}
		if fn := c.stateFn(); fn != nil {
			fn(st)
		}
	})

	return c, nil
}

// Connection adapts *webrtc.PeerConnection to core.MediaTransport.
// Candidates trickle out through OnLocalCandidate as they are gathered;
// descriptions are returned without waiting for gathering to finish.
type Connection struct {
	pc   *webrtc.PeerConnection
	peer domain.Identity

	mu      sync.Mutex
	onICE   func(domain.Candidate)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onState func(core.TransportState)
}

func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) error {
	_, err := c.pc.AddTrack(track)
	return err
}

func (c *Connection) CreateOffer(_ context.Context) (domain.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDescription{}, err
	}
	return fromSessionDescription(offer), nil
}

func (c *Connection) CreateAnswer(_ context.Context) (domain.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return domain.SessionDescription{}, err
	}
	return fromSessionDescription(answer), nil
}

func (c *Connection) SetRemoteDescription(sd domain.SessionDescription) error {
	return c.pc.SetRemoteDescription(toSessionDescription(sd))
}

func (c *Connection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *Connection) AddRemoteCandidate(cand domain.Candidate) error {
	return c.pc.AddICECandidate(toICEInit(cand))
}

func (c *Connection) OnLocalCandidate(fn func(domain.Candidate)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Connection) OnRemoteTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Connection) OnStateChange(fn func(core.TransportState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Connection) Close() error {
	return c.pc.Close()
}

func (c *Connection) candidateFn() func(domain.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onICE
}

func (c *Connection) trackFn() func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onTrack
}

func (c *Connection) stateFn() func(core.TransportState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onState
}

// mapState folds pion connection states onto transport states.
// Disconnected is transient and reported to nobody; pion either recovers
// or moves to failed.
func mapState(s webrtc.PeerConnectionState) (core.TransportState, bool) {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return core.TransportNew, true
	case webrtc.PeerConnectionStateConnecting:
		return core.TransportConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return core.TransportConnected, true
	case webrtc.PeerConnectionStateFailed:
		return core.TransportFailed, true
	case webrtc.PeerConnectionStateClosed:
		return core.TransportClosed, true
	}
	return core.TransportNew, false
}

func fromSessionDescription(sd webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: sd.Type.String(), SDP: sd.SDP}
}

func toSessionDescription(sd domain.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(sd.Type), SDP: sd.SDP}
}

func fromICEInit(ci webrtc.ICECandidateInit) domain.Candidate {
	return domain.Candidate{
		Candidate:        ci.Candidate,
		SDPMid:           ci.SDPMid,
		SDPMLineIndex:    ci.SDPMLineIndex,
		UsernameFragment: ci.UsernameFragment,
	}
}

func toICEInit(c domain.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
