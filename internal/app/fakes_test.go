package app

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/peersync/watchparty/internal/core"
	"github.com/peersync/watchparty/internal/domain"
)

type fakePlayer struct {
	mu       sync.Mutex
	state    core.PlayerState
	position float64

	seeks  []float64
	plays  int
	pauses int
}

func (p *fakePlayer) State() core.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePlayer) SeekTo(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = seconds
	p.seeks = append(p.seeks, seconds)
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = core.PlayerPlaying
	p.plays++
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = core.PlayerPaused
	p.pauses++
}

func (p *fakePlayer) set(state core.PlayerState, position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	p.position = position
}

func (p *fakePlayer) counts() (seeks, plays, pauses int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seeks), p.plays, p.pauses
}

type fakeTransport struct {
	mu          sync.Mutex
	peer        domain.Identity
	localTracks []webrtc.TrackLocal
	localDesc   *domain.SessionDescription
	remoteDesc  *domain.SessionDescription
	remoteSets  int
	candidates  []domain.Candidate
	closed      bool

	onLocalCandidate func(domain.Candidate)
	onRemoteTrack    func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onStateChange    func(core.TransportState)
}

func (t *fakeTransport) AddLocalTrack(track webrtc.TrackLocal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.localTracks = append(t.localTracks, track)
	return nil
}

func (t *fakeTransport) CreateOffer(context.Context) (domain.SessionDescription, error) {
	sd := domain.SessionDescription{Type: "offer", SDP: "sdp-offer-" + string(t.peer)}
	t.mu.Lock()
	t.localDesc = &sd
	t.mu.Unlock()
	return sd, nil
}

func (t *fakeTransport) CreateAnswer(context.Context) (domain.SessionDescription, error) {
	sd := domain.SessionDescription{Type: "answer", SDP: "sdp-answer-" + string(t.peer)}
	t.mu.Lock()
	t.localDesc = &sd
	t.mu.Unlock()
	return sd, nil
}

func (t *fakeTransport) SetRemoteDescription(sd domain.SessionDescription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remoteDesc = &sd
	t.remoteSets++
	return nil
}

func (t *fakeTransport) HasRemoteDescription() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteDesc != nil
}

func (t *fakeTransport) AddRemoteCandidate(c domain.Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remoteDesc == nil {
		return errors.New("no remote description")
	}
	t.candidates = append(t.candidates, c)
	return nil
}

func (t *fakeTransport) OnLocalCandidate(fn func(domain.Candidate)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLocalCandidate = fn
}

func (t *fakeTransport) OnRemoteTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRemoteTrack = fn
}

func (t *fakeTransport) OnStateChange(fn func(core.TransportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStateChange = fn
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) fireState(st core.TransportState) {
	t.mu.Lock()
	fn := t.onStateChange
	t.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (t *fakeTransport) emitCandidate(c domain.Candidate) {
	t.mu.Lock()
	fn := t.onLocalCandidate
	t.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (t *fakeTransport) snapshot() (remote *domain.SessionDescription, sets int, cands []domain.Candidate, closed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cands = append(cands, t.candidates...)
	return t.remoteDesc, t.remoteSets, cands, t.closed
}

// fakeFactory hands out one fakeTransport per peer and remembers them
// for inspection.
type fakeFactory struct {
	mu      sync.Mutex
	created map[domain.Identity]*fakeTransport
	err     error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{created: make(map[domain.Identity]*fakeTransport)}
}

func (f *fakeFactory) NewTransport(peer domain.Identity) (core.MediaTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := &fakeTransport{peer: peer}
	f.created[peer] = t
	return t, nil
}

func (f *fakeFactory) transport(peer domain.Identity) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[peer]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeStream struct {
	mu      sync.Mutex
	tracks  []webrtc.TrackLocal
	stopped bool
	onEnded func()
}

func (s *fakeStream) Tracks() []webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks
}

func (s *fakeStream) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeCapture struct {
	mu     sync.Mutex
	stream *fakeStream
	err    error
}

func (c *fakeCapture) Acquire(context.Context, core.CaptureConstraints) (core.CaptureStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if c.stream == nil {
		c.stream = &fakeStream{}
	}
	return c.stream, nil
}
