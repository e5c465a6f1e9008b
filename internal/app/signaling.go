package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/peersync/watchparty/internal/core"
	"github.com/peersync/watchparty/internal/domain"
)

type SessionState int

const (
	SessionIdle SessionState = iota
	SessionOfferSent
	SessionOfferReceived
	SessionAnswerSent
	SessionConnected
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionOfferSent:
		return "offer-sent"
	case SessionOfferReceived:
		return "offer-received"
	case SessionAnswerSent:
		return "answer-sent"
	case SessionConnected:
		return "connected"
	case SessionClosed:
		return "closed"
	}
	return "unknown"
}

type peerSession struct {
	peer      domain.Identity
	transport core.MediaTransport
	state     SessionState
}

// Signaler negotiates one media session per remote participant, using
// the room store as a half-duplex relay. The store delivers change
// callbacks one at a time, so handlers never race each other; the mutex
// covers calls arriving from the owning participant's own goroutine
// (share fan-out, teardown).
type Signaler struct {
	store      core.Store
	transports core.TransportFactory
	roomID     domain.RoomID
	self       domain.Identity

	mu       sync.Mutex
	sessions map[domain.Identity]*peerSession
	pending  map[domain.Identity][]domain.Candidate
	capture  core.CaptureStream

	onRemoteTrack func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

	unsubs []func()
}

func NewSignaler(store core.Store, transports core.TransportFactory, roomID domain.RoomID, self domain.Identity) *Signaler {
	return &Signaler{
		store:      store,
		transports: transports,
		roomID:     roomID,
		self:       self,
		sessions:   make(map[domain.Identity]*peerSession),
		pending:    make(map[domain.Identity][]domain.Candidate),
	}
}

// OnRemoteTrack sets the callback that surfaces inbound share media to
// the playback surface. Set before Listen.
func (s *Signaler) OnRemoteTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	s.mu.Lock()
	s.onRemoteTrack = fn
	s.mu.Unlock()
}

// SetCapture attaches the local capture whose tracks offerer sessions
// will carry. Call before fanning out offers.
func (s *Signaler) SetCapture(stream core.CaptureStream) {
	s.mu.Lock()
	s.capture = stream
	s.mu.Unlock()
}

// Listen subscribes to this participant's three envelope inboxes. The
// offer and answer handlers discard whatever doesn't apply to a local
// session, so both roles can listen to everything without harm.
func (s *Signaler) Listen() {
	s.unsubs = append(s.unsubs,
		s.store.Subscribe(offerPath(s.roomID, s.self), s.handleOffer),
		s.store.Subscribe(answerPath(s.roomID, s.self), s.handleAnswer),
		s.store.Subscribe(iceInboxPath(s.roomID, s.self), s.handleICE),
	)
}

// Unlisten detaches the envelope subscriptions. Sessions stay up.
func (s *Signaler) Unlisten() {
	for _, u := range s.unsubs {
		u()
	}
	s.unsubs = nil
}

// CreateSession allocates and wires a transport for peer. Calling it
// again for the same peer is a no-op. When isOfferer is set, local
// capture tracks are attached and an offer is published to the peer's
// inbox.
func (s *Signaler) CreateSession(ctx context.Context, peer domain.Identity, isOfferer bool) error {
	if peer == s.self {
		return nil
	}

	s.mu.Lock()
	if _, ok := s.sessions[peer]; ok {
		s.mu.Unlock()
		return nil
	}
	transport, err := s.transports.NewTransport(peer)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: new transport for %s: %v", domain.ErrTransport, peer, err)
	}
	sess := &peerSession{peer: peer, transport: transport, state: SessionIdle}
	s.sessions[peer] = sess
	capture := s.capture
	s.mu.Unlock()

	transport.OnLocalCandidate(func(c domain.Candidate) {
		key := fmt.Sprintf("%s_%d", s.self, time.Now().UnixNano())
		env := domain.IceCandidate{From: s.self, ICE: c}
		if err := s.store.Set(context.Background(), icePath(s.roomID, peer, key), env); err != nil {
			log.Error().Err(err).Str("module", "signaling").Str("peer", string(peer)).Msg("publish ice candidate")
		}
	})
	transport.OnRemoteTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		s.mu.Lock()
		fn := s.onRemoteTrack
		s.mu.Unlock()
		if fn != nil {
			fn(track, receiver)
		}
	})
	transport.OnStateChange(func(st core.TransportState) {
		log.Info().Str("module", "signaling").Str("peer", string(peer)).Str("state", st.String()).Msg("transport state")
		switch st {
		case core.TransportConnected:
			s.setState(peer, SessionConnected)
		case core.TransportFailed, core.TransportClosed:
			s.CloseSession(peer)
		}
	})

	if isOfferer {
		if capture != nil {
			for _, track := range capture.Tracks() {
				if err := transport.AddLocalTrack(track); err != nil {
					log.Error().Err(err).Str("module", "signaling").Str("peer", string(peer)).Msg("add local track")
				}
			}
		}
		sd, err := transport.CreateOffer(ctx)
		if err != nil {
			s.CloseSession(peer)
			return fmt.Errorf("%w: create offer for %s: %v", domain.ErrTransport, peer, err)
		}
		env := domain.Offer{From: s.self, SDP: sd}
		if err := s.store.Set(ctx, offerPath(s.roomID, peer), env); err != nil {
			s.CloseSession(peer)
			return fmt.Errorf("%w: publish offer for %s: %v", domain.ErrStore, peer, err)
		}
		s.setState(peer, SessionOfferSent)
	}

	s.drainPending(peer)
	return nil
}

// handleOffer processes the single pending offer addressed to us. The
// envelope is deleted no matter how processing went, closing the replay
// window.
func (s *Signaler) handleOffer(value any) {
	if value == nil {
		return
	}
	var env domain.Offer
	if err := core.Decode(value, &env); err != nil || env.From == "" || env.From == s.self {
		s.removeEnvelope(offerPath(s.roomID, s.self))
		return
	}
	defer s.removeEnvelope(offerPath(s.roomID, s.self))

	ctx := context.Background()
	if err := s.CreateSession(ctx, env.From, false); err != nil {
		log.Error().Err(err).Str("module", "signaling").Str("peer", string(env.From)).Msg("session for offer")
		return
	}
	sess, ok := s.session(env.From)
	if !ok {
		return
	}
	if err := sess.transport.SetRemoteDescription(env.SDP); err != nil {
		log.Error().Err(err).Str("module", "signaling").Str("peer", string(env.From)).Msg("apply remote offer")
		return
	}
	s.setState(env.From, SessionOfferReceived)

	answer, err := sess.transport.CreateAnswer(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "signaling").Str("peer", string(env.From)).Msg("create answer")
		return
	}
	if err := s.store.Set(ctx, answerPath(s.roomID, env.From), domain.Answer{From: s.self, SDP: answer}); err != nil {
		log.Error().Err(err).Str("module", "signaling").Str("peer", string(env.From)).Msg("publish answer")
		return
	}
	s.setState(env.From, SessionAnswerSent)
	s.drainPending(env.From)
}

// handleAnswer applies the pending answer to the matching offerer-side
// session. Anything without a session, or for a session that already has
// a remote description, is stale and only gets deleted.
func (s *Signaler) handleAnswer(value any) {
	if value == nil {
		return
	}
	defer s.removeEnvelope(answerPath(s.roomID, s.self))

	var env domain.Answer
	if err := core.Decode(value, &env); err != nil || env.From == "" {
		return
	}
	sess, ok := s.session(env.From)
	if !ok || sess.transport.HasRemoteDescription() {
		log.Debug().Str("module", "signaling").Str("peer", string(env.From)).Msg("stale answer discarded")
		return
	}
	if err := sess.transport.SetRemoteDescription(env.SDP); err != nil {
		log.Error().Err(err).Str("module", "signaling").Str("peer", string(env.From)).Msg("apply remote answer")
		return
	}
	s.drainPending(env.From)
}

// handleICE drains the candidate inbox. Each entry is deleted as soon as
// it is read, whether it could be applied or had to be queued.
func (s *Signaler) handleICE(value any) {
	inbox, ok := value.(map[string]any)
	if !ok || len(inbox) == 0 {
		return
	}

	// Keys are <from>_<unix nanos>, so a lexicographic sort keeps each
	// peer's candidates in publication order.
	keys := make([]string, 0, len(inbox))
	for k := range inbox {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		var env domain.IceCandidate
		err := core.Decode(inbox[k], &env)
		s.removeEnvelope(icePath(s.roomID, s.self, k))
		if err != nil || env.From == "" {
			continue
		}

		sess, ok := s.session(env.From)
		if ok && sess.transport.HasRemoteDescription() {
			if err := sess.transport.AddRemoteCandidate(env.ICE); err != nil {
				log.Error().Err(err).Str("module", "signaling").Str("peer", string(env.From)).Msg("add remote candidate")
			}
			continue
		}
		s.mu.Lock()
		s.pending[env.From] = append(s.pending[env.From], env.ICE)
		s.mu.Unlock()
	}
}

// drainPending applies candidates that arrived before the session could
// take them. The transport only accepts candidates once a remote
// description is applied, so early drains leave the queue untouched.
func (s *Signaler) drainPending(peer domain.Identity) {
	sess, ok := s.session(peer)
	if !ok || !sess.transport.HasRemoteDescription() {
		return
	}
	s.mu.Lock()
	queued := s.pending[peer]
	delete(s.pending, peer)
	s.mu.Unlock()

	for _, c := range queued {
		if err := sess.transport.AddRemoteCandidate(c); err != nil {
			log.Error().Err(err).Str("module", "signaling").Str("peer", string(peer)).Msg("apply pending candidate")
		}
	}
}

// CloseSession releases the peer's transport and queue. Unknown peers
// are a no-op.
func (s *Signaler) CloseSession(peer domain.Identity) {
	s.mu.Lock()
	sess, ok := s.sessions[peer]
	if !ok {
		s.mu.Unlock()
		return
	}
	sess.state = SessionClosed
	delete(s.sessions, peer)
	delete(s.pending, peer)
	s.mu.Unlock()

	if err := sess.transport.Close(); err != nil {
		log.Error().Err(err).Str("module", "signaling").Str("peer", string(peer)).Msg("close transport")
	}
	log.Info().Str("module", "signaling").Str("peer", string(peer)).Msg("session closed")
}

// StopAll closes every session and releases the local capture. With
// publishTeardown it also clears the room's share descriptor and removes
// the whole signaling subtree, so the next share starts clean. Teardown
// is best effort: one failed release never stops the rest.
func (s *Signaler) StopAll(ctx context.Context, publishTeardown bool) {
	s.mu.Lock()
	peers := make([]domain.Identity, 0, len(s.sessions))
	for p := range s.sessions {
		peers = append(peers, p)
	}
	capture := s.capture
	s.capture = nil
	s.pending = make(map[domain.Identity][]domain.Candidate)
	s.mu.Unlock()

	for _, p := range peers {
		s.CloseSession(p)
	}
	if capture != nil {
		capture.Stop()
	}

	if publishTeardown {
		if err := s.store.Update(ctx, roomPath(s.roomID), map[string]any{
			"isSharing": false,
			"shareHost": nil,
		}); err != nil {
			log.Error().Err(err).Str("module", "signaling").Msg("clear share descriptor")
		}
		if err := s.store.Remove(ctx, webrtcPath(s.roomID)); err != nil {
			log.Error().Err(err).Str("module", "signaling").Msg("remove signaling subtree")
		}
	}
}

// SessionState reports the negotiation state for peer.
func (s *Signaler) SessionState(peer domain.Identity) (SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[peer]; ok {
		return sess.state, true
	}
	return SessionClosed, false
}

// ActivePeers lists peers with a live session.
func (s *Signaler) ActivePeers() []domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Identity, 0, len(s.sessions))
	for p := range s.sessions {
		out = append(out, p)
	}
	return out
}

func (s *Signaler) session(peer domain.Identity) (*peerSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[peer]
	return sess, ok
}

func (s *Signaler) setState(peer domain.Identity, st SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[peer]; ok {
		sess.state = st
	}
}

func (s *Signaler) removeEnvelope(path string) {
	if err := s.store.Remove(context.Background(), path); err != nil {
		log.Error().Err(err).Str("module", "signaling").Str("path", path).Msg("remove envelope")
	}
}
