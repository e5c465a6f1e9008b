// Package app holds the three coordinator subsystems: the signaling
// state machine, the playback clock synchronizer, and the room
// membership manager that ties them to a participant's lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/peersync/watchparty/internal/config"
	"github.com/peersync/watchparty/internal/core"
	"github.com/peersync/watchparty/internal/domain"
)

var ErrNotInRoom = errors.New("not in a room")

// Party is one participant's view of a room: it owns that participant's
// signaler, clock synchronizer and subscriptions, and exposes the
// imperative surface the rendering collaborator drives.
type Party struct {
	cfg        *config.Config
	store      core.Store
	transports core.TransportFactory
	capture    core.Capture
	player     core.Player
	self       domain.Identity
	limiter    *ChatRateLimiter

	mu        sync.Mutex
	roomID    domain.RoomID
	room      *domain.Room
	isHost    bool
	amSharing bool
	known     map[domain.Identity]bool
	signaler  *Signaler
	clock     *Synchronizer
	unsubRoom func()
	cancel    context.CancelFunc

	onUpdate      func(room domain.Room)
	onRemoteTrack func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
}

func NewParty(
	cfg *config.Config,
	store core.Store,
	transports core.TransportFactory,
	capture core.Capture,
	player core.Player,
	self domain.Identity,
) *Party {
	return &Party{
		cfg:        cfg,
		store:      store,
		transports: transports,
		capture:    capture,
		player:     player,
		self:       self,
		limiter:    NewChatRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateWindow),
	}
}

// OnUpdate registers the snapshot callback for the rendering surface.
func (p *Party) OnUpdate(fn func(room domain.Room)) {
	p.mu.Lock()
	p.onUpdate = fn
	p.mu.Unlock()
}

// OnRemoteTrack registers the handler that receives share media.
func (p *Party) OnRemoteTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	p.mu.Lock()
	p.onRemoteTrack = fn
	p.mu.Unlock()
}

// Create generates a room code, writes the initial document and enters
// the room as host.
func (p *Party) Create(ctx context.Context) (domain.RoomID, error) {
	if p.InRoom() {
		return "", fmt.Errorf("already in room %s", p.RoomID())
	}
	id := domain.NewRoomID()
	room := domain.NewRoom(id, p.self)
	if err := p.store.Set(ctx, roomPath(id), room); err != nil {
		return "", fmt.Errorf("%w: create room: %v", domain.ErrStore, err)
	}
	p.enter(room, true)
	log.Info().Str("module", "party").Str("room", string(id)).Str("self", string(p.self)).Msg("room created")
	return id, nil
}

// Join fetches the room document, registers this participant and adopts
// the room's media descriptor as immediate local state.
func (p *Party) Join(ctx context.Context, id domain.RoomID) error {
	if p.InRoom() {
		return fmt.Errorf("already in room %s", p.RoomID())
	}
	v, err := p.store.Get(ctx, roomPath(id))
	if err != nil {
		return fmt.Errorf("%w: fetch room: %v", domain.ErrStore, err)
	}
	if v == nil {
		return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
	}
	var room domain.Room
	if err := core.Decode(v, &room); err != nil {
		return fmt.Errorf("%w: decode room: %v", domain.ErrStore, err)
	}

	if err := p.store.Update(ctx, participantsPath(id), map[string]any{string(p.self): true}); err != nil {
		return fmt.Errorf("%w: register participant: %v", domain.ErrStore, err)
	}
	if room.Participants == nil {
		room.Participants = make(map[domain.Identity]bool)
	}
	room.Participants[p.self] = true

	if err := p.appendMessage(ctx, id, room.Messages, domain.NewSystemMessage(string(p.self)+" joined")); err != nil {
		log.Error().Err(err).Str("module", "party").Msg("join announcement")
	}

	p.enter(&room, false)
	log.Info().Str("module", "party").Str("room", string(id)).Str("self", string(p.self)).Msg("joined room")
	return nil
}

func (p *Party) enter(room *domain.Room, isHost bool) {
	sig := NewSignaler(p.store, p.transports, room.ID, p.self)
	sig.OnRemoteTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.mu.Lock()
		fn := p.onRemoteTrack
		p.mu.Unlock()
		if fn != nil {
			fn(track, receiver)
		}
	})

	role := RoleFollower
	if isHost {
		role = RoleHost
	}
	clock := NewSynchronizer(role, p.store, p.player, room.ID, p.cfg.Sync)

	// The room outlives whatever request context created it.
	runCtx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.roomID = room.ID
	p.room = room
	p.isHost = isHost
	p.signaler = sig
	p.clock = clock
	p.cancel = cancel
	p.known = cloneParticipants(room.Participants)
	p.mu.Unlock()

	clock.Start(runCtx)
	clock.OnRoomUpdate(room)
	sig.Listen()

	unsub := p.store.Subscribe(roomPath(room.ID), p.onRoomChange)
	p.mu.Lock()
	p.unsubRoom = unsub
	p.mu.Unlock()
}

func (p *Party) onRoomChange(value any) {
	if value == nil {
		return
	}
	var room domain.Room
	if err := core.Decode(value, &room); err != nil {
		log.Error().Err(err).Str("module", "party").Msg("decode room update")
		return
	}

	p.mu.Lock()
	if p.signaler == nil {
		p.mu.Unlock()
		return
	}
	p.room = &room
	sig := p.signaler
	clock := p.clock
	fn := p.onUpdate

	var newcomers, departed []domain.Identity
	for id, present := range room.Participants {
		if present && id != p.self && !p.known[id] {
			newcomers = append(newcomers, id)
		}
	}
	for id, present := range p.known {
		if present && id != p.self && !room.Participants[id] {
			departed = append(departed, id)
		}
	}
	offerNewcomers := p.amSharing && p.cfg.Share.OfferLateJoiners
	p.known = cloneParticipants(room.Participants)
	p.mu.Unlock()

	clock.OnRoomUpdate(&room)

	for _, peer := range departed {
		sig.CloseSession(peer)
	}
	if offerNewcomers {
		for _, peer := range newcomers {
			if err := sig.CreateSession(context.Background(), peer, true); err != nil {
				log.Error().Err(err).Str("module", "party").Str("peer", string(peer)).Msg("offer late joiner")
			}
		}
	}

	if fn != nil {
		fn(*room.Clone())
	}
}

// LoadMedia classifies the URL, publishes the new media descriptor with
// playback reset, and announces it in chat. Rejected while a share is
// active.
func (p *Party) LoadMedia(ctx context.Context, raw string) error {
	p.mu.Lock()
	id := p.roomID
	room := p.room
	sharing := p.amSharing || (room != nil && room.IsSharing)
	p.mu.Unlock()

	if id == "" {
		return ErrNotInRoom
	}
	if sharing {
		return fmt.Errorf("%w: cannot load media", domain.ErrShareInProgress)
	}

	src, vid, err := ParseMediaURL(raw)
	if err != nil {
		return err
	}

	if err := p.store.Update(ctx, roomPath(id), map[string]any{
		"videoId":     vid,
		"videoSource": src,
		"isPlaying":   false,
		"currentTime": 0,
	}); err != nil {
		return fmt.Errorf("%w: publish media descriptor: %v", domain.ErrStore, err)
	}

	announcement := domain.NewSystemMessage(fmt.Sprintf("%s loaded %s video", p.self, sourceLabel(src)))
	if err := p.appendMessage(ctx, id, p.messages(), announcement); err != nil {
		log.Error().Err(err).Str("module", "party").Msg("media announcement")
	}
	return nil
}

// TogglePlay flips the published play state at the current local
// position and mirrors it on the local player.
func (p *Party) TogglePlay(ctx context.Context) error {
	p.mu.Lock()
	id := p.roomID
	room := p.room
	p.mu.Unlock()

	if id == "" {
		return ErrNotInRoom
	}
	if room == nil || !room.HasVideo() {
		return nil
	}

	playing := !room.IsPlaying
	if err := p.store.Update(ctx, roomPath(id), map[string]any{
		"isPlaying":   playing,
		"currentTime": p.player.CurrentTime(),
	}); err != nil {
		return fmt.Errorf("%w: publish play state: %v", domain.ErrStore, err)
	}
	if playing {
		p.player.Play()
	} else {
		p.player.Pause()
	}
	return nil
}

// SendChat appends a user message to the room's chat log.
func (p *Party) SendChat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	p.mu.Lock()
	id := p.roomID
	p.mu.Unlock()
	if id == "" {
		return ErrNotInRoom
	}
	if !p.limiter.Allow(p.self) {
		return domain.ErrChatRateLimited
	}
	return p.appendMessage(ctx, id, p.messages(), domain.NewUserMessage(p.self, text))
}

// StartShare switches the room into share mode: the media descriptor is
// cleared first (single active source), capture is acquired, and one
// offer goes out per participant present at share start.
func (p *Party) StartShare(ctx context.Context) error {
	p.mu.Lock()
	id := p.roomID
	sig := p.signaler
	sharing := p.amSharing
	p.mu.Unlock()

	if id == "" {
		return ErrNotInRoom
	}
	if sharing {
		return nil
	}

	if err := p.store.Update(ctx, roomPath(id), map[string]any{
		"videoId":     nil,
		"videoSource": nil,
		"isPlaying":   false,
		"currentTime": 0,
	}); err != nil {
		return fmt.Errorf("%w: clear media descriptor: %v", domain.ErrStore, err)
	}

	stream, err := p.capture.Acquire(ctx, core.CaptureConstraints{
		Width:     p.cfg.Share.Width,
		Height:    p.cfg.Share.Height,
		FrameRate: p.cfg.Share.FrameRate,
		Audio:     p.cfg.Share.Audio,
	})
	if err != nil {
		sig.StopAll(ctx, true)
		return fmt.Errorf("acquire capture: %w", err)
	}

	sig.SetCapture(stream)
	stream.OnEnded(func() {
		if err := p.StopShare(context.Background()); err != nil {
			log.Error().Err(err).Str("module", "party").Msg("stop share on track end")
		}
	})

	p.mu.Lock()
	p.amSharing = true
	p.mu.Unlock()

	if err := p.store.Update(ctx, roomPath(id), map[string]any{
		"isSharing": true,
		"shareHost": p.self,
	}); err != nil {
		sig.StopAll(ctx, true)
		p.mu.Lock()
		p.amSharing = false
		p.mu.Unlock()
		return fmt.Errorf("%w: publish share descriptor: %v", domain.ErrStore, err)
	}

	// The fan-out targets the participant set as of share start.
	v, err := p.store.Get(ctx, participantsPath(id))
	if err != nil {
		return fmt.Errorf("%w: fetch participants: %v", domain.ErrStore, err)
	}
	var participants map[domain.Identity]bool
	if err := core.Decode(v, &participants); err != nil {
		return fmt.Errorf("%w: decode participants: %v", domain.ErrStore, err)
	}
	p.mu.Lock()
	p.known = cloneParticipants(participants)
	p.mu.Unlock()

	for peer, present := range participants {
		if !present || peer == p.self {
			continue
		}
		// One peer failing must not block the rest of the fan-out.
		if err := sig.CreateSession(ctx, peer, true); err != nil {
			log.Error().Err(err).Str("module", "party").Str("peer", string(peer)).Msg("offer participant")
		}
	}
	log.Info().Str("module", "party").Str("room", string(id)).Msg("share started")
	return nil
}

// StopShare tears the share down and publishes the teardown so every
// follower sees the share descriptor clear and the signaling subtree
// reclaimed.
func (p *Party) StopShare(ctx context.Context) error {
	p.mu.Lock()
	if !p.amSharing {
		p.mu.Unlock()
		return nil
	}
	p.amSharing = false
	sig := p.signaler
	p.mu.Unlock()

	sig.StopAll(ctx, true)
	log.Info().Str("module", "party").Str("self", string(p.self)).Msg("share stopped")
	return nil
}

// Leave removes this participant from the room and unconditionally
// releases every local session and capture resource, whatever the
// negotiation state.
func (p *Party) Leave(ctx context.Context) error {
	p.mu.Lock()
	id := p.roomID
	if id == "" {
		p.mu.Unlock()
		return nil
	}
	sig := p.signaler
	unsub := p.unsubRoom
	cancel := p.cancel
	wasSharing := p.amSharing

	p.roomID = ""
	p.room = nil
	p.isHost = false
	p.amSharing = false
	p.signaler = nil
	p.clock = nil
	p.unsubRoom = nil
	p.cancel = nil
	p.known = nil
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	sig.Unlisten()

	if err := p.store.Update(ctx, participantsPath(id), map[string]any{string(p.self): nil}); err != nil {
		log.Error().Err(err).Str("module", "party").Msg("remove participant")
	}

	sig.StopAll(ctx, wasSharing)

	if cancel != nil {
		cancel()
	}
	log.Info().Str("module", "party").Str("room", string(id)).Str("self", string(p.self)).Msg("left room")
	return nil
}

// Snapshot returns a copy of the latest room document, nil outside a
// room.
func (p *Party) Snapshot() *domain.Room {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.room.Clone()
}

func (p *Party) InRoom() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roomID != ""
}

func (p *Party) RoomID() domain.RoomID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roomID
}

func (p *Party) Self() domain.Identity { return p.self }

func (p *Party) IsHost() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isHost
}

func (p *Party) AmSharing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.amSharing
}

// Signaler exposes the signaling machine, mainly for session state
// inspection.
func (p *Party) Signaler() *Signaler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signaler
}

func (p *Party) messages() []domain.ChatMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.room == nil {
		return nil
	}
	out := make([]domain.ChatMessage, len(p.room.Messages))
	copy(out, p.room.Messages)
	return out
}

// appendMessage rewrites the chat log with the new entry added. The log
// is small and the store is last-write-wins, same as the rest of the
// document.
func (p *Party) appendMessage(ctx context.Context, id domain.RoomID, current []domain.ChatMessage, msg domain.ChatMessage) error {
	msgs := append(current, msg)
	if err := p.store.Set(ctx, messagesPath(id), msgs); err != nil {
		return fmt.Errorf("%w: append message: %v", domain.ErrStore, err)
	}
	return nil
}

func cloneParticipants(in map[domain.Identity]bool) map[domain.Identity]bool {
	out := make(map[domain.Identity]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
