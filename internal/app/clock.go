package app

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/peersync/watchparty/internal/config"
	"github.com/peersync/watchparty/internal/core"
	"github.com/peersync/watchparty/internal/domain"
)

type Role int

const (
	RoleHost Role = iota
	RoleFollower
)

// clockStrategy is picked once at construction: the host publishes, a
// follower reconciles. Neither ever does the other's job.
type clockStrategy interface {
	start(ctx context.Context)
	onRoomUpdate(room *domain.Room)
}

// Synchronizer keeps a participant's playback converged with the
// host-authoritative clock in the room document.
type Synchronizer struct {
	strategy clockStrategy
}

func NewSynchronizer(role Role, store core.Store, player core.Player, roomID domain.RoomID, cfg config.SyncConfig) *Synchronizer {
	if role == RoleHost {
		return &Synchronizer{strategy: &hostPublisher{
			store:    store,
			player:   player,
			roomID:   roomID,
			interval: cfg.PublishInterval,
		}}
	}
	return &Synchronizer{strategy: &followerReconciler{
		player:    player,
		threshold: cfg.DriftThreshold.Seconds(),
	}}
}

// Start launches the host's publication loop; for followers it is a
// no-op.
func (s *Synchronizer) Start(ctx context.Context) {
	s.strategy.start(ctx)
}

// OnRoomUpdate feeds every room document change into the strategy.
func (s *Synchronizer) OnRoomUpdate(room *domain.Room) {
	s.strategy.onRoomUpdate(room)
}

// hostPublisher samples the local player on a fixed interval and
// overwrites the room's clock fields. Publication is fire and forget.
type hostPublisher struct {
	store    core.Store
	player   core.Player
	roomID   domain.RoomID
	interval time.Duration

	mu          sync.Mutex
	publishable bool
}

func (h *hostPublisher) start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.publish(ctx)
			}
		}
	}()
}

func (h *hostPublisher) publish(ctx context.Context) {
	h.mu.Lock()
	ok := h.publishable
	h.mu.Unlock()
	if !ok {
		return
	}

	st := h.player.State()
	if st == core.PlayerUnstarted || st == core.PlayerCued {
		return
	}
	err := h.store.Update(ctx, roomPath(h.roomID), map[string]any{
		"currentTime": h.player.CurrentTime(),
		"isPlaying":   st == core.PlayerPlaying,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "clock").Msg("publish clock")
	}
}

// onRoomUpdate only tracks whether publication should run: a share
// suspends the clock, resuming video mode resumes it.
func (h *hostPublisher) onRoomUpdate(room *domain.Room) {
	h.mu.Lock()
	h.publishable = room != nil && room.HasVideo() && !room.IsSharing
	h.mu.Unlock()
}

// followerReconciler corrects the local player on every published
// update: a hard seek when drift exceeds the threshold, plus play/pause
// convergence. Buffering is left alone so the correction never fights
// the player's own recovery.
type followerReconciler struct {
	player    core.Player
	threshold float64
}

func (f *followerReconciler) start(context.Context) {}

func (f *followerReconciler) onRoomUpdate(room *domain.Room) {
	if room == nil || !room.HasVideo() || room.IsSharing {
		return
	}

	st := f.player.State()
	// No valid position to compare in these states.
	if st == core.PlayerUnstarted || st == core.PlayerCued || st == core.PlayerEnded {
		return
	}

	if st != core.PlayerBuffering {
		if math.Abs(f.player.CurrentTime()-room.CurrentTime) > f.threshold {
			f.player.SeekTo(room.CurrentTime)
		}
	}

	if room.IsPlaying && st == core.PlayerPaused {
		f.player.Play()
	} else if !room.IsPlaying && st == core.PlayerPlaying {
		f.player.Pause()
	}
}
