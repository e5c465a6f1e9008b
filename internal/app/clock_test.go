package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peersync/watchparty/internal/adapters/store"
	"github.com/peersync/watchparty/internal/config"
	"github.com/peersync/watchparty/internal/core"
	"github.com/peersync/watchparty/internal/domain"
)

func videoRoom(playing bool, at float64) *domain.Room {
	return &domain.Room{
		ID:          "ROOM01",
		VideoID:     "dQw4w9WgXcQ",
		VideoSource: domain.SourceYouTube,
		IsPlaying:   playing,
		CurrentTime: at,
	}
}

func newFollower(player core.Player) *Synchronizer {
	return NewSynchronizer(RoleFollower, store.NewMemory(), player, "ROOM01", config.SyncConfig{
		PublishInterval: 500 * time.Millisecond,
		DriftThreshold:  time.Second,
	})
}

func TestFollowerSeeksBeyondThreshold(t *testing.T) {
	player := &fakePlayer{}
	player.set(core.PlayerPlaying, 10)
	clk := newFollower(player)

	clk.OnRoomUpdate(videoRoom(true, 15))

	seeks, _, _ := player.counts()
	require.Equal(t, 1, seeks)
	require.Equal(t, 15.0, player.CurrentTime())
}

func TestFollowerIgnoresDriftWithinThreshold(t *testing.T) {
	player := &fakePlayer{}
	player.set(core.PlayerPlaying, 10)
	clk := newFollower(player)

	clk.OnRoomUpdate(videoRoom(true, 10.6))

	seeks, _, _ := player.counts()
	require.Equal(t, 0, seeks)
}

func TestFollowerPlayPauseConvergence(t *testing.T) {
	player := &fakePlayer{}
	player.set(core.PlayerPaused, 10)
	clk := newFollower(player)

	clk.OnRoomUpdate(videoRoom(true, 10))
	_, plays, _ := player.counts()
	require.Equal(t, 1, plays)
	require.Equal(t, core.PlayerPlaying, player.State())

	// Already converged updates must not re-issue the command.
	clk.OnRoomUpdate(videoRoom(true, 10))
	clk.OnRoomUpdate(videoRoom(true, 10))
	_, plays, _ = player.counts()
	require.Equal(t, 1, plays)

	clk.OnRoomUpdate(videoRoom(false, 10))
	_, _, pauses := player.counts()
	require.Equal(t, 1, pauses)
	require.Equal(t, core.PlayerPaused, player.State())
}

func TestFollowerLeavesBufferingAlone(t *testing.T) {
	player := &fakePlayer{}
	player.set(core.PlayerBuffering, 0)
	clk := newFollower(player)

	clk.OnRoomUpdate(videoRoom(true, 50))

	seeks, plays, pauses := player.counts()
	require.Zero(t, seeks)
	require.Zero(t, plays)
	require.Zero(t, pauses)
}

func TestFollowerSkipsNonComparableStates(t *testing.T) {
	for _, st := range []core.PlayerState{core.PlayerUnstarted, core.PlayerCued, core.PlayerEnded} {
		player := &fakePlayer{}
		player.set(st, 0)
		clk := newFollower(player)

		clk.OnRoomUpdate(videoRoom(true, 50))

		seeks, plays, pauses := player.counts()
		require.Zero(t, seeks, st.String())
		require.Zero(t, plays, st.String())
		require.Zero(t, pauses, st.String())
	}
}

func TestFollowerSkipsShareAndEmptyRooms(t *testing.T) {
	player := &fakePlayer{}
	player.set(core.PlayerPlaying, 0)
	clk := newFollower(player)

	sharing := videoRoom(true, 50)
	sharing.IsSharing = true
	clk.OnRoomUpdate(sharing)
	clk.OnRoomUpdate(&domain.Room{ID: "ROOM01"})
	clk.OnRoomUpdate(nil)

	seeks, plays, pauses := player.counts()
	require.Zero(t, seeks)
	require.Zero(t, plays)
	require.Zero(t, pauses)
}

func TestHostPublishesClock(t *testing.T) {
	st := store.NewMemory()
	player := &fakePlayer{}
	player.set(core.PlayerPlaying, 42.5)

	clk := NewSynchronizer(RoleHost, st, player, "ROOM01", config.SyncConfig{
		PublishInterval: 5 * time.Millisecond,
		DriftThreshold:  time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk.Start(ctx)
	clk.OnRoomUpdate(videoRoom(true, 0))

	require.Eventually(t, func() bool {
		v, err := st.Get(ctx, "rooms/ROOM01/currentTime")
		return err == nil && v == 42.5
	}, time.Second, 5*time.Millisecond)

	v, err := st.Get(ctx, "rooms/ROOM01/isPlaying")
	require.NoError(t, err)
	require.Equal(t, true, v)
}

func TestHostSuspendsDuringShare(t *testing.T) {
	st := store.NewMemory()
	player := &fakePlayer{}
	player.set(core.PlayerPlaying, 1)

	clk := NewSynchronizer(RoleHost, st, player, "ROOM01", config.SyncConfig{
		PublishInterval: 5 * time.Millisecond,
		DriftThreshold:  time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk.Start(ctx)

	sharing := videoRoom(true, 0)
	sharing.IsSharing = true
	clk.OnRoomUpdate(sharing)

	time.Sleep(50 * time.Millisecond)
	v, err := st.Get(ctx, "rooms/ROOM01/currentTime")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestHostSkipsUnstartedPlayer(t *testing.T) {
	st := store.NewMemory()
	player := &fakePlayer{}

	clk := NewSynchronizer(RoleHost, st, player, "ROOM01", config.SyncConfig{
		PublishInterval: 5 * time.Millisecond,
		DriftThreshold:  time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk.Start(ctx)
	clk.OnRoomUpdate(videoRoom(false, 0))

	time.Sleep(50 * time.Millisecond)
	v, err := st.Get(ctx, "rooms/ROOM01/currentTime")
	require.NoError(t, err)
	require.Nil(t, v)
}
