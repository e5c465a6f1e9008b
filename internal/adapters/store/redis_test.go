package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedis(context.Background(), RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisSetGet(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "rooms/ABC123", map[string]any{"host": "alice", "isPlaying": true}))

	v, err := s.Get(ctx, "rooms/ABC123")
	require.NoError(t, err)
	doc, ok := v.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "alice", doc["host"])
	require.Equal(t, true, doc["isPlaying"])

	v, err = s.Get(ctx, "rooms/ABC123/host")
	require.NoError(t, err)
	require.Equal(t, "alice", v)

	v, err = s.Get(ctx, "rooms/missing")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestRedisUpdateMergesEmbeddedFields(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	// The room document embeds participants; a joiner updates the
	// interior path without ever having written a standalone key there.
	require.NoError(t, s.Set(ctx, "rooms/R", map[string]any{
		"host":         "alice",
		"isPlaying":    false,
		"participants": map[string]any{"alice": true},
	}))
	require.NoError(t, s.Update(ctx, "rooms/R/participants", map[string]any{"bob": true}))

	v, err := s.Get(ctx, "rooms/R")
	require.NoError(t, err)
	doc := v.(map[string]any)
	require.Equal(t, "alice", doc["host"])
	parts := doc["participants"].(map[string]any)
	require.Equal(t, true, parts["alice"])
	require.Equal(t, true, parts["bob"])

	require.NoError(t, s.Update(ctx, "rooms/R/participants", map[string]any{"alice": nil}))

	v, err = s.Get(ctx, "rooms/R/participants")
	require.NoError(t, err)
	parts = v.(map[string]any)
	require.NotContains(t, parts, "alice")
	require.Equal(t, true, parts["bob"])
}

func TestRedisUpdateMergesAndClears(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "rooms/R", map[string]any{
		"host":      "alice",
		"isSharing": true,
		"shareHost": "alice",
	}))
	require.NoError(t, s.Update(ctx, "rooms/R", map[string]any{
		"isSharing": false,
		"shareHost": nil,
	}))

	v, err := s.Get(ctx, "rooms/R")
	require.NoError(t, err)
	doc := v.(map[string]any)
	require.Equal(t, "alice", doc["host"])
	require.Equal(t, false, doc["isSharing"])
	require.NotContains(t, doc, "shareHost")
}

func TestRedisUpdateCreatesPath(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, "rooms/R/participants", map[string]any{"bob": true}))

	v, err := s.Get(ctx, "rooms/R/participants/bob")
	require.NoError(t, err)
	require.Equal(t, true, v)
}

func TestRedisGetOverlaysDescendantKeys(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "rooms/R", map[string]any{"host": "alice"}))
	require.NoError(t, s.Set(ctx, "rooms/R/webrtc/bob/offer", map[string]any{"sdp": "v=0", "from": "alice"}))

	v, err := s.Get(ctx, "rooms/R")
	require.NoError(t, err)
	doc := v.(map[string]any)
	require.Equal(t, "alice", doc["host"])
	offer := doc["webrtc"].(map[string]any)["bob"].(map[string]any)["offer"].(map[string]any)
	require.Equal(t, "v=0", offer["sdp"])
}

func TestRedisRemove(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "rooms/R", map[string]any{
		"host":         "alice",
		"participants": map[string]any{"alice": true, "bob": true},
	}))
	require.NoError(t, s.Set(ctx, "rooms/R/webrtc/bob/offer", map[string]any{"sdp": "v=0"}))

	require.NoError(t, s.Remove(ctx, "rooms/R/webrtc"))
	v, err := s.Get(ctx, "rooms/R/webrtc")
	require.NoError(t, err)
	require.Nil(t, v)

	// Removing a field embedded in the room document must not let it
	// resurface through ancestor resolution.
	require.NoError(t, s.Remove(ctx, "rooms/R/participants/bob"))
	v, err = s.Get(ctx, "rooms/R/participants")
	require.NoError(t, err)
	parts := v.(map[string]any)
	require.NotContains(t, parts, "bob")
	require.Equal(t, true, parts["alice"])
}

func TestRedisSubscribeDeliversInitialAndChanges(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "rooms/R", map[string]any{"host": "alice"}))

	var mu sync.Mutex
	var seen []any
	unsub := s.Subscribe("rooms/R", func(v any) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Update(ctx, "rooms/R", map[string]any{"isPlaying": true}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, "alice", seen[0].(map[string]any)["host"])
	require.Equal(t, true, seen[1].(map[string]any)["isPlaying"])
	mu.Unlock()

	unsub()
	require.NoError(t, s.Set(ctx, "rooms/R", map[string]any{"host": "carol"}))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	require.Len(t, seen, 2)
	mu.Unlock()
}

func TestRedisSubscribeDescendantSeesAncestorWrite(t *testing.T) {
	s := newTestRedis(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []any
	unsub := s.Subscribe("rooms/R/isPlaying", func(v any) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})
	defer unsub()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Set(ctx, "rooms/R", map[string]any{"isPlaying": true}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2 && seen[len(seen)-1] == true
	}, 2*time.Second, 10*time.Millisecond)
}
