package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/peersync/watchparty/internal/core"
)

var errEmptyPath = errors.New("store: empty path")

// Redis maps every document path to its own key (<prefix><path>) holding
// a JSON value. Reads of an interior path first try the standalone key,
// then fall back to the nearest ancestor key whose document embeds the
// path; descendant keys are overlaid on top, so a Get("rooms/X") sees
// envelopes written at deeper paths by other participants. Updates
// follow the same resolution, merging into whichever document currently
// holds the path so sibling fields survive. Change notifications travel
// over one pub/sub channel carrying the changed path; every writer
// publishes after a write, which also covers writes from other
// processes.
type Redis struct {
	rdb     *redis.Client
	prefix  string
	channel string

	dmu    sync.Mutex
	subs   map[int]*subscription
	nextID int

	events chan string
	cancel context.CancelFunc
	once   sync.Once
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces all keys and the change channel.
	KeyPrefix string
}

func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "wp:"
	}
	return &Redis{
		rdb:     rdb,
		prefix:  prefix,
		channel: prefix + "!changes",
		subs:    make(map[int]*subscription),
		events:  make(chan string, 256),
	}, nil
}

func (s *Redis) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.rdb.Close()
}

func (s *Redis) key(path string) string {
	return s.prefix + strings.Trim(path, "/")
}

func (s *Redis) Get(ctx context.Context, path string) (any, error) {
	base, err := s.resolve(ctx, path)
	if err != nil {
		return nil, err
	}

	// Overlay descendant keys.
	var doc map[string]any
	if m, ok := base.(map[string]any); ok {
		doc = m
	}
	match := s.key(path) + "/*"
	iter := s.rdb.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		v, err := s.getJSON(ctx, k)
		if err != nil || v == nil {
			continue
		}
		if doc == nil {
			doc = make(map[string]any)
		}
		rel := strings.TrimPrefix(k, s.key(path)+"/")
		insertAt(doc, strings.Split(rel, "/"), v)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if doc != nil {
		return doc, nil
	}
	return base, nil
}

func (s *Redis) getJSON(ctx context.Context, key string) (any, error) {
	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// resolve reads the value at path: the standalone key when present,
// otherwise the field embedded in the nearest ancestor key's document.
func (s *Redis) resolve(ctx context.Context, path string) (any, error) {
	trimmed := strings.Trim(path, "/")
	v, err := s.getJSON(ctx, s.key(trimmed))
	if err != nil || v != nil {
		return v, err
	}
	parts := strings.Split(trimmed, "/")
	for i := len(parts) - 1; i > 0; i-- {
		av, err := s.getJSON(ctx, s.key(strings.Join(parts[:i], "/")))
		if err != nil {
			return nil, err
		}
		if av == nil {
			continue
		}
		if nested := descend(av, parts[i:]); nested != nil {
			return nested, nil
		}
	}
	return nil, nil
}

func descend(v any, parts []string) any {
	for _, p := range parts {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[p]
	}
	return v
}

// insertAt grafts v into doc at the relative path parts.
func insertAt(doc map[string]any, parts []string, v any) {
	for _, p := range parts[:len(parts)-1] {
		next, ok := doc[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			doc[p] = next
		}
		doc = next
	}
	doc[parts[len(parts)-1]] = v
}

// ensureNested walks doc to the map at the relative path parts,
// creating intermediate maps as needed.
func ensureNested(doc map[string]any, parts []string) map[string]any {
	for _, p := range parts {
		next, ok := doc[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			doc[p] = next
		}
		doc = next
	}
	return doc
}

// deleteNested removes the entry at the relative path parts, reporting
// whether anything was deleted.
func deleteNested(doc map[string]any, parts []string) bool {
	for _, p := range parts[:len(parts)-1] {
		next, ok := doc[p].(map[string]any)
		if !ok {
			return false
		}
		doc = next
	}
	last := parts[len(parts)-1]
	if _, ok := doc[last]; !ok {
		return false
	}
	delete(doc, last)
	return true
}

func mergeFields(dst map[string]any, fields map[string]any) {
	for f, v := range fields {
		if v == nil {
			delete(dst, f)
			continue
		}
		dst[f] = v
	}
}

func (s *Redis) Set(ctx context.Context, path string, value any) error {
	if strings.Trim(path, "/") == "" {
		return errEmptyPath
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := s.removeDescendants(ctx, path); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(path), b, 0).Err(); err != nil {
		return err
	}
	return s.publish(ctx, path)
}

func (s *Redis) Update(ctx context.Context, path string, fields map[string]any) error {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return errEmptyPath
	}
	norm := make(map[string]any, len(fields))
	for f, v := range fields {
		if v == nil {
			norm[f] = nil
			continue
		}
		nv, err := core.Normalize(v)
		if err != nil {
			return err
		}
		norm[f] = nv
	}

	base, err := s.getJSON(ctx, s.key(trimmed))
	if err != nil {
		return err
	}
	if doc, ok := base.(map[string]any); ok {
		mergeFields(doc, norm)
		return s.setJSON(ctx, s.key(trimmed), doc, trimmed)
	}

	// The path may live inside an ancestor key's document. Merge there
	// so sibling fields written by other participants survive.
	parts := strings.Split(trimmed, "/")
	for i := len(parts) - 1; i > 0; i-- {
		av, err := s.getJSON(ctx, s.key(strings.Join(parts[:i], "/")))
		if err != nil {
			return err
		}
		doc, ok := av.(map[string]any)
		if !ok {
			continue
		}
		mergeFields(ensureNested(doc, parts[i:]), norm)
		return s.setJSON(ctx, s.key(strings.Join(parts[:i], "/")), doc, trimmed)
	}

	doc := make(map[string]any)
	mergeFields(doc, norm)
	return s.setJSON(ctx, s.key(trimmed), doc, trimmed)
}

func (s *Redis) Remove(ctx context.Context, path string) error {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return errEmptyPath
	}
	if err := s.removeDescendants(ctx, trimmed); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, s.key(trimmed)).Err(); err != nil {
		return err
	}
	// Clear any copy embedded in an ancestor document so it cannot
	// resurface through resolution.
	parts := strings.Split(trimmed, "/")
	for i := len(parts) - 1; i > 0; i-- {
		av, err := s.getJSON(ctx, s.key(strings.Join(parts[:i], "/")))
		if err != nil {
			return err
		}
		doc, ok := av.(map[string]any)
		if !ok {
			continue
		}
		if deleteNested(doc, parts[i:]) {
			return s.setJSON(ctx, s.key(strings.Join(parts[:i], "/")), doc, trimmed)
		}
		break
	}
	return s.publish(ctx, trimmed)
}

func (s *Redis) setJSON(ctx context.Context, key string, v any, changed string) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, key, b, 0).Err(); err != nil {
		return err
	}
	return s.publish(ctx, changed)
}

func (s *Redis) removeDescendants(ctx context.Context, path string) error {
	match := s.key(path) + "/*"
	iter := s.rdb.Scan(ctx, 0, match, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *Redis) publish(ctx context.Context, path string) error {
	return s.rdb.Publish(ctx, s.channel, strings.Trim(path, "/")).Err()
}

func (s *Redis) Subscribe(path string, fn core.ChangeFunc) func() {
	s.once.Do(s.startDispatcher)

	path = strings.Trim(path, "/")
	s.dmu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = &subscription{path: path, fn: fn}
	s.dmu.Unlock()

	// Initial value rides the same dispatch loop as remote changes.
	select {
	case s.events <- path:
	default:
		log.Warn().Str("module", "store.redis").Str("path", path).Msg("event queue full, dropping initial notify")
	}

	return func() {
		s.dmu.Lock()
		delete(s.subs, id)
		s.dmu.Unlock()
	}
}

// startDispatcher runs the single callback goroutine. All subscriber
// callbacks of this client execute here, one at a time.
func (s *Redis) startDispatcher() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	pubsub := s.rdb.Subscribe(ctx, s.channel)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s.dispatch(ctx, msg.Payload)
			case path := <-s.events:
				s.dispatch(ctx, path)
			}
		}
	}()
}

func (s *Redis) dispatch(ctx context.Context, changed string) {
	s.dmu.Lock()
	targets := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if pathsRelated(sub.path, changed) {
			targets = append(targets, sub)
		}
	}
	s.dmu.Unlock()

	for _, sub := range targets {
		v, err := s.Get(ctx, sub.path)
		if err != nil {
			log.Error().Err(err).Str("module", "store.redis").Str("path", sub.path).Msg("get on change")
			continue
		}
		sub.fn(v)
	}
}
