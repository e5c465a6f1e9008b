// Package store provides Room Store Client implementations: an
// in-process tree store and a Redis-backed one. Both normalize values
// through JSON so the document shape is identical across backends.
package store

import (
	"context"
	"strings"
	"sync"

	"github.com/peersync/watchparty/internal/core"
)

type subscription struct {
	path string
	fn   core.ChangeFunc
}

// Memory keeps the document tree in process memory. Change callbacks are
// dispatched one at a time: a write performed inside a callback is queued
// and delivered after the current callback returns, never recursively.
type Memory struct {
	mu   sync.Mutex
	root map[string]any

	dmu      sync.Mutex
	subs     map[int]*subscription
	nextID   int
	queue    []int
	draining bool
}

func NewMemory() *Memory {
	return &Memory{
		root: make(map[string]any),
		subs: make(map[int]*subscription),
	}
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// pathsRelated reports whether a change at b is visible from a
// subscription at a: either path contains the other.
func pathsRelated(a, b string) bool {
	return a == b || strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}

func (s *Memory) lookup(parts []string) (any, bool) {
	var node any = s.root
	for _, p := range parts {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// parent walks to the map holding the last path element, creating
// intermediate maps when create is set.
func (s *Memory) parent(parts []string, create bool) (map[string]any, string, bool) {
	m := s.root
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			if !create {
				return nil, "", false
			}
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	return m, parts[len(parts)-1], true
}

func (s *Memory) Get(_ context.Context, path string) (any, error) {
	parts := splitPath(path)
	s.mu.Lock()
	node, ok := s.lookup(parts)
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	// Copy so callers and callbacks never alias the live tree.
	return core.Normalize(node)
}

func (s *Memory) Set(_ context.Context, path string, value any) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return errEmptyPath
	}
	v, err := core.Normalize(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	m, key, _ := s.parent(parts, true)
	m[key] = v
	s.mu.Unlock()
	s.notify(path)
	return nil
}

func (s *Memory) Update(_ context.Context, path string, fields map[string]any) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return errEmptyPath
	}
	s.mu.Lock()
	m, key, _ := s.parent(parts, true)
	node, ok := m[key].(map[string]any)
	if !ok {
		node = make(map[string]any)
		m[key] = node
	}
	for f, v := range fields {
		if v == nil {
			delete(node, f)
			continue
		}
		nv, err := core.Normalize(v)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		node[f] = nv
	}
	s.mu.Unlock()
	s.notify(path)
	return nil
}

func (s *Memory) Remove(_ context.Context, path string) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return errEmptyPath
	}
	s.mu.Lock()
	m, key, ok := s.parent(parts, false)
	if ok {
		delete(m, key)
	}
	s.mu.Unlock()
	if ok {
		s.notify(path)
	}
	return nil
}

func (s *Memory) Subscribe(path string, fn core.ChangeFunc) func() {
	path = strings.Trim(path, "/")
	s.dmu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = &subscription{path: path, fn: fn}
	s.queue = append(s.queue, id)
	s.dmu.Unlock()

	s.drain()

	return func() {
		s.dmu.Lock()
		delete(s.subs, id)
		s.dmu.Unlock()
	}
}

func (s *Memory) notify(path string) {
	path = strings.Trim(path, "/")
	s.dmu.Lock()
	for id, sub := range s.subs {
		if pathsRelated(sub.path, path) {
			s.queue = append(s.queue, id)
		}
	}
	s.dmu.Unlock()
	s.drain()
}

// drain delivers queued notifications. Only one drainer runs at a time;
// anything enqueued while a callback executes is picked up by the active
// drainer, which serializes all handler execution.
func (s *Memory) drain() {
	s.dmu.Lock()
	if s.draining {
		s.dmu.Unlock()
		return
	}
	s.draining = true
	s.dmu.Unlock()

	for {
		s.dmu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.dmu.Unlock()
			return
		}
		id := s.queue[0]
		s.queue = s.queue[1:]
		sub, ok := s.subs[id]
		s.dmu.Unlock()

		if !ok {
			continue
		}
		v, err := s.Get(context.Background(), sub.path)
		if err != nil {
			continue
		}
		sub.fn(v)
	}
}
