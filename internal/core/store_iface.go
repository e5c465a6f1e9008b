package core

import (
	"context"
	"encoding/json"
)

// ChangeFunc receives the full current value at the subscribed path. A
// nil value means the path is empty.
type ChangeFunc func(value any)

// Store is the shared room store the coordinator runs against: a
// hierarchical document tree addressed by slash-delimited paths. The
// store is assumed to provide last-write-wins field updates and push
// notifications on change; replication and consistency are its problem,
// not ours.
//
// Subscribe delivers the value at the path on every change, including
// the initial value right after subscribing. Implementations must invoke
// callbacks from a single dispatch goroutine per client so that no two
// handlers run concurrently.
type Store interface {
	Get(ctx context.Context, path string) (any, error)
	Set(ctx context.Context, path string, value any) error
	// Update merges the named fields into the object at path without
	// disturbing sibling fields. A nil field value clears the field.
	Update(ctx context.Context, path string, fields map[string]any) error
	Remove(ctx context.Context, path string) error
	Subscribe(path string, fn ChangeFunc) (unsubscribe func())
}

// Decode converts a store value (JSON-normalized any tree) into a typed
// struct via a JSON round trip.
func Decode(value any, out any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// Normalize converts a typed value into the any-tree form stores hold.
func Normalize(value any) (any, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
