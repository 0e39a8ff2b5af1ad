// Package metadata implements the client's durable key/value store. The
// credential store is built on top of Repository; backends are SQLite (the
// default), Redis and an in-memory map.
package metadata

import (
	"context"
)

// Repository is an asynchronous key/value store.
//
// Get returns (nil, nil) for an absent key. Delete of an absent key is not an
// error.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}

// BatchSetter is implemented by backends that can write several keys
// atomically.
type BatchSetter interface {
	SetMany(ctx context.Context, values map[string][]byte) error
}
