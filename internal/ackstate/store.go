package ackstate

import "context"

// Store persists the single current state per key. Missing keys read as
// StateAvailable; rows are never deleted.
type Store interface {
	Get(ctx context.Context, key Key) (State, error)
	Set(ctx context.Context, key Key, state State) error
	// CompareAndSet writes next only when the current state is expected and
	// reports whether it did.
	CompareAndSet(ctx context.Context, key Key, expected, next State) (bool, error)
	GetMany(ctx context.Context, keys []Key) (map[Key]State, error)
}
