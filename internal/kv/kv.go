package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is missing or expired.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable wraps transport-level store failures.
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Store is the TTL key-value contract shared by the Redis and in-process tiers.
type Store interface {
	// Incr atomically increments key. The first increment of a window attaches
	// ttl; later increments keep the existing expiry. It returns the new count
	// and the time left before the window lapses.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	// GetDel returns the value and removes the key in one step.
	GetDel(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}
