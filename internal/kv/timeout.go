package kv

import (
	"context"
	"time"
)

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout bounds every call on store by d. d <= 0 returns store as is.
func WithTimeout(store Store, d time.Duration) Store {
	if d <= 0 || store == nil {
		return store
	}
	return &timeoutStore{next: store, timeout: d}
}

func (t *timeoutStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.timeout)
}

func (t *timeoutStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.Incr(ctx, key, ttl)
}

func (t *timeoutStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.Get(ctx, key)
}

func (t *timeoutStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.Set(ctx, key, value, ttl)
}

func (t *timeoutStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.SetNX(ctx, key, value, ttl)
}

func (t *timeoutStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.Exists(ctx, key)
}

func (t *timeoutStore) GetDel(ctx context.Context, key string) (string, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.GetDel(ctx, key)
}

func (t *timeoutStore) Del(ctx context.Context, keys ...string) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.next.Del(ctx, keys...)
}
