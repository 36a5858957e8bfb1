package web3

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps challenges in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Challenge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Challenge)}
}

func memoryKey(address, nonce string) string {
	return address + "|" + nonce
}

func (m *MemoryStore) Insert(ctx context.Context, c Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.items[memoryKey(c.Address, c.Nonce)] = c
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Consume(ctx context.Context, address, nonce string, at time.Time) (Challenge, error) {
	if err := ctx.Err(); err != nil {
		return Challenge{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(address, nonce)
	c, ok := m.items[k]
	if !ok || c.UsedAt != nil || !at.Before(c.ExpiresAt) {
		return Challenge{}, ErrNotFound
	}
	used := at
	c.UsedAt = &used
	m.items[k] = c
	return c, nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, c := range m.items {
		if c.ExpiresAt.Before(before) {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}
