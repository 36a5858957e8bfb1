package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryDurable is an in-process [Durable] tier.
type MemoryDurable struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryDurable() *MemoryDurable {
	return &MemoryDurable{entries: make(map[string]Entry)}
}

func (m *MemoryDurable) Insert(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.TokenHash]; ok {
		return nil
	}
	m.entries[e.TokenHash] = e
	return nil
}

func (m *MemoryDurable) Exists(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[tokenHash]
	return ok && e.ExpiresAt.After(now), nil
}

func (m *MemoryDurable) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, e := range m.entries {
		if !e.ExpiresAt.After(before) {
			delete(m.entries, h)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries.
func (m *MemoryDurable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
