package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]Session
	byHash map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Session), byHash: make(map[string]string)}
}

func (m *MemoryStore) Insert(ctx context.Context, s Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = s
	m.byHash[s.TokenHash] = s.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byHash[tokenHash]
	if !ok {
		return Session{}, ErrNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryStore) ListActive(ctx context.Context, accountID string, now time.Time) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]Session, 0)
	for _, s := range m.byID {
		if s.AccountID == accountID && s.Active(now) {
			out = append(out, s)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID > out[j].ID
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (m *MemoryStore) Touch(ctx context.Context, id string, at, expiresAt time.Time) error {
	return m.update(ctx, id, func(s *Session) {
		if s.Active(at) {
			s.LastActivity = at
			s.ExpiresAt = expiresAt
		}
	})
}

func (m *MemoryStore) Rebind(ctx context.Context, id, tokenHash string, at, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !s.Active(at) {
		return ErrExpired
	}
	delete(m.byHash, s.TokenHash)
	s.TokenHash = tokenHash
	s.LastActivity = at
	s.ExpiresAt = expiresAt
	m.byID[id] = s
	m.byHash[tokenHash] = id
	return nil
}

func (m *MemoryStore) update(ctx context.Context, id string, fn func(*Session)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&s)
	m.byID[id] = s
	return nil
}

func (m *MemoryStore) Expire(ctx context.Context, accountID, id string, at time.Time) (Session, error) {
	out, err := m.expireWhere(ctx, at, func(s Session) bool { return s.ID == id && s.AccountID == accountID })
	if err != nil {
		return Session{}, err
	}
	if len(out) == 0 {
		return Session{}, ErrNotFound
	}
	return out[0], nil
}

func (m *MemoryStore) ExpireByTokenHash(ctx context.Context, tokenHash string, at time.Time) (Session, error) {
	out, err := m.expireWhere(ctx, at, func(s Session) bool { return s.TokenHash == tokenHash })
	if err != nil {
		return Session{}, err
	}
	if len(out) == 0 {
		return Session{}, ErrNotFound
	}
	return out[0], nil
}

func (m *MemoryStore) ExpireAll(ctx context.Context, accountID string, at time.Time) ([]Session, error) {
	return m.expireWhere(ctx, at, func(s Session) bool { return s.AccountID == accountID })
}

func (m *MemoryStore) ExpireOthers(ctx context.Context, accountID, keepID string, at time.Time) ([]Session, error) {
	return m.expireWhere(ctx, at, func(s Session) bool { return s.AccountID == accountID && s.ID != keepID })
}

func (m *MemoryStore) expireWhere(ctx context.Context, at time.Time, match func(Session) bool) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for id, s := range m.byID {
		if !match(s) || !s.Active(at) {
			continue
		}
		prev := s
		s.ExpiresAt = at
		m.byID[id] = s
		out = append(out, prev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.byID {
		if s.ExpiresAt.Before(before) {
			delete(m.byID, id)
			if m.byHash[s.TokenHash] == id {
				delete(m.byHash, s.TokenHash)
			}
			n++
		}
	}
	return n, nil
}
