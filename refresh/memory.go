package refresh

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps refresh entries in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]Token
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]Token)}
}

func (s *MemoryStore) Insert(ctx context.Context, t Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.byHash[t.Hash] = copyToken(t)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, hash string) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[hash]
	if !ok {
		return Token{}, ErrNotFound
	}
	return copyToken(t), nil
}

func (s *MemoryStore) HasChild(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.byHash {
		if t.ParentHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Rotate(ctx context.Context, parentHash string, child Token, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.byHash[parentHash]
	if !ok {
		return ErrNotFound
	}
	if parent.RotatedAt != nil {
		return ErrAlreadyRotated
	}
	stamp := at
	parent.RotatedAt = &stamp
	s.byHash[parentHash] = parent
	s.byHash[child.Hash] = copyToken(child)
	return nil
}

func (s *MemoryStore) FlagFamily(ctx context.Context, family string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for h, t := range s.byHash {
		if t.Family != family {
			continue
		}
		t.ReuseDetected = true
		t.Revoked = true
		s.byHash[h] = t
		if t.SessionID != "" {
			seen[t.SessionID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) RevokeFamily(ctx context.Context, family string) (int64, error) {
	return s.revokeWhere(ctx, func(t Token) bool { return t.Family == family })
}

func (s *MemoryStore) RevokeSession(ctx context.Context, sessionID string) (int64, error) {
	return s.revokeWhere(ctx, func(t Token) bool { return t.SessionID == sessionID })
}

func (s *MemoryStore) RevokeAccount(ctx context.Context, accountID string) (int64, error) {
	return s.revokeWhere(ctx, func(t Token) bool { return t.AccountID == accountID })
}

func (s *MemoryStore) revokeWhere(ctx context.Context, match func(Token) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, t := range s.byHash {
		if !match(t) || t.Revoked {
			continue
		}
		t.Revoked = true
		s.byHash[h] = t
		n++
	}
	return n, nil
}

func (s *MemoryStore) CountActive(ctx context.Context, accountID string, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.byHash {
		if t.AccountID == accountID && t.Active(now) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, t := range s.byHash {
		if t.ExpiresAt.Before(before) {
			delete(s.byHash, h)
			n++
		}
	}
	return n, nil
}

func copyToken(t Token) Token {
	if t.RotatedAt != nil {
		at := *t.RotatedAt
		t.RotatedAt = &at
	}
	return t
}
