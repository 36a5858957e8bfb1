package lockout

import (
	"context"
	"sync"
)

// MemoryStore keeps lockout records in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(ctx context.Context, accountID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[accountID]
	if !ok {
		return Record{AccountID: accountID}, nil
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) Update(ctx context.Context, accountID string, fn func(*Record)) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[accountID]
	if !ok {
		rec = Record{AccountID: accountID}
	}
	rec = copyRecord(rec)
	fn(&rec)
	s.records[accountID] = rec
	return copyRecord(rec), nil
}

func (s *MemoryStore) Reset(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.records, accountID)
	s.mu.Unlock()
	return nil
}

func copyRecord(r Record) Record {
	if r.LockedUntil != nil {
		until := *r.LockedUntil
		r.LockedUntil = &until
	}
	return r
}
