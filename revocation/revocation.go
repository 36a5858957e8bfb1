package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/kv"
)

// ErrUnavailable is wrapped when a tier cannot answer.
var ErrUnavailable = errors.New("revocation store unavailable")

const keyPrefix = "blacklist:"

// Entry is a durable blacklist row.
type Entry struct {
	TokenHash string
	AccountID string
	Reason    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Durable is the source-of-truth tier.
type Durable interface {
	// Insert adds an entry. Inserting an existing hash is a no-op.
	Insert(ctx context.Context, e Entry) error
	Exists(ctx context.Context, tokenHash string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Store combines the fast and durable tiers.
type Store struct {
	cache   kv.Store
	durable Durable
	now     func() time.Time
}

// New returns a two-tier store. Either tier may be nil, but not both.
func New(cache kv.Store, durable Durable) *Store {
	return &Store{cache: cache, durable: durable, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// TokenHash returns the digest entries are keyed by.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Blacklist revokes token until expiresAt.
func (s *Store) Blacklist(ctx context.Context, token, accountID, reason string, expiresAt time.Time) error {
	return s.BlacklistHash(ctx, TokenHash(token), accountID, reason, expiresAt)
}

// BlacklistHash revokes a token known only by its digest. Entries whose expiry
// has already passed are not written.
func (s *Store) BlacklistHash(ctx context.Context, tokenHash, accountID, reason string, expiresAt time.Time) error {
	now := s.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}

	var errs []error
	if s.cache != nil {
		if err := s.cache.Set(ctx, keyPrefix+tokenHash, reasonOrDefault(reason), ttl); err != nil {
			errs = append(errs, err)
		}
	}
	if s.durable != nil {
		err := s.durable.Insert(ctx, Entry{
			TokenHash: tokenHash,
			AccountID: accountID,
			Reason:    reasonOrDefault(reason),
			ExpiresAt: expiresAt,
			CreatedAt: now,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrUnavailable, errors.Join(errs...))
	}
	return nil
}

// IsBlacklisted reports whether token is revoked. A tier error with no positive
// answer from the other tier returns true.
func (s *Store) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return s.IsHashBlacklisted(ctx, TokenHash(token))
}

// IsHashBlacklisted is IsBlacklisted for a precomputed digest.
func (s *Store) IsHashBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	var cacheErr error
	if s.cache != nil {
		hit, err := s.cache.Exists(ctx, keyPrefix+tokenHash)
		if err == nil && hit {
			return true, nil
		}
		cacheErr = err
	}

	if s.durable == nil {
		if cacheErr != nil {
			return true, fmt.Errorf("%w: %v", ErrUnavailable, cacheErr)
		}
		return false, nil
	}
	hit, err := s.durable.Exists(ctx, tokenHash, s.now())
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrUnavailable, errors.Join(cacheErr, err))
	}
	return hit, nil
}

// Purge removes durable entries that expired before now. The fast tier expires
// on its own.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	if s.durable == nil {
		return 0, nil
	}
	n, err := s.durable.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

func reasonOrDefault(reason string) string {
	if reason == "" {
		return "logout"
	}
	return reason
}
