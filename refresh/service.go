package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the lifetime of a refresh token.
const DefaultTTL = 7 * 24 * time.Hour

// Service issues, rotates and revokes refresh tokens.
type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewService returns a service. ttl <= 0 uses DefaultTTL.
func NewService(store Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue starts a new family for accountID bound to sessionID.
func (s *Service) Issue(ctx context.Context, accountID, sessionID string) (Issued, error) {
	return s.insert(ctx, accountID, sessionID, uuid.NewString(), "")
}

func (s *Service) insert(ctx context.Context, accountID, sessionID, family, parent string) (Issued, error) {
	plain, err := newOpaqueToken()
	if err != nil {
		return Issued{}, err
	}
	rec := s.newRecord(plain, accountID, sessionID, family, parent)
	if err := s.store.Insert(ctx, rec); err != nil {
		return Issued{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Issued{Token: plain, Record: rec}, nil
}

func (s *Service) newRecord(plain, accountID, sessionID, family, parent string) Token {
	now := s.now()
	return Token{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		SessionID:  sessionID,
		Hash:       Hash(plain),
		Family:     family,
		ParentHash: parent,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}
}

// Exchange rotates token and returns its successor. A replayed token revokes
// its whole family and yields a [*ReuseError].
func (s *Service) Exchange(ctx context.Context, token string) (Issued, error) {
	if !wellFormed(token) {
		return Issued{}, ErrInvalid
	}
	hash := Hash(token)
	rec, err := s.lookup(ctx, hash)
	if err != nil {
		return Issued{}, err
	}

	reused, err := s.hasChild(ctx, rec)
	if err != nil {
		return Issued{}, err
	}
	if reused {
		return Issued{}, s.flag(ctx, rec)
	}
	if rec.Revoked || rec.ReuseDetected {
		return Issued{}, ErrRevoked
	}
	if !s.now().Before(rec.ExpiresAt) {
		return Issued{}, ErrExpired
	}

	plain, err := newOpaqueToken()
	if err != nil {
		return Issued{}, err
	}
	child := s.newRecord(plain, rec.AccountID, rec.SessionID, rec.Family, rec.Hash)
	if err := s.store.Rotate(ctx, rec.Hash, child, s.now()); err != nil {
		if errors.Is(err, ErrAlreadyRotated) {
			// Lost a race with another exchange of the same token.
			return Issued{}, s.flag(ctx, rec)
		}
		return Issued{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Issued{Token: plain, Record: child}, nil
}

// Verify reports whether token is the live head of a family of accountID.
// A token that was already rotated away counts as revoked.
func (s *Service) Verify(ctx context.Context, accountID, token string) error {
	if !wellFormed(token) {
		return ErrInvalid
	}
	rec, err := s.lookup(ctx, Hash(token))
	if err != nil {
		return err
	}
	if rec.AccountID != accountID {
		return ErrInvalid
	}
	if rec.Revoked || rec.ReuseDetected || rec.RotatedAt != nil {
		return ErrRevoked
	}
	if !s.now().Before(rec.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

// DetectReuse reports whether token was already rotated away. When it was, the
// family is flagged and revoked before returning true.
func (s *Service) DetectReuse(ctx context.Context, accountID, token string) (bool, error) {
	if !wellFormed(token) {
		return false, nil
	}
	rec, err := s.lookup(ctx, Hash(token))
	if err != nil {
		if errors.Is(err, ErrInvalid) {
			return false, nil
		}
		return false, err
	}
	if rec.AccountID != accountID {
		return false, nil
	}
	reused, err := s.hasChild(ctx, rec)
	if err != nil || !reused {
		return false, err
	}
	flagErr := s.flag(ctx, rec)
	if errors.Is(flagErr, ErrUnavailable) {
		return true, flagErr
	}
	return true, nil
}

// RevokeFamily revokes every entry of family.
func (s *Service) RevokeFamily(ctx context.Context, family string) error {
	if _, err := s.store.RevokeFamily(ctx, family); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeSession revokes the entries bound to sessionID.
func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	if _, err := s.store.RevokeSession(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeAll revokes every entry of accountID.
func (s *Service) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	n, err := s.store.RevokeAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// ActiveCount counts the exchangeable tokens of accountID.
func (s *Service) ActiveCount(ctx context.Context, accountID string) (int64, error) {
	n, err := s.store.CountActive(ctx, accountID, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// CleanupExpired deletes entries that expired before now minus grace.
func (s *Service) CleanupExpired(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

func (s *Service) lookup(ctx context.Context, hash string) (Token, error) {
	rec, err := s.store.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Token{}, ErrInvalid
		}
		return Token{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

func (s *Service) hasChild(ctx context.Context, rec Token) (bool, error) {
	if rec.RotatedAt != nil {
		return true, nil
	}
	ok, err := s.store.HasChild(ctx, rec.Hash)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

func (s *Service) flag(ctx context.Context, rec Token) error {
	sessions, err := s.store.FlagFamily(ctx, rec.Family)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &ReuseError{AccountID: rec.AccountID, Family: rec.Family, SessionIDs: sessions}
}
