package refresh

import (
	"context"
	"time"
)

// Store persists refresh token entries keyed by hash.
type Store interface {
	Insert(ctx context.Context, t Token) error
	Get(ctx context.Context, hash string) (Token, error)
	// HasChild reports whether any entry names hash as its parent.
	HasChild(ctx context.Context, hash string) (bool, error)
	// Rotate stamps parentHash as rotated and inserts child in one transaction.
	// It returns ErrAlreadyRotated when parentHash was rotated before.
	Rotate(ctx context.Context, parentHash string, child Token, at time.Time) error
	// FlagFamily marks every entry of family as reused and revoked and returns
	// the distinct session ids bound to it.
	FlagFamily(ctx context.Context, family string) ([]string, error)
	RevokeFamily(ctx context.Context, family string) (int64, error)
	RevokeSession(ctx context.Context, sessionID string) (int64, error)
	RevokeAccount(ctx context.Context, accountID string) (int64, error)
	CountActive(ctx context.Context, accountID string, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
