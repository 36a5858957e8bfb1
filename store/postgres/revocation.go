package postgres

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/revocation"
)

var _ revocation.Durable = (*RevocationStore)(nil)

// RevocationStore is the durable blacklist tier on token_blacklist.
type RevocationStore struct {
	conn
}

func (s *RevocationStore) Insert(ctx context.Context, e revocation.Entry) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`insert into token_blacklist (token_hash, user_id, reason, created_at, expires_at)
		values ($1, $2, $3, $4, $5) on conflict (token_hash) do nothing`,
		e.TokenHash, e.AccountID, e.Reason, e.CreatedAt, e.ExpiresAt)
	return err
}

func (s *RevocationStore) Exists(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from token_blacklist where token_hash = $1 and expires_at > $2)`,
		tokenHash, now).Scan(&ok)
	return ok, err
}

func (s *RevocationStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `delete from token_blacklist where expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
