package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/web3"
)

var _ web3.Store = (*ChallengeStore)(nil)

// ChallengeStore implements [web3.Store] on web3_challenges.
type ChallengeStore struct {
	conn
}

func (s *ChallengeStore) Insert(ctx context.Context, c web3.Challenge) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`insert into web3_challenges (address, nonce, message, created_at, expires_at) values ($1, $2, $3, $4, $5)`,
		c.Address, c.Nonce, c.Message, c.CreatedAt, c.ExpiresAt)
	return err
}

// Consume marks the challenge used with a guarded update, so a nonce is
// accepted at most once.
func (s *ChallengeStore) Consume(ctx context.Context, address, nonce string, at time.Time) (web3.Challenge, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	c := web3.Challenge{UsedAt: &at}
	err := s.db.QueryRowContext(ctx,
		`update web3_challenges set used_at = $3
		where address = $1 and nonce = $2 and used_at is null and expires_at > $3
		returning address, nonce, message, created_at, expires_at`,
		address, nonce, at).Scan(&c.Address, &c.Nonce, &c.Message, &c.CreatedAt, &c.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return web3.Challenge{}, web3.ErrNotFound
	}
	if err != nil {
		return web3.Challenge{}, err
	}
	return c, nil
}

func (s *ChallengeStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `delete from web3_challenges where expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
