package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/refresh"
)

var _ refresh.Store = (*RefreshStore)(nil)

const refreshColumns = `id, user_id, session_id, token_hash, token_family, parent_token_hash, created_at,
	expires_at, rotated_at, is_revoked, reuse_detected`

// RefreshStore implements [refresh.Store] on refresh_tokens. Only token
// hashes are stored.
type RefreshStore struct {
	conn
}

func scanRefresh(row scanner) (refresh.Token, error) {
	var (
		t       refresh.Token
		rotated sql.NullTime
	)
	err := row.Scan(&t.ID, &t.AccountID, &t.SessionID, &t.Hash, &t.Family, &t.ParentHash, &t.CreatedAt,
		&t.ExpiresAt, &rotated, &t.Revoked, &t.ReuseDetected)
	if errors.Is(err, sql.ErrNoRows) {
		return refresh.Token{}, refresh.ErrNotFound
	}
	t.RotatedAt = timePtr(rotated)
	return t, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRefresh(ctx context.Context, db execer, t refresh.Token) error {
	_, err := db.ExecContext(ctx,
		`insert into refresh_tokens (`+refreshColumns+`) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.AccountID, t.SessionID, t.Hash, t.Family, t.ParentHash, t.CreatedAt,
		t.ExpiresAt, nullTime(t.RotatedAt), t.Revoked, t.ReuseDetected)
	return err
}

func (s *RefreshStore) Insert(ctx context.Context, t refresh.Token) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return insertRefresh(ctx, s.db, t)
}

func (s *RefreshStore) Get(ctx context.Context, hash string) (refresh.Token, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return scanRefresh(s.db.QueryRowContext(ctx,
		`select `+refreshColumns+` from refresh_tokens where token_hash = $1`, hash))
}

func (s *RefreshStore) HasChild(ctx context.Context, hash string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from refresh_tokens where parent_token_hash = $1)`, hash).Scan(&ok)
	return ok, err
}

// Rotate stamps the parent and inserts the child in one transaction. The
// rotated_at guard in the update makes a concurrent second rotation fail.
func (s *RefreshStore) Rotate(ctx context.Context, parentHash string, child refresh.Token, at time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`update refresh_tokens set rotated_at = $2 where token_hash = $1 and rotated_at is null`,
			parentHash, at)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`select exists(select 1 from refresh_tokens where token_hash = $1)`, parentHash).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return refresh.ErrNotFound
			}
			return refresh.ErrAlreadyRotated
		}
		return insertRefresh(ctx, tx, child)
	})
}

func (s *RefreshStore) FlagFamily(ctx context.Context, family string) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		`with flagged as (
			update refresh_tokens set reuse_detected = true, is_revoked = true
			where token_family = $1 returning session_id
		)
		select distinct session_id from flagged where session_id <> '' order by session_id`, family)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *RefreshStore) revoke(ctx context.Context, column, value string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set is_revoked = true where `+column+` = $1 and is_revoked = false`, value)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *RefreshStore) RevokeFamily(ctx context.Context, family string) (int64, error) {
	return s.revoke(ctx, "token_family", family)
}

func (s *RefreshStore) RevokeSession(ctx context.Context, sessionID string) (int64, error) {
	return s.revoke(ctx, "session_id", sessionID)
}

func (s *RefreshStore) RevokeAccount(ctx context.Context, accountID string) (int64, error) {
	return s.revoke(ctx, "user_id", accountID)
}

func (s *RefreshStore) CountActive(ctx context.Context, accountID string, now time.Time) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var n int64
	err := s.db.QueryRowContext(ctx,
		`select count(*) from refresh_tokens where user_id = $1 and is_revoked = false
		and reuse_detected = false and rotated_at is null and expires_at > $2`, accountID, now).Scan(&n)
	return n, err
}

func (s *RefreshStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `delete from refresh_tokens where expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
