package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/MrEthical07/authcore/lockout"
)

var _ lockout.Store = (*LockoutStore)(nil)

// LockoutStore implements [lockout.Store]. Update holds a row lock for the
// duration of the read-modify-write.
type LockoutStore struct {
	conn
}

func scanLockout(row scanner, accountID string) (lockout.Record, error) {
	var (
		rec    = lockout.Record{AccountID: accountID}
		last   sql.NullTime
		locked sql.NullTime
	)
	err := row.Scan(&rec.FailedAttempts, &last, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return lockout.Record{AccountID: accountID}, nil
	}
	if err != nil {
		return lockout.Record{}, err
	}
	if last.Valid {
		rec.LastAttempt = last.Time
	}
	rec.LockedUntil = timePtr(locked)
	return rec, nil
}

func (s *LockoutStore) Get(ctx context.Context, accountID string) (lockout.Record, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return scanLockout(s.db.QueryRowContext(ctx,
		`select failed_attempts, last_attempt, locked_until from lockout_records where user_id = $1`, accountID), accountID)
}

func (s *LockoutStore) Update(ctx context.Context, accountID string, fn func(*lockout.Record)) (lockout.Record, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var out lockout.Record
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`insert into lockout_records (user_id) values ($1) on conflict (user_id) do nothing`, accountID); err != nil {
			return err
		}
		rec, err := scanLockout(tx.QueryRowContext(ctx,
			`select failed_attempts, last_attempt, locked_until from lockout_records where user_id = $1 for update`,
			accountID), accountID)
		if err != nil {
			return err
		}
		fn(&rec)

		var last sql.NullTime
		if !rec.LastAttempt.IsZero() {
			last = sql.NullTime{Time: rec.LastAttempt, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`update lockout_records set failed_attempts = $2, last_attempt = $3, locked_until = $4 where user_id = $1`,
			accountID, rec.FailedAttempts, last, nullTime(rec.LockedUntil)); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return lockout.Record{}, err
	}
	return out, nil
}

func (s *LockoutStore) Reset(ctx context.Context, accountID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `delete from lockout_records where user_id = $1`, accountID)
	return err
}
