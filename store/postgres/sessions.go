package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/session"
)

var _ session.Store = (*SessionStore)(nil)

const sessionColumns = `id, user_id, token_hash, device_name, ip_address, user_agent, created_at, last_activity, expires_at`

// SessionStore implements [session.Store]. Ending a session sets its
// expires_at; rows are removed by the reaper.
type SessionStore struct {
	conn
}

func scanSession(row scanner) (session.Session, error) {
	var s session.Session
	err := row.Scan(&s.ID, &s.AccountID, &s.TokenHash, &s.DeviceName, &s.IP, &s.UserAgent,
		&s.CreatedAt, &s.LastActivity, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	return s, err
}

func scanSessions(rows *sql.Rows) ([]session.Session, error) {
	defer rows.Close()
	var out []session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (s *SessionStore) Insert(ctx context.Context, sess session.Session) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`insert into sessions (`+sessionColumns+`) values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.AccountID, sess.TokenHash, sess.DeviceName, sess.IP, sess.UserAgent,
		sess.CreatedAt, sess.LastActivity, sess.ExpiresAt)
	return err
}

func (s *SessionStore) Get(ctx context.Context, id string) (session.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return scanSession(s.db.QueryRowContext(ctx, `select `+sessionColumns+` from sessions where id = $1`, id))
}

func (s *SessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (session.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return scanSession(s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where token_hash = $1 order by expires_at desc limit 1`, tokenHash))
}

func (s *SessionStore) ListActive(ctx context.Context, accountID string, now time.Time) ([]session.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		`select `+sessionColumns+` from sessions where user_id = $1 and expires_at > $2
		order by last_activity desc, id desc`, accountID, now)
	if err != nil {
		return nil, err
	}
	out, err := scanSessions(rows)
	if out == nil && err == nil {
		out = []session.Session{}
	}
	return out, err
}

// Touch extends an active session. Inactive or missing sessions are left
// alone.
func (s *SessionStore) Touch(ctx context.Context, id string, at, expiresAt time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`update sessions set last_activity = $2, expires_at = $3 where id = $1 and expires_at > $2`,
		id, at, expiresAt)
	return err
}

func (s *SessionStore) Rebind(ctx context.Context, id, tokenHash string, at, expiresAt time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`update sessions set token_hash = $2, last_activity = $3, expires_at = $4 where id = $1 and expires_at > $3`,
		id, tokenHash, at, expiresAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `select exists(select 1 from sessions where id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return session.ErrExpired
		}
		return session.ErrNotFound
	}
	return nil
}

func (s *SessionStore) expireOne(ctx context.Context, query string, args ...any) (session.Session, error) {
	out, err := s.expire(ctx, query, args...)
	if err != nil {
		return session.Session{}, err
	}
	if len(out) == 0 {
		return session.Session{}, session.ErrNotFound
	}
	return out[0], nil
}

func (s *SessionStore) expire(ctx context.Context, query string, args ...any) ([]session.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query+` returning `+sessionColumns, args...)
	if err != nil {
		return nil, err
	}
	return scanSessions(rows)
}

func (s *SessionStore) Expire(ctx context.Context, accountID, id string, at time.Time) (session.Session, error) {
	return s.expireOne(ctx,
		`update sessions set expires_at = $3 where user_id = $1 and id = $2 and expires_at > $3`,
		accountID, id, at)
}

func (s *SessionStore) ExpireByTokenHash(ctx context.Context, tokenHash string, at time.Time) (session.Session, error) {
	return s.expireOne(ctx,
		`update sessions set expires_at = $2 where token_hash = $1 and expires_at > $2`,
		tokenHash, at)
}

func (s *SessionStore) ExpireAll(ctx context.Context, accountID string, at time.Time) ([]session.Session, error) {
	return s.expire(ctx,
		`update sessions set expires_at = $2 where user_id = $1 and expires_at > $2`,
		accountID, at)
}

func (s *SessionStore) ExpireOthers(ctx context.Context, accountID, keepID string, at time.Time) ([]session.Session, error) {
	return s.expire(ctx,
		`update sessions set expires_at = $3 where user_id = $1 and id <> $2 and expires_at > $3`,
		accountID, keepID, at)
}

func (s *SessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `delete from sessions where expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
