package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/password"
)

var _ authcore.AccountStore = (*AccountStore)(nil)

const accountColumns = `id, username, coalesce(email, ''), password_hash, role, coalesce(wallet_address, ''),
	email_verified, mfa_enabled, mfa_secret, recovery_codes, banned, banned_until, last_login,
	created_at, updated_at`

// AccountStore implements [authcore.AccountStore] on the accounts table.
// Emails and usernames compare case-insensitively; wallet addresses are
// stored lower-case.
type AccountStore struct {
	conn
}

func scanAccount(row scanner) (*authcore.Account, error) {
	var (
		a           authcore.Account
		codes       []byte
		bannedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role, &a.WalletAddress,
		&a.EmailVerified, &a.MFAEnabled, &a.MFASecret, &codes, &a.Banned, &bannedUntil, &lastLogin,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrAccountNotFound
		}
		return nil, err
	}
	if len(codes) > 0 {
		if err := json.Unmarshal(codes, &a.RecoveryCodes); err != nil {
			return nil, fmt.Errorf("postgres: decode recovery codes of %s: %w", a.ID, err)
		}
	}
	a.BannedUntil = timePtr(bannedUntil)
	a.LastLogin = timePtr(lastLogin)
	return &a, nil
}

func (s *AccountStore) getOne(ctx context.Context, where string, arg any) (*authcore.Account, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where `+where, arg)
	return scanAccount(row)
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*authcore.Account, error) {
	return s.getOne(ctx, `id = $1`, id)
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, authcore.ErrAccountNotFound
	}
	return s.getOne(ctx, `lower(email) = lower($1)`, strings.TrimSpace(email))
}

func (s *AccountStore) GetByWallet(ctx context.Context, address string) (*authcore.Account, error) {
	if strings.TrimSpace(address) == "" {
		return nil, authcore.ErrAccountNotFound
	}
	return s.getOne(ctx, `wallet_address = lower($1)`, strings.TrimSpace(address))
}

// GetByLogin prefers a username match over an email match over a wallet
// match.
func (s *AccountStore) GetByLogin(ctx context.Context, identifier string) (*authcore.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, authcore.ErrAccountNotFound
	}
	return s.getOne(ctx, `lower(username) = lower($1) or lower(email) = lower($1) or wallet_address = lower($1)
		order by case when lower(username) = lower($1) then 0 when lower(email) = lower($1) then 1 else 2 end
		limit 1`, identifier)
}

func (s *AccountStore) Create(ctx context.Context, a *authcore.Account) error {
	if a == nil || a.ID == "" || a.Username == "" {
		return authcore.ErrInvalidAccount
	}
	codes, err := encodeCodes(a.RecoveryCodes)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err = s.db.ExecContext(ctx,
		`insert into accounts (id, username, email, password_hash, role, wallet_address, email_verified,
			mfa_enabled, mfa_secret, recovery_codes, banned, banned_until, last_login, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.Username, nullString(strings.TrimSpace(a.Email)), a.PasswordHash, a.Role,
		nullString(strings.ToLower(a.WalletAddress)), a.EmailVerified, a.MFAEnabled, a.MFASecret, codes,
		a.Banned, nullTime(a.BannedUntil), nullTime(a.LastLogin), a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return authcore.ErrAccountExists
	}
	return err
}

// exec runs an update of one account and maps "no row" to ErrAccountNotFound.
func (s *AccountStore) exec(ctx context.Context, query string, args ...any) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

func (s *AccountStore) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.exec(ctx, `update accounts set password_hash = $2, updated_at = now() where id = $1`, id, hash)
}

func (s *AccountStore) MarkEmailVerified(ctx context.Context, id string) error {
	return s.exec(ctx, `update accounts set email_verified = true, updated_at = now() where id = $1`, id)
}

func (s *AccountStore) SetMFA(ctx context.Context, id string, enabled bool, secret string, recoveryCodes []string) error {
	codes, err := encodeCodes(recoveryCodes)
	if err != nil {
		return err
	}
	return s.exec(ctx,
		`update accounts set mfa_enabled = $2, mfa_secret = $3, recovery_codes = $4, updated_at = now() where id = $1`,
		id, enabled, secret, codes)
}

// ConsumeRecoveryCode removes codeHash from the stored array in a single
// statement, so only one caller can spend a given code.
func (s *AccountStore) ConsumeRecoveryCode(ctx context.Context, id, codeHash string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`update accounts set recovery_codes = recovery_codes - $2::text, updated_at = now()
		where id = $1 and recovery_codes ? $2::text`, id, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *AccountStore) SetRole(ctx context.Context, id, role string) error {
	return s.exec(ctx, `update accounts set role = $2, updated_at = now() where id = $1`, id, role)
}

func (s *AccountStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, `update accounts set last_login = $2 where id = $1`, id, at)
}

// SetBan sets or lifts a ban. until nil with banned true is permanent.
func (s *AccountStore) SetBan(ctx context.Context, id string, banned bool, until *time.Time) error {
	return s.exec(ctx, `update accounts set banned = $2, banned_until = $3, updated_at = now() where id = $1`,
		id, banned, nullTime(until))
}

func (s *AccountStore) DeleteUnverified(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`delete from accounts where email_verified = false and password_hash <> $2 and password_hash <> $3
		and created_at < $1`, before, password.SentinelWallet, password.SentinelOAuth)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func encodeCodes(codes []string) ([]byte, error) {
	if codes == nil {
		codes = []string{}
	}
	b, err := json.Marshal(codes)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode recovery codes: %w", err)
	}
	return b, nil
}
