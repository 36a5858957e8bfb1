package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	authcore "github.com/MrEthical07/authcore"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultQueryTimeout bounds every statement when no timeout is configured.
const DefaultQueryTimeout = 3 * time.Second

const uniqueViolation = "23505"

// Open connects through the pgx database/sql driver and pings the server.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("postgres: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Stores bundles a durable implementation of every engine store.
type Stores struct {
	Accounts   *AccountStore
	Sessions   *SessionStore
	Refresh    *RefreshStore
	Lockout    *LockoutStore
	Revocation *RevocationStore
	Challenges *ChallengeStore
	Audit      *AuditSink
}

// New builds every store on db. Each statement runs under timeout; zero means
// [DefaultQueryTimeout].
func New(db *sql.DB, timeout time.Duration) *Stores {
	c := conn{db: db, timeout: timeout}
	if c.timeout <= 0 {
		c.timeout = DefaultQueryTimeout
	}
	return &Stores{
		Accounts:   &AccountStore{conn: c},
		Sessions:   &SessionStore{conn: c},
		Refresh:    &RefreshStore{conn: c},
		Lockout:    &LockoutStore{conn: c},
		Revocation: &RevocationStore{conn: c},
		Challenges: &ChallengeStore{conn: c},
		Audit:      &AuditSink{conn: c},
	}
}

// Attach registers every store with b.
func (s *Stores) Attach(b *authcore.Builder) *authcore.Builder {
	return b.
		WithAccounts(s.Accounts).
		WithSessionStore(s.Sessions).
		WithRefreshStore(s.Refresh).
		WithLockoutStore(s.Lockout).
		WithRevocationStore(s.Revocation).
		WithChallengeStore(s.Challenges).
		WithAuditSink(s.Audit)
}

type conn struct {
	db      *sql.DB
	timeout time.Duration
}

func (c conn) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// inTx runs fn in a transaction that is rolled back unless fn succeeds.
func (c conn) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
