package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultWindow is the rolling session lifetime.
const DefaultWindow = 24 * time.Hour

// touchInterval bounds how often activity is written back for one session.
const touchInterval = time.Minute

var (
	ErrNotFound    = errors.New("session not found")
	ErrExpired     = errors.New("session expired")
	ErrUnavailable = errors.New("session store unavailable")
)

// Session is one logged-in device.
type Session struct {
	ID           string
	AccountID    string
	TokenHash    string
	DeviceName   string
	IP           string
	UserAgent    string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
}

// Active reports whether the session is usable at now.
func (s Session) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// Device describes the client a session is created for.
type Device struct {
	IP        string
	UserAgent string
	Name      string
}

// Store persists sessions. Expire* methods only touch sessions still active at
// the given instant and return what they changed.
type Store interface {
	Insert(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (Session, error)
	// ListActive returns sessions of accountID active at now, most recent
	// activity first.
	ListActive(ctx context.Context, accountID string, now time.Time) ([]Session, error)
	Touch(ctx context.Context, id string, at, expiresAt time.Time) error
	// Rebind only moves sessions still active at at. It returns ErrExpired for
	// an ended session and ErrNotFound for an unknown id.
	Rebind(ctx context.Context, id, tokenHash string, at, expiresAt time.Time) error
	Expire(ctx context.Context, accountID, id string, at time.Time) (Session, error)
	ExpireByTokenHash(ctx context.Context, tokenHash string, at time.Time) (Session, error)
	ExpireAll(ctx context.Context, accountID string, at time.Time) ([]Session, error)
	ExpireOthers(ctx context.Context, accountID, keepID string, at time.Time) ([]Session, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a time-sortable session id.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// DeviceName classifies a user agent as Mobile, Tablet or Desktop.
func DeviceName(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Mobile"):
		return "Mobile"
	case strings.Contains(userAgent, "Tablet"), strings.Contains(userAgent, "iPad"):
		return "Tablet"
	default:
		return "Desktop"
	}
}

// Registry applies the rolling window on top of a [Store].
type Registry struct {
	store  Store
	window time.Duration
	now    func() time.Time
}

// NewRegistry returns a registry. window <= 0 uses DefaultWindow.
func NewRegistry(store Store, window time.Duration) *Registry {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Registry{store: store, window: window, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	if now != nil {
		r.now = now
	}
	return r
}

// Window returns the rolling lifetime.
func (r *Registry) Window() time.Duration {
	return r.window
}

// Create registers a session for accountID bound to tokenHash.
func (r *Registry) Create(ctx context.Context, accountID, tokenHash string, dev Device) (Session, error) {
	return r.Open(ctx, NewID(), accountID, tokenHash, dev)
}

// Open is Create with a caller-chosen id, for tokens that must carry the
// session id before the session row exists.
func (r *Registry) Open(ctx context.Context, id, accountID, tokenHash string, dev Device) (Session, error) {
	now := r.now()
	name := dev.Name
	if name == "" {
		name = DeviceName(dev.UserAgent)
	}
	s := Session{
		ID:           id,
		AccountID:    accountID,
		TokenHash:    tokenHash,
		DeviceName:   name,
		IP:           dev.IP,
		UserAgent:    dev.UserAgent,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(r.window),
	}
	if err := r.store.Insert(ctx, s); err != nil {
		return Session{}, wrap(err)
	}
	return s, nil
}

// Lookup returns the active session bound to tokenHash.
func (r *Registry) Lookup(ctx context.Context, tokenHash string) (Session, error) {
	s, err := r.store.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return Session{}, wrap(err)
	}
	if !s.Active(r.now()) {
		return s, ErrExpired
	}
	return s, nil
}

// Touch records activity and pushes the expiry forward. Writes are skipped
// when the last one is recent.
func (r *Registry) Touch(ctx context.Context, s Session) error {
	now := r.now()
	if now.Sub(s.LastActivity) < touchInterval {
		return nil
	}
	if err := r.store.Touch(ctx, s.ID, now, now.Add(r.window)); err != nil {
		return wrap(err)
	}
	return nil
}

// Rebind moves a session to a new access token and restarts its window.
// Ended sessions stay ended.
func (r *Registry) Rebind(ctx context.Context, sessionID, tokenHash string) error {
	now := r.now()
	if err := r.store.Rebind(ctx, sessionID, tokenHash, now, now.Add(r.window)); err != nil {
		return wrap(err)
	}
	return nil
}

// Get returns a session regardless of its state.
func (r *Registry) Get(ctx context.Context, id string) (Session, error) {
	s, err := r.store.Get(ctx, id)
	if err != nil {
		return Session{}, wrap(err)
	}
	return s, nil
}

// List returns the active sessions of accountID, most recent first.
func (r *Registry) List(ctx context.Context, accountID string) ([]Session, error) {
	out, err := r.store.ListActive(ctx, accountID, r.now())
	if err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

// Invalidate ends one session owned by accountID.
func (r *Registry) Invalidate(ctx context.Context, accountID, sessionID string) (Session, error) {
	s, err := r.store.Expire(ctx, accountID, sessionID, r.now())
	if err != nil {
		return Session{}, wrap(err)
	}
	return s, nil
}

// InvalidateByToken ends the session bound to tokenHash.
func (r *Registry) InvalidateByToken(ctx context.Context, tokenHash string) (Session, error) {
	s, err := r.store.ExpireByTokenHash(ctx, tokenHash, r.now())
	if err != nil {
		return Session{}, wrap(err)
	}
	return s, nil
}

// InvalidateAll ends every active session of accountID.
func (r *Registry) InvalidateAll(ctx context.Context, accountID string) ([]Session, error) {
	out, err := r.store.ExpireAll(ctx, accountID, r.now())
	if err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

// InvalidateOthers ends every active session of accountID except keepID.
func (r *Registry) InvalidateOthers(ctx context.Context, accountID, keepID string) ([]Session, error) {
	out, err := r.store.ExpireOthers(ctx, accountID, keepID, r.now())
	if err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

// Purge deletes sessions that expired more than grace ago.
func (r *Registry) Purge(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := r.store.DeleteExpired(ctx, r.now().Add(-grace))
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

func wrap(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrExpired):
		return ErrExpired
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
