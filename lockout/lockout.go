package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable wraps store failures.
	ErrUnavailable = errors.New("lockout store unavailable")
)

// FailClosedRetry is the retry hint returned when the lockout state cannot be read.
const FailClosedRetry = time.Minute

// Policy configures the backoff curve.
type Policy struct {
	Threshold int           `toml:"threshold"`
	Base      time.Duration `toml:"base"`
	Cap       time.Duration `toml:"cap"`
}

// DefaultPolicy locks after 5 failures for 15 minutes, doubling up to 4 hours.
func DefaultPolicy() Policy {
	return Policy{Threshold: 5, Base: 15 * time.Minute, Cap: 240 * time.Minute}
}

// Backoff returns the lock duration earned by attempts consecutive failures, or
// zero while attempts is below the threshold.
func (p Policy) Backoff(attempts int) time.Duration {
	if p.Threshold <= 0 || attempts < p.Threshold {
		return 0
	}
	d := p.Base
	for i := 0; i < attempts-p.Threshold; i++ {
		if p.Cap > 0 && d >= p.Cap {
			break
		}
		d *= 2
	}
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	return d
}

// Record is the persisted lockout state of one account.
type Record struct {
	AccountID      string
	FailedAttempts int
	LastAttempt    time.Time
	LockedUntil    *time.Time
}

// Store persists lockout records.
type Store interface {
	// Get returns the record for accountID, or a zero record when none exists.
	Get(ctx context.Context, accountID string) (Record, error)
	// Update runs fn against the current record and persists the result. Calls
	// for the same account must not interleave.
	Update(ctx context.Context, accountID string, fn func(*Record)) (Record, error)
	// Reset drops the counter and any lock.
	Reset(ctx context.Context, accountID string) error
}

// Status is the read-only view returned to callers.
type Status struct {
	Locked         bool
	RetryAfter     time.Duration
	FailedAttempts int
	// JustLocked is set by RecordFailure when this failure started a lock.
	JustLocked bool
}

// RemainingSeconds rounds RetryAfter up to whole seconds.
func (s Status) RemainingSeconds() int64 {
	if s.RetryAfter <= 0 {
		return 0
	}
	secs := int64(s.RetryAfter / time.Second)
	if s.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// Engine applies a [Policy] on top of a [Store].
type Engine struct {
	store  Store
	policy Policy
	now    func() time.Time
}

// New creates an [Engine].
func New(store Store, policy Policy) *Engine {
	return &Engine{store: store, policy: policy, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Policy returns the configured policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Check reports whether accountID is currently locked. When the store cannot be
// read the returned status is locked and the error wraps ErrUnavailable.
func (e *Engine) Check(ctx context.Context, accountID string) (Status, error) {
	rec, err := e.store.Get(ctx, accountID)
	if err != nil {
		return Status{Locked: true, RetryAfter: FailClosedRetry}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return e.status(rec), nil
}

// RecordFailure counts one failed credential check and locks the account when
// the policy says so.
func (e *Engine) RecordFailure(ctx context.Context, accountID string) (Status, error) {
	var justLocked bool
	rec, err := e.store.Update(ctx, accountID, func(r *Record) {
		now := e.now()
		r.AccountID = accountID
		r.FailedAttempts++
		r.LastAttempt = now
		if d := e.policy.Backoff(r.FailedAttempts); d > 0 {
			until := now.Add(d)
			r.LockedUntil = &until
			justLocked = true
		}
	})
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	st := e.status(rec)
	st.JustLocked = justLocked
	return st, nil
}

// Reset clears the counter after a successful credential check.
func (e *Engine) Reset(ctx context.Context, accountID string) error {
	if err := e.store.Reset(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (e *Engine) status(rec Record) Status {
	st := Status{FailedAttempts: rec.FailedAttempts}
	if rec.LockedUntil == nil {
		return st
	}
	if remaining := rec.LockedUntil.Sub(e.now()); remaining > 0 {
		st.Locked = true
		st.RetryAfter = remaining
	}
	return st
}
