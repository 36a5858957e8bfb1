package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/kv"
)

// Policy is the budget for one endpoint: at most Max calls per Window.
type Policy struct {
	Max    int           `toml:"max"`
	Window time.Duration `toml:"window"`
}

// Decision is the outcome of a single [Limiter.Check].
type Decision struct {
	Allowed      bool
	Remaining    int
	ResetSeconds int64
	// FailOpen is set when the store could not be reached and the call was
	// allowed without being counted.
	FailOpen bool
}

// Err returns ErrRateLimited for a rejected decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrRateLimited
}

// RetryAfter is the reset time as a duration.
func (d Decision) RetryAfter() time.Duration {
	return time.Duration(d.ResetSeconds) * time.Second
}

// Limiter counts attempts in the fast tier.
type Limiter struct {
	store kv.Store
}

// New creates a [Limiter] on top of store.
func New(store kv.Store) *Limiter {
	return &Limiter{store: store}
}

// Key builds the counter key for an endpoint and client identifier.
func Key(endpoint, client string) string {
	if client == "" {
		client = "unknown"
	}
	return "rate_limit:" + endpoint + ":" + client
}

// Check counts one attempt and reports whether it fits the policy.
func (l *Limiter) Check(ctx context.Context, endpoint, client string, p Policy) (Decision, error) {
	if p.Max <= 0 || p.Window <= 0 {
		return Decision{Allowed: true, Remaining: p.Max}, nil
	}

	count, ttl, err := l.store.Incr(ctx, Key(endpoint, client), p.Window)
	if err != nil {
		return Decision{Allowed: true, Remaining: p.Max, FailOpen: true},
			fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	remaining := p.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:      count <= int64(p.Max),
		Remaining:    remaining,
		ResetSeconds: ceilSeconds(ttl),
	}, nil
}

// Reset clears the counter for endpoint and client.
func (l *Limiter) Reset(ctx context.Context, endpoint, client string) error {
	if err := l.store.Del(ctx, Key(endpoint, client)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	s := int64(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
