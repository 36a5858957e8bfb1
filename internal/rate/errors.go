package rate

import "errors"

var (
	// ErrRateLimited is returned by [Decision.Err] when the window budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable marks a fail-open decision.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)
