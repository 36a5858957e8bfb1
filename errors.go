package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials never says whether the identifier or the secret was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by every [*LockedError].
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountBanned is returned for accounts with a ban still in force.
	ErrAccountBanned = errors.New("account banned")
	// ErrEmailNotVerified is returned for password logins before email confirmation.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrAccountExists is returned when a username or email is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is returned by account stores for unknown accounts.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidAccount is returned for malformed registration input.
	ErrInvalidAccount = errors.New("invalid account data")
	// ErrPasswordPolicy is returned when a new password is too short or too long.
	ErrPasswordPolicy = errors.New("password policy violation")

	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
	// ErrReuseDetected means a rotated refresh token was presented again. The
	// whole token family has been revoked when it is returned.
	ErrReuseDetected = errors.New("refresh token reuse detected")

	ErrMFARequired          = errors.New("mfa required")
	ErrInvalidMFACode       = errors.New("invalid mfa code")
	ErrMFAChallengeExpired  = errors.New("mfa challenge expired")
	ErrMFAAlreadyEnabled    = errors.New("mfa already enabled")
	ErrMFANotConfigured     = errors.New("mfa not configured")
	ErrMFAMethodUnavailable = errors.New("mfa method unavailable")

	// ErrRateLimited is matched by every [*RateLimitError].
	ErrRateLimited = errors.New("rate limited")

	ErrInvalidCode = errors.New("invalid or expired code")
	ErrCodeExpired = errors.New("code expired")

	ErrInvalidAddress      = errors.New("invalid wallet address")
	ErrInvalidSignature    = errors.New("invalid wallet signature")
	ErrInvalidChallenge    = errors.New("invalid or expired wallet challenge")
	ErrWalletRegistered    = errors.New("wallet already registered")
	ErrWalletNotRegistered = errors.New("wallet not registered")

	ErrSessionNotFound  = errors.New("session not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidRole      = errors.New("invalid role")
	ErrInvalidRequest   = errors.New("invalid request")

	// ErrUnavailable wraps backing-store failures on paths that cannot fail open.
	ErrUnavailable    = errors.New("auth backend unavailable")
	ErrEngineNotReady = errors.New("engine not initialized")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// LockedError carries the time left on an account lock.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %ds", e.RetrySeconds())
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RetrySeconds rounds RetryAfter up to whole seconds.
func (e *LockedError) RetrySeconds() int64 {
	return ceilSeconds(e.RetryAfter)
}

// RateLimitError is returned when an endpoint budget for a client is spent.
type RateLimitError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry in %ds", e.Endpoint, e.RetrySeconds())
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetrySeconds rounds RetryAfter up to whole seconds.
func (e *RateLimitError) RetrySeconds() int64 {
	return ceilSeconds(e.RetryAfter)
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
