package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/password"
)

// LockState mirrors the lockout engine status.
type LockState struct {
	Locked         bool
	RetryAfter     time.Duration
	FailedAttempts int
	JustLocked     bool
}

// LoginDeps captures password login dependencies.
type LoginDeps struct {
	Hooks
	Completion

	RequireEmailVerification bool

	FindAccount func(ctx context.Context, identifier string) (Account, bool, error)
	ResetRate   func(ctx context.Context, endpoint, client string) error

	CheckLockout  func(ctx context.Context, accountID string) (LockState, error)
	RecordFailure func(ctx context.Context, accountID string) (LockState, error)
	ResetLockout  func(ctx context.Context, accountID string) error

	// Locked builds the host error for a lock with the given remaining time.
	Locked func(retryAfter time.Duration) error

	CheckPassword  func(stored, plain string) error
	CheckMissing   func(plain string)
	NeedsUpgrade   func(stored string) bool
	HashPassword   func(plain string) (string, error)
	UpdatePassword func(ctx context.Context, accountID, hash string) error
}

// RunLogin authenticates identifier/password and either opens a session or
// returns an MFA challenge.
func RunLogin(ctx context.Context, identifier, plain string, deps LoginDeps) (*Result, error) {
	deps.Hooks.fill()
	h := deps.Hooks
	if deps.FindAccount == nil || deps.CheckPassword == nil || deps.CheckLockout == nil ||
		deps.RecordFailure == nil || deps.Locked == nil {
		return nil, h.Errors.EngineNotReady
	}

	ip := h.ClientIP(ctx)
	if err := checkRate(ctx, h, endpointLogin, ip, ""); err != nil {
		h.MetricInc(metrics.MetricLoginRateLimited)
		return nil, err
	}

	fail := func(userID string, err error, reason string) (*Result, error) {
		h.MetricInc(metrics.MetricLoginFailure)
		h.EmitAudit(ctx, auditFailedLogin, statusFailed, userID, "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return nil, err
	}

	acct, found, err := deps.FindAccount(ctx, identifier)
	if err != nil {
		h.Warn("authcore: account lookup failed: %v", err)
		return nil, h.Errors.Unavailable
	}
	if !found {
		if deps.CheckMissing != nil {
			deps.CheckMissing(plain)
		}
		return fail("", h.Errors.InvalidCredentials, "unknown_identifier")
	}

	st, err := deps.CheckLockout(ctx, acct.ID)
	if err != nil {
		h.Warn("authcore: lockout check failed closed: %v", err)
		h.MetricInc(metrics.MetricStoreFailClosed)
		h.MetricInc(metrics.MetricLoginLocked)
		return nil, deps.Locked(st.RetryAfter)
	}
	if st.Locked {
		h.MetricInc(metrics.MetricLoginLocked)
		lockedErr := deps.Locked(st.RetryAfter)
		h.EmitAudit(ctx, auditFailedLogin, statusBlocked, acct.ID, "", lockedErr, func() map[string]string {
			return map[string]string{"reason": "locked"}
		})
		return nil, lockedErr
	}

	if err := deps.CheckPassword(acct.PasswordHash, plain); err != nil {
		if errors.Is(err, password.ErrSentinelCredential) {
			return fail(acct.ID, h.Errors.InvalidCredentials, "no_password_credential")
		}
		if !errors.Is(err, password.ErrMismatch) {
			h.Warn("authcore: password check failed for %s: %v", acct.ID, err)
		}
		st, recErr := deps.RecordFailure(ctx, acct.ID)
		switch {
		case recErr != nil:
			h.Warn("authcore: lockout record failed: %v", recErr)
		case st.JustLocked:
			h.MetricInc(metrics.MetricAccountLocked)
			h.EmitAudit(ctx, auditAccountLockout, statusBlocked, acct.ID, "", nil, func() map[string]string {
				return map[string]string{"retry_after": st.RetryAfter.Round(time.Second).String()}
			})
		}
		return fail(acct.ID, h.Errors.InvalidCredentials, "bad_password")
	}

	if deps.ResetLockout != nil {
		if err := deps.ResetLockout(ctx, acct.ID); err != nil {
			h.Warn("authcore: lockout reset failed: %v", err)
		}
	}
	if deps.ResetRate != nil {
		if err := deps.ResetRate(ctx, endpointLogin, ip); err != nil {
			h.Warn("authcore: rate reset failed: %v", err)
		}
	}

	if acct.Banned {
		h.MetricInc(metrics.MetricAccountBanned)
		return fail(acct.ID, h.Errors.AccountBanned, "banned")
	}
	if deps.RequireEmailVerification && !acct.EmailVerified && !password.IsSentinel(acct.PasswordHash) {
		return fail(acct.ID, h.Errors.EmailNotVerified, "email_not_verified")
	}

	if deps.NeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePassword != nil && deps.NeedsUpgrade(acct.PasswordHash) {
		if hash, err := deps.HashPassword(plain); err == nil {
			if err := deps.UpdatePassword(ctx, acct.ID, hash); err != nil {
				h.Warn("authcore: password rehash failed: %v", err)
			} else {
				acct.PasswordHash = hash
			}
		}
	}

	res, err := complete(ctx, h, deps.Completion, acct, auditLogin, "password")
	if err != nil {
		return nil, err
	}
	if !res.RequiresMFA {
		h.MetricInc(metrics.MetricLoginSuccess)
	}
	return res, nil
}
