package flows

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/metrics"
)

// MFADeps captures the second-factor step of a sign-in.
type MFADeps struct {
	Hooks
	Completion

	// ValidateChallenge returns the account id bound to a temp token, or
	// Errors.MFAChallengeExpired / Errors.TokenInvalid.
	ValidateChallenge func(token string) (string, error)
	LoadAccount       func(ctx context.Context, accountID string) (Account, error)
	CheckLockout      func(ctx context.Context, accountID string) (LockState, error)
	Locked            func(retryAfter time.Duration) error

	// NewSecret returns a provisioning for secret, or a fresh secret when
	// secret is empty.
	NewSecret         func(acct Account, secret string) (Setup, error)
	SavePendingSecret func(ctx context.Context, accountID, secret string) error
	VerifyTOTP        func(secret, code string) (int64, bool, error)
	MarkStepUsed      func(ctx context.Context, accountID string, step int64) (bool, error)

	// ConsumeRecoveryCode atomically spends code and reports whether it matched.
	ConsumeRecoveryCode func(ctx context.Context, acct Account, code string) (bool, error)

	// EnableMFA turns a verified pending secret on and returns the plain
	// recovery codes.
	EnableMFA func(ctx context.Context, acct Account) ([]string, error)

	// ConsumeEmailCode returns nil, Errors.MFAChallengeExpired,
	// Errors.InvalidMFACode or Errors.Unavailable.
	ConsumeEmailCode func(ctx context.Context, accountID, code string) error
}

// RunVerifyMFA completes a challenged sign-in with a TOTP code, a recovery
// code or an emailed code. An empty TOTP code is a setup request for accounts
// that have not enabled MFA yet.
func RunVerifyMFA(ctx context.Context, tempToken, method, code string, deps MFADeps) (*Result, error) {
	deps.Hooks.fill()
	h := deps.Hooks
	if deps.ValidateChallenge == nil || deps.LoadAccount == nil || deps.VerifyTOTP == nil {
		return nil, h.Errors.EngineNotReady
	}

	if err := checkRate(ctx, h, endpointVerifyMFA, h.ClientIP(ctx), ""); err != nil {
		return nil, err
	}

	accountID, err := deps.ValidateChallenge(tempToken)
	if err != nil {
		h.MetricInc(metrics.MetricMFAFailure)
		return nil, err
	}

	acct, err := deps.LoadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if deps.CheckLockout != nil && deps.Locked != nil {
		st, err := deps.CheckLockout(ctx, acct.ID)
		if err != nil {
			h.Warn("authcore: lockout check failed closed: %v", err)
			h.MetricInc(metrics.MetricStoreFailClosed)
			return nil, deps.Locked(st.RetryAfter)
		}
		if st.Locked {
			return nil, deps.Locked(st.RetryAfter)
		}
	}
	if acct.Banned {
		h.MetricInc(metrics.MetricAccountBanned)
		return nil, h.Errors.AccountBanned
	}

	fail := func(err error, reason string) (*Result, error) {
		h.MetricInc(metrics.MetricMFAFailure)
		h.EmitAudit(ctx, auditMFAFailed, statusFailed, acct.ID, "", err, func() map[string]string {
			return map[string]string{"method": method, "reason": reason}
		})
		return nil, err
	}

	code = strings.TrimSpace(code)
	var (
		usedRecovery bool
		enableNow    bool
	)

	switch method {
	case "", "totp":
		if code == "" {
			return runTOTPSetup(ctx, h, deps, acct)
		}
		if acct.MFASecret == "" {
			return fail(h.Errors.MFANotConfigured, "not_configured")
		}

		step, ok, err := deps.VerifyTOTP(acct.MFASecret, code)
		if err != nil {
			ok = false
		}
		if ok && deps.MarkStepUsed != nil {
			fresh, err := deps.MarkStepUsed(ctx, acct.ID, step)
			if err != nil {
				h.Warn("authcore: totp replay guard unavailable: %v", err)
				return nil, h.Errors.Unavailable
			}
			if !fresh {
				h.MetricInc(metrics.MetricTOTPReplay)
				return fail(h.Errors.InvalidMFACode, "replay")
			}
		}
		if !ok && acct.MFAEnabled && deps.ConsumeRecoveryCode != nil {
			used, err := deps.ConsumeRecoveryCode(ctx, acct, code)
			if err != nil {
				h.Warn("authcore: recovery code consume failed: %v", err)
				return nil, h.Errors.Unavailable
			}
			if used {
				ok = true
				usedRecovery = true
				h.MetricInc(metrics.MetricRecoveryCodeUsed)
				remaining := len(acct.RecoveryCodes) - 1
				h.EmitAudit(ctx, auditRecoveryCodeUsed, statusSuccess, acct.ID, "", nil, func() map[string]string {
					return map[string]string{"recovery_codes_remaining": strconv.Itoa(max(remaining, 0))}
				})
			}
		}
		if !ok {
			return fail(h.Errors.InvalidMFACode, "bad_code")
		}
		enableNow = !acct.MFAEnabled

	case "email":
		if acct.Email == "" {
			return fail(h.Errors.MFAMethodUnavailable, "no_email")
		}
		if deps.ConsumeEmailCode == nil {
			return nil, h.Errors.EngineNotReady
		}
		if err := deps.ConsumeEmailCode(ctx, acct.ID, code); err != nil {
			return fail(err, "bad_email_code")
		}

	default:
		return fail(h.Errors.MFAMethodUnavailable, "unknown_method")
	}

	var codes []string
	if enableNow {
		if deps.EnableMFA == nil {
			return nil, h.Errors.EngineNotReady
		}
		codes, err = deps.EnableMFA(ctx, acct)
		if err != nil {
			return nil, err
		}
		acct.MFAEnabled = true
		h.MetricInc(metrics.MetricMFAEnabled)
		h.EmitAudit(ctx, auditMFAEnabled, statusSuccess, acct.ID, "", nil, nil)
	}

	h.MetricInc(metrics.MetricMFASuccess)
	res, err := issue(ctx, h, deps.Completion, acct, auditLogin, "mfa_"+methodOrTOTP(method))
	if err != nil {
		return nil, err
	}
	res.RecoveryCodes = codes
	res.UsedRecoveryCode = usedRecovery
	h.MetricInc(metrics.MetricLoginSuccess)
	return res, nil
}

func runTOTPSetup(ctx context.Context, h Hooks, deps MFADeps, acct Account) (*Result, error) {
	if acct.MFAEnabled {
		return nil, h.Errors.MFAAlreadyEnabled
	}
	if deps.NewSecret == nil || deps.SavePendingSecret == nil {
		return nil, h.Errors.EngineNotReady
	}
	setup, err := deps.NewSecret(acct, acct.MFASecret)
	if err != nil {
		return nil, err
	}
	if acct.MFASecret == "" {
		if err := deps.SavePendingSecret(ctx, acct.ID, setup.Secret); err != nil {
			return nil, err
		}
	}
	return &Result{Account: acct, Setup: &setup}, nil
}

func methodOrTOTP(method string) string {
	if method == "" {
		return "totp"
	}
	return method
}
