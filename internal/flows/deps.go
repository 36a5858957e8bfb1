package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/metrics"
)

// Account is the flow-local view of a stored account. Banned is resolved by
// the host against its clock.
type Account struct {
	ID            string
	Username      string
	Email         string
	Role          string
	PasswordHash  string
	WalletAddress string
	EmailVerified bool
	MFAEnabled    bool
	MFASecret     string
	RecoveryCodes []string
	Banned        bool
}

// Tokens is the credential set of a new or refreshed session.
type Tokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
}

// Setup is a TOTP secret handed out during a verify-MFA setup request.
type Setup struct {
	Secret string
	URI    string
}

// Result is returned by every flow that can end in a session.
type Result struct {
	Account          Account
	Tokens           Tokens
	RequiresMFA      bool
	Methods          []string
	TempToken        string
	TempExpiresAt    time.Time
	Setup            *Setup
	RecoveryCodes    []string
	UsedRecoveryCode bool
}

// Errors carries host-level sentinel errors.
type Errors struct {
	EngineNotReady       error
	InvalidCredentials   error
	AccountBanned        error
	EmailNotVerified     error
	InvalidMFACode       error
	MFAChallengeExpired  error
	MFAAlreadyEnabled    error
	MFANotConfigured     error
	MFAMethodUnavailable error
	TokenInvalid         error
	TokenExpired         error
	TokenRevoked         error
	ReuseDetected        error
	WalletRegistered     error
	WalletNotRegistered  error
	Unavailable          error
}

// Hooks are the observability and request-context callbacks every flow uses.
type Hooks struct {
	ClientIP  func(context.Context) string
	CheckRate func(ctx context.Context, endpoint, client string) error
	MetricInc func(metrics.MetricID)
	EmitAudit func(ctx context.Context, eventType, status, userID, sessionID string, err error, meta func() map[string]string)
	Warn      func(string, ...any)
	Now       func() time.Time
	Errors    Errors
}

func (h *Hooks) fill() {
	if h.ClientIP == nil {
		h.ClientIP = func(context.Context) string { return "" }
	}
	if h.MetricInc == nil {
		h.MetricInc = func(metrics.MetricID) {}
	}
	if h.EmitAudit == nil {
		h.EmitAudit = func(context.Context, string, string, string, string, error, func() map[string]string) {}
	}
	if h.Warn == nil {
		h.Warn = func(string, ...any) {}
	}
	if h.Now == nil {
		h.Now = time.Now
	}
}

// Completion turns a proven identity into either an MFA challenge or a
// session. Login and wallet sign-in share it.
type Completion struct {
	IssueChallenge func(ctx context.Context, acct Account) (string, time.Time, error)

	// SendMFAEmail, when set, mails a code as soon as a challenge is issued.
	SendMFAEmail   func(ctx context.Context, acct Account) error
	IssueSession   func(ctx context.Context, acct Account) (Tokens, error)
	TouchLastLogin func(ctx context.Context, accountID string) error
}

// Deps groups the dependency sets. The root engine builds this once and
// delegates request methods to the matching flow.
type Deps struct {
	Login   LoginDeps
	MFA     MFADeps
	Web3    Web3Deps
	Refresh RefreshDeps
	Logout  LogoutDeps
}

func checkRate(ctx context.Context, h Hooks, endpoint, client, userID string) error {
	if h.CheckRate == nil {
		return nil
	}
	err := h.CheckRate(ctx, endpoint, client)
	if err == nil {
		return nil
	}
	h.MetricInc(metrics.MetricRateLimitHit)
	h.EmitAudit(ctx, auditRateLimited, statusBlocked, userID, "", err, func() map[string]string {
		return map[string]string{"endpoint": endpoint}
	})
	return err
}

// complete finishes a proven sign-in. method names the proof for the audit
// trail.
func complete(ctx context.Context, h Hooks, c Completion, acct Account, eventType, method string) (*Result, error) {
	if c.IssueSession == nil {
		return nil, h.Errors.EngineNotReady
	}

	if acct.MFAEnabled {
		if c.IssueChallenge == nil {
			return nil, h.Errors.EngineNotReady
		}
		temp, exp, err := c.IssueChallenge(ctx, acct)
		if err != nil {
			return nil, err
		}
		methods := []string{"totp"}
		if acct.Email != "" {
			methods = append(methods, "email")
			if c.SendMFAEmail != nil {
				if err := c.SendMFAEmail(ctx, acct); err != nil {
					h.Warn("authcore: proactive mfa email failed: %v", err)
				}
			}
		}
		h.MetricInc(metrics.MetricMFAChallengeIssued)
		h.EmitAudit(ctx, auditMFAChallenge, statusSuccess, acct.ID, "", nil, func() map[string]string {
			return map[string]string{"method": method}
		})
		return &Result{
			Account:       acct,
			RequiresMFA:   true,
			Methods:       methods,
			TempToken:     temp,
			TempExpiresAt: exp,
		}, nil
	}

	return issue(ctx, h, c, acct, eventType, method)
}

func issue(ctx context.Context, h Hooks, c Completion, acct Account, eventType, method string) (*Result, error) {
	tokens, err := c.IssueSession(ctx, acct)
	if err != nil {
		return nil, err
	}
	if c.TouchLastLogin != nil {
		if err := c.TouchLastLogin(ctx, acct.ID); err != nil {
			h.Warn("authcore: last login update failed: %v", err)
		}
	}
	h.MetricInc(metrics.MetricSessionCreated)
	h.EmitAudit(ctx, eventType, statusSuccess, acct.ID, tokens.SessionID, nil, func() map[string]string {
		return map[string]string{"method": method}
	})
	return &Result{Account: acct, Tokens: tokens}, nil
}
