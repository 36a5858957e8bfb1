package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/reaper"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/web3"
)

// Engine runs every authentication and account-security operation. Build one
// with [New] and share it; all methods are safe for concurrent use.
type Engine struct {
	config   Config
	accounts AccountStore
	mailer   Mailer
	now      func() time.Time

	verifier    *password.Verifier
	jwt         *jwt.Manager
	limiter     *rate.Limiter
	lockout     *lockout.Engine
	totp        *mfa.TOTP
	replay      *stores.TOTPReplay
	mfaCodes    *stores.CodeStore
	verifyCodes *stores.CodeStore
	resetCodes  *stores.CodeStore
	refresh     *refresh.Service
	revocation  *revocation.Store
	sessions    *session.Registry
	web3        *web3.Service
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	reaper      *reaper.Reaper
	fastTier    string

	stopMu     sync.Mutex
	stopReaper context.CancelFunc
}

// Close stops the reaper and drains the audit buffer.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.stopMu.Lock()
	stop := e.stopReaper
	e.stopReaper = nil
	e.stopMu.Unlock()
	if stop != nil {
		stop()
		e.reaper.Wait()
	}
	e.audit.Close()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) warn(format string, args ...any) {
	log.Printf(format, args...)
}

func (e *Engine) flowErrors() flows.Errors {
	return flows.Errors{
		EngineNotReady:       ErrEngineNotReady,
		InvalidCredentials:   ErrInvalidCredentials,
		AccountBanned:        ErrAccountBanned,
		EmailNotVerified:     ErrEmailNotVerified,
		InvalidMFACode:       ErrInvalidMFACode,
		MFAChallengeExpired:  ErrMFAChallengeExpired,
		MFAAlreadyEnabled:    ErrMFAAlreadyEnabled,
		MFANotConfigured:     ErrMFANotConfigured,
		MFAMethodUnavailable: ErrMFAMethodUnavailable,
		TokenInvalid:         ErrTokenInvalid,
		TokenExpired:         ErrTokenExpired,
		TokenRevoked:         ErrTokenRevoked,
		ReuseDetected:        ErrReuseDetected,
		WalletRegistered:     ErrWalletRegistered,
		WalletNotRegistered:  ErrWalletNotRegistered,
		Unavailable:          ErrUnavailable,
	}
}

func (e *Engine) hooks() flows.Hooks {
	return flows.Hooks{
		ClientIP:  clientIPFromContext,
		CheckRate: e.checkRate,
		MetricInc: e.metricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.warn,
		Now:       e.now,
		Errors:    e.flowErrors(),
	}
}

// checkRate counts one call against the endpoint budget of client. A store
// failure lets the call through.
func (e *Engine) checkRate(ctx context.Context, endpoint, client string) error {
	dec, err := e.limiter.Check(ctx, endpoint, client, e.config.RateLimits.policy(endpoint))
	if err != nil {
		e.warn("authcore: rate limiter failing open on %s: %v", endpoint, err)
		e.metricInc(MetricStoreFailOpen)
		return nil
	}
	if !dec.Allowed {
		return &RateLimitError{Endpoint: endpoint, RetryAfter: dec.RetryAfter()}
	}
	return nil
}

// limit is checkRate plus the bookkeeping flows do for themselves.
func (e *Engine) limit(ctx context.Context, endpoint string) error {
	err := e.checkRate(ctx, endpoint, clientIPFromContext(ctx))
	if err == nil {
		return nil
	}
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, AuditRateLimited, AuditStatusBlocked, "", "", err, func() map[string]string {
		return map[string]string{"endpoint": endpoint}
	})
	return err
}

func (e *Engine) resetRate(ctx context.Context, endpoint, client string) error {
	return e.limiter.Reset(ctx, endpoint, client)
}

func (e *Engine) lockedError(retry time.Duration) error {
	if retry <= 0 {
		retry = lockout.FailClosedRetry
	}
	return &LockedError{RetryAfter: retry}
}

func (e *Engine) checkLockout(ctx context.Context, accountID string) (flows.LockState, error) {
	st, err := e.lockout.Check(ctx, accountID)
	return lockState(st), err
}

func (e *Engine) recordFailure(ctx context.Context, accountID string) (flows.LockState, error) {
	st, err := e.lockout.RecordFailure(ctx, accountID)
	return lockState(st), err
}

func lockState(st lockout.Status) flows.LockState {
	return flows.LockState{
		Locked:         st.Locked,
		RetryAfter:     st.RetryAfter,
		FailedAttempts: st.FailedAttempts,
		JustLocked:     st.JustLocked,
	}
}

func (e *Engine) flowAccount(a *Account) flows.Account {
	return flows.Account{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		Role:          a.Role,
		PasswordHash:  a.PasswordHash,
		WalletAddress: a.WalletAddress,
		EmailVerified: a.EmailVerified,
		MFAEnabled:    a.MFAEnabled,
		MFASecret:     a.MFASecret,
		RecoveryCodes: a.RecoveryCodes,
		Banned:        a.BannedAt(e.now()),
	}
}

// loadAccount fetches by id. Store failures are reported as ErrUnavailable.
func (e *Engine) loadAccount(ctx context.Context, id string) (*Account, error) {
	a, err := e.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return a, nil
}

func (e *Engine) loadFlowAccount(ctx context.Context, id string) (flows.Account, error) {
	a, err := e.loadAccount(ctx, id)
	if err != nil {
		return flows.Account{}, err
	}
	return e.flowAccount(a), nil
}

// findFlowAccount turns ErrAccountNotFound into found=false.
func (e *Engine) findFlowAccount(get func(context.Context, string) (*Account, error)) func(context.Context, string) (flows.Account, bool, error) {
	return func(ctx context.Context, key string) (flows.Account, bool, error) {
		a, err := get(ctx, key)
		if errors.Is(err, ErrAccountNotFound) {
			return flows.Account{}, false, nil
		}
		if err != nil {
			return flows.Account{}, false, err
		}
		return e.flowAccount(a), true, nil
	}
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrUnavailable):
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func subjectOf(acct flows.Account) jwt.Subject {
	return jwt.Subject{ID: acct.ID, Username: acct.Username, Role: acct.Role, Email: acct.Email}
}

func deviceOf(ctx context.Context) session.Device {
	ua := userAgentFromContext(ctx)
	return session.Device{IP: clientIPFromContext(ctx), UserAgent: ua, Name: session.DeviceName(ua)}
}

// issueSession opens a session for acct and hands out its access and refresh
// tokens. The access token names the session it belongs to.
func (e *Engine) issueSession(ctx context.Context, acct flows.Account) (flows.Tokens, error) {
	id := session.NewID()
	access, accessExp, err := e.jwt.IssueAccess(subjectOf(acct), id)
	if err != nil {
		return flows.Tokens{}, fmt.Errorf("authcore: issue access token: %w", err)
	}
	if _, err := e.sessions.Open(ctx, id, acct.ID, revocation.TokenHash(access), deviceOf(ctx)); err != nil {
		e.warn("authcore: session create failed: %v", err)
		return flows.Tokens{}, ErrUnavailable
	}
	issued, err := e.refresh.Issue(ctx, acct.ID, id)
	if err != nil {
		e.warn("authcore: refresh issue failed: %v", err)
		if _, expErr := e.sessions.Invalidate(ctx, acct.ID, id); expErr != nil {
			e.warn("authcore: rolling back session %s: %v", id, expErr)
		}
		return flows.Tokens{}, ErrUnavailable
	}
	return flows.Tokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     issued.Token,
		RefreshExpiresAt: issued.Record.ExpiresAt,
		SessionID:        id,
	}, nil
}

func (e *Engine) issueChallenge(_ context.Context, acct flows.Account) (string, time.Time, error) {
	return e.jwt.IssueChallenge(subjectOf(acct))
}

func (e *Engine) touchLastLogin(ctx context.Context, accountID string) error {
	return e.accounts.TouchLastLogin(ctx, accountID, e.now())
}

// sendMFAEmail issues an email code for acct and mails it.
func (e *Engine) sendMFAEmail(ctx context.Context, acct flows.Account) error {
	ttl := e.config.MFA.EmailCodeTTL
	code, err := e.mfaCodes.Issue(ctx, acct.ID, acct.ID, ttl)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return e.mailer.Send(ctx, Mail{
		To:        acct.Email,
		Username:  acct.Username,
		Kind:      MailMFACode,
		Code:      code,
		ExpiresIn: ttl,
	})
}

func (e *Engine) completion() flows.Completion {
	c := flows.Completion{
		IssueChallenge: e.issueChallenge,
		IssueSession:   e.issueSession,
		TouchLastLogin: e.touchLastLogin,
	}
	if e.config.MFA.ProactiveEmail {
		c.SendMFAEmail = e.sendMFAEmail
	}
	return c
}

// endSessions blacklists the access tokens of ended sessions until they would
// have expired anyway.
func (e *Engine) endSessions(ctx context.Context, accountID, reason string, ended []session.Session) {
	until := e.now().Add(e.jwt.AccessTTL())
	for _, s := range ended {
		if s.TokenHash == "" {
			continue
		}
		if err := e.revocation.BlacklistHash(ctx, s.TokenHash, accountID, reason, until); err != nil {
			e.warn("authcore: blacklisting token of session %s: %v", s.ID, err)
			continue
		}
		e.metricInc(MetricTokenBlacklisted)
	}
	e.metrics.Add(MetricSessionInvalidated, uint64(len(ended)))
}

func (e *Engine) loginResult(res *flows.Result) *LoginResult {
	if res == nil {
		return nil
	}
	acct := res.Account
	out := &LoginResult{
		User: &UserView{
			ID:            acct.ID,
			Username:      acct.Username,
			Email:         acct.Email,
			Role:          acct.Role,
			WalletAddress: acct.WalletAddress,
			EmailVerified: acct.EmailVerified,
			MFAEnabled:    acct.MFAEnabled,
		},
		RequiresMFA:     res.RequiresMFA,
		MFAMethods:      res.Methods,
		TempToken:       res.TempToken,
		TempExpiresAt:   res.TempExpiresAt,
		RecoveryCodes:   res.RecoveryCodes,
		UsedRecoveryKey: res.UsedRecoveryCode,
	}
	if res.Setup != nil {
		out.PendingTOTP = &TOTPSetup{Secret: res.Setup.Secret, URI: res.Setup.URI}
	}
	if !res.RequiresMFA && res.Setup == nil {
		out.AccessToken = res.Tokens.AccessToken
		out.AccessExpiresAt = res.Tokens.AccessExpiresAt
		out.RefreshToken = res.Tokens.RefreshToken
		out.RefreshExpiresAt = res.Tokens.RefreshExpiresAt
		out.SessionID = res.Tokens.SessionID
	}
	return out
}
