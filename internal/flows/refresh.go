package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
)

// RefreshDeps captures refresh rotation dependencies.
type RefreshDeps struct {
	Hooks

	Exchange    func(ctx context.Context, token string) (refresh.Issued, error)
	LoadAccount func(ctx context.Context, accountID string) (Account, error)
	IssueAccess func(acct Account, sessionID string) (string, time.Time, error)

	// RebindSession points the session at the new access token. It returns
	// session.ErrNotFound when the session is gone.
	RebindSession func(ctx context.Context, sessionID, accessToken string) error
	RevokeSession func(ctx context.Context, sessionID string) error

	// EndSessions expires the sessions of a reused family and blacklists their
	// access tokens.
	EndSessions func(ctx context.Context, accountID string, sessionIDs []string) error
}

// RunRefresh rotates a refresh token. Presenting an already-rotated token
// revokes its whole family and every session bound to it.
func RunRefresh(ctx context.Context, token string, deps RefreshDeps) (*Result, error) {
	deps.Hooks.fill()
	h := deps.Hooks
	if deps.Exchange == nil || deps.LoadAccount == nil || deps.IssueAccess == nil || deps.RebindSession == nil {
		return nil, h.Errors.EngineNotReady
	}

	if err := checkRate(ctx, h, endpointRefresh, h.ClientIP(ctx), ""); err != nil {
		return nil, err
	}

	issued, err := deps.Exchange(ctx, token)
	if err != nil {
		h.MetricInc(metrics.MetricRefreshFailure)
		var reuse *refresh.ReuseError
		if errors.As(err, &reuse) {
			h.MetricInc(metrics.MetricRefreshReuseDetected)
			if deps.EndSessions != nil {
				if endErr := deps.EndSessions(ctx, reuse.AccountID, reuse.SessionIDs); endErr != nil {
					h.Warn("authcore: ending sessions of reused family %s: %v", reuse.Family, endErr)
				}
			}
			h.EmitAudit(ctx, auditRefreshReuse, statusBlocked, reuse.AccountID, "", h.Errors.ReuseDetected, func() map[string]string {
				return map[string]string{"family": reuse.Family}
			})
			return nil, h.Errors.ReuseDetected
		}
		return nil, mapRefreshErr(h.Errors, err)
	}

	rec := issued.Record
	acct, err := deps.LoadAccount(ctx, rec.AccountID)
	if err != nil {
		h.MetricInc(metrics.MetricRefreshFailure)
		return nil, err
	}
	if acct.Banned {
		h.MetricInc(metrics.MetricRefreshFailure)
		h.MetricInc(metrics.MetricAccountBanned)
		return nil, h.Errors.AccountBanned
	}

	access, exp, err := deps.IssueAccess(acct, rec.SessionID)
	if err != nil {
		h.MetricInc(metrics.MetricRefreshFailure)
		return nil, err
	}

	if err := deps.RebindSession(ctx, rec.SessionID, access); err != nil {
		h.MetricInc(metrics.MetricRefreshFailure)
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
			if deps.RevokeSession != nil {
				if revErr := deps.RevokeSession(ctx, rec.SessionID); revErr != nil {
					h.Warn("authcore: revoking refresh tokens of ended session: %v", revErr)
				}
			}
			return nil, h.Errors.TokenRevoked
		}
		h.Warn("authcore: session rebind failed: %v", err)
		return nil, h.Errors.Unavailable
	}

	h.MetricInc(metrics.MetricRefreshSuccess)
	return &Result{
		Account: acct,
		Tokens: Tokens{
			AccessToken:      access,
			AccessExpiresAt:  exp,
			RefreshToken:     issued.Token,
			RefreshExpiresAt: rec.ExpiresAt,
			SessionID:        rec.SessionID,
		},
	}, nil
}

func mapRefreshErr(e Errors, err error) error {
	switch {
	case errors.Is(err, refresh.ErrExpired):
		return e.TokenExpired
	case errors.Is(err, refresh.ErrRevoked):
		return e.TokenRevoked
	case errors.Is(err, refresh.ErrInvalid), errors.Is(err, refresh.ErrNotFound):
		return e.TokenInvalid
	case errors.Is(err, refresh.ErrUnavailable):
		return e.Unavailable
	}
	return e.Unavailable
}
