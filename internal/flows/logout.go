package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// LogoutDeps captures single-session logout dependencies.
type LogoutDeps struct {
	Hooks

	// ParseAccess validates the signature but accepts expired tokens.
	ParseAccess func(token string) (*jwt.AccessClaims, error)

	Blacklist         func(ctx context.Context, token, accountID string, until time.Time) error
	InvalidateByToken func(ctx context.Context, token string) (session.Session, error)
	RevokeRefresh     func(ctx context.Context, sessionID string) error
}

// RunLogout ends the session behind token. The token is blacklisted until its
// own expiry and the refresh tokens of its session are revoked. The logout is
// reported as failed when both the blacklist write and the session update
// fail, or when the session update and the refresh revocation both fail and
// the refresh token could still reopen the session.
func RunLogout(ctx context.Context, token string, deps LogoutDeps) error {
	deps.Hooks.fill()
	h := deps.Hooks
	if deps.ParseAccess == nil || deps.Blacklist == nil || deps.InvalidateByToken == nil {
		return h.Errors.EngineNotReady
	}

	claims, err := deps.ParseAccess(token)
	if err != nil {
		return h.Errors.TokenInvalid
	}
	accountID := claims.Subject

	until := h.Now()
	if claims.ExpiresAt != nil && claims.ExpiresAt.After(until) {
		until = claims.ExpiresAt.Time
	}

	blErr := deps.Blacklist(ctx, token, accountID, until)
	if blErr == nil {
		h.MetricInc(metrics.MetricTokenBlacklisted)
	}

	sess, invErr := deps.InvalidateByToken(ctx, token)
	sessionID := claims.SessionID
	if invErr == nil {
		sessionID = sess.ID
		h.MetricInc(metrics.MetricSessionInvalidated)
	} else if errors.Is(invErr, session.ErrNotFound) {
		invErr = nil
	}

	if blErr != nil && invErr != nil {
		h.Warn("authcore: logout failed: blacklist: %v; session: %v", blErr, invErr)
		h.EmitAudit(ctx, auditLogout, statusFailed, accountID, sessionID, h.Errors.Unavailable, nil)
		return h.Errors.Unavailable
	}
	if blErr != nil {
		h.Warn("authcore: logout blacklist write failed: %v", blErr)
	}
	if invErr != nil {
		h.Warn("authcore: logout session update failed: %v", invErr)
	}

	if sessionID != "" && deps.RevokeRefresh != nil {
		if err := deps.RevokeRefresh(ctx, sessionID); err != nil {
			h.Warn("authcore: logout refresh revoke failed: %v", err)
			if invErr != nil {
				h.EmitAudit(ctx, auditLogout, statusFailed, accountID, sessionID, h.Errors.Unavailable, nil)
				return h.Errors.Unavailable
			}
		}
	}

	h.MetricInc(metrics.MetricLogout)
	h.EmitAudit(ctx, auditLogout, statusSuccess, accountID, sessionID, nil, nil)
	if blErr == nil {
		h.EmitAudit(ctx, auditTokenBlacklist, statusSuccess, accountID, sessionID, nil, func() map[string]string {
			return map[string]string{"reason": "logout"}
		})
	}
	return nil
}
