package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/MrEthical07/authcore/session"
)

// Authenticate validates a bearer token and the session behind it. The
// blacklist is consulted before the signature, and any store failure on the
// way rejects the token with ErrTokenRevoked.
func (e *Engine) Authenticate(ctx context.Context, bearer string) (*AuthResult, error) {
	start := time.Now()
	res, err := e.authenticate(ctx, strings.TrimSpace(bearer))
	e.observeAuthenticate(start)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, err
	}
	e.metricInc(MetricAuthenticateSuccess)
	return res, nil
}

func (e *Engine) authenticate(ctx context.Context, token string) (*AuthResult, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}
	hash := revocation.TokenHash(token)

	revoked, err := e.revocation.IsHashBlacklisted(ctx, hash)
	if err != nil {
		e.warn("authcore: revocation check failed closed: %v", err)
		e.metricInc(MetricStoreFailClosed)
		return nil, ErrTokenRevoked
	}
	if revoked {
		e.metricInc(MetricTokenRevokedHit)
		return nil, ErrTokenRevoked
	}

	claims, err := e.jwt.ValidateAccess(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	s, err := e.sessions.Lookup(ctx, hash)
	if err != nil {
		if errors.Is(err, session.ErrUnavailable) {
			e.warn("authcore: session lookup failed closed: %v", err)
			e.metricInc(MetricStoreFailClosed)
		}
		return nil, ErrTokenRevoked
	}
	if s.AccountID != claims.Subject || (claims.SessionID != "" && claims.SessionID != s.ID) {
		return nil, ErrTokenRevoked
	}

	if err := e.sessions.Touch(ctx, s); err != nil {
		e.warn("authcore: session touch failed: %v", err)
	}

	out := &AuthResult{
		Claims: Claims{
			AccountID: claims.Subject,
			Username:  claims.Username,
			Role:      claims.Role,
			SessionID: s.ID,
		},
		Session: sessionInfo(s, s.ID),
	}
	if claims.IssuedAt != nil {
		out.Claims.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.Claims.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func sessionInfo(s session.Session, currentID string) SessionInfo {
	return SessionInfo{
		ID:           s.ID,
		DeviceName:   s.DeviceName,
		IP:           s.IP,
		UserAgent:    s.UserAgent,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
		Current:      currentID != "" && s.ID == currentID,
	}
}

// ListSessions returns the active sessions of accountID, most recent first.
// currentSessionID marks the caller's own entry.
func (e *Engine) ListSessions(ctx context.Context, accountID, currentSessionID string) ([]SessionInfo, error) {
	list, err := e.sessions.List(ctx, accountID)
	if err != nil {
		return nil, ErrUnavailable
	}
	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, sessionInfo(s, currentSessionID))
	}
	return out, nil
}

// ActiveRefreshTokens counts the refresh tokens of accountID that can still
// be exchanged.
func (e *Engine) ActiveRefreshTokens(ctx context.Context, accountID string) (int64, error) {
	n, err := e.refresh.ActiveCount(ctx, accountID)
	if err != nil {
		return 0, ErrUnavailable
	}
	return n, nil
}

// RevokeSession ends one session of accountID together with its refresh
// tokens and bearer token.
func (e *Engine) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	s, err := e.sessions.Invalidate(ctx, accountID, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return ErrUnavailable
	}
	e.endSessions(ctx, accountID, "session_revoked", []session.Session{s})
	if err := e.refresh.RevokeSession(ctx, sessionID); err != nil {
		e.warn("authcore: revoking refresh tokens of session %s: %v", sessionID, err)
		return ErrUnavailable
	}
	e.emitAudit(ctx, AuditSessionRevoked, AuditStatusSuccess, accountID, sessionID, nil, nil)
	return nil
}

// LogoutAll ends every session and refresh token of accountID.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) error {
	if err := e.endAll(ctx, accountID, "logout_all"); err != nil {
		return err
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, AuditLogout, AuditStatusSuccess, accountID, "", nil, func() map[string]string {
		return map[string]string{"scope": "all"}
	})
	return nil
}

func (e *Engine) endAll(ctx context.Context, accountID, reason string) error {
	ended, err := e.sessions.InvalidateAll(ctx, accountID)
	if err != nil {
		return ErrUnavailable
	}
	e.endSessions(ctx, accountID, reason, ended)
	if _, err := e.refresh.RevokeAll(ctx, accountID); err != nil {
		e.warn("authcore: revoking refresh tokens of %s: %v", accountID, err)
		return ErrUnavailable
	}
	return nil
}

// LogoutOthers ends every session of accountID except keepSessionID.
func (e *Engine) LogoutOthers(ctx context.Context, accountID, keepSessionID string) error {
	ended, err := e.sessions.InvalidateOthers(ctx, accountID, keepSessionID)
	if err != nil {
		return ErrUnavailable
	}
	e.endSessions(ctx, accountID, "logout_others", ended)
	var revokeErr error
	for _, s := range ended {
		if err := e.refresh.RevokeSession(ctx, s.ID); err != nil {
			e.warn("authcore: revoking refresh tokens of session %s: %v", s.ID, err)
			revokeErr = ErrUnavailable
		}
	}
	if revokeErr != nil {
		return revokeErr
	}
	e.emitAudit(ctx, AuditLogout, AuditStatusSuccess, accountID, keepSessionID, nil, func() map[string]string {
		return map[string]string{"scope": "others"}
	})
	return nil
}
