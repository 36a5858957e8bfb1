package authcore

import (
	"context"
	"errors"
	"io"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
)

// Audit event types.
const (
	AuditLogin                    = internalaudit.EventLogin
	AuditFailedLogin              = internalaudit.EventFailedLogin
	AuditLogout                   = internalaudit.EventLogout
	AuditRegister                 = internalaudit.EventRegister
	AuditEmailVerification        = internalaudit.EventEmailVerification
	AuditPasswordResetRequest     = internalaudit.EventPasswordResetRequest
	AuditPasswordReset            = internalaudit.EventPasswordReset
	AuditAccountLockout           = internalaudit.EventAccountLockout
	AuditTokenBlacklist           = internalaudit.EventTokenBlacklist
	AuditRecoveryCodeUsed         = internalaudit.EventRecoveryCodeUsed
	AuditRecoveryCodesRegenerated = internalaudit.EventRecoveryCodesRegenerated
	AuditMFAChallenge             = internalaudit.EventMFAChallenge
	AuditMFAEnabled               = internalaudit.EventMFAEnabled
	AuditMFADisabled              = internalaudit.EventMFADisabled
	AuditMFAFailed                = internalaudit.EventMFAFailed
	AuditRefreshReuseDetected     = internalaudit.EventRefreshReuseDetected
	AuditSessionRevoked           = internalaudit.EventSessionRevoked
	AuditWeb3Register             = internalaudit.EventWeb3Register
	AuditWeb3Login                = internalaudit.EventWeb3Login
	AuditRateLimited              = internalaudit.EventRateLimited
	AuditRoleChanged              = internalaudit.EventRoleChanged
)

// Audit statuses.
const (
	AuditStatusSuccess = internalaudit.StatusSuccess
	AuditStatusFailed  = internalaudit.StatusFailed
	AuditStatusBlocked = internalaudit.StatusBlocked
)

// AuditEvent is one security event.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink fans events out to every member.
type MultiSink = internalaudit.MultiSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes one JSON object per
// line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// AuditDropped reports how many events were discarded on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	status string,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventType: eventType,
		Action:    auditAction(eventType, status),
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Status:    status,
		Success:   status == AuditStatusSuccess,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = code
	}
	e.audit.Emit(ctx, event)
}

func auditAction(eventType, status string) string {
	switch status {
	case AuditStatusFailed:
		return eventType + "_failed"
	case AuditStatusBlocked:
		return eventType + "_blocked"
	}
	return eventType
}

// auditErrorCode keeps infrastructure detail out of audit rows.
func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrAccountBanned):
		return "account_banned"
	case errors.Is(err, ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrReuseDetected):
		return "refresh_reuse"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrTokenInvalid):
		return "invalid_token"
	case errors.Is(err, ErrInvalidMFACode):
		return "mfa_invalid"
	case errors.Is(err, ErrMFAChallengeExpired):
		return "mfa_expired"
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrInvalidChallenge):
		return "wallet_proof_invalid"
	case errors.Is(err, ErrAccountExists), errors.Is(err, ErrWalletRegistered):
		return "duplicate"
	case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrCodeExpired):
		return "code_invalid"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrUnavailable):
		return "backend_unavailable"
	}
	return "internal_error"
}
