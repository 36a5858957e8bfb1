package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/password"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 50
	emailMaxLen    = 254
)

func newAccountID() string {
	return uuid.NewString()
}

// Register creates a password account and mails its verification code.
// Duplicate usernames or emails return ErrAccountExists.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	if err := e.limit(ctx, EndpointRegister); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(req.Username)
	email := normalizeEmail(req.Email)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	hash, err := e.hashNewPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := e.now()
	acct := &Account{
		ID:           newAccountID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         e.config.Accounts.DefaultRole,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, AuditRegister, AuditStatusFailed, "", "", ErrAccountExists, nil)
			return nil, ErrAccountExists
		}
		return nil, storeErr(err)
	}

	e.sendCode(ctx, e.verifyCodes, acct, MailVerification, e.config.Accounts.VerificationCodeTTL)
	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, AuditRegister, AuditStatusSuccess, acct.ID, "", nil, func() map[string]string {
		return map[string]string{"method": "password"}
	})
	return acct, nil
}

// sendCode issues a code keyed by the account email and mails it. Delivery is
// best effort; the caller's answer does not depend on it.
func (e *Engine) sendCode(ctx context.Context, codes *stores.CodeStore, acct *Account, kind string, ttl time.Duration) {
	code, err := codes.Issue(ctx, acct.Email, acct.ID, ttl)
	if err != nil {
		e.warn("authcore: issuing %s code: %v", kind, err)
		return
	}
	err = e.mailer.Send(ctx, Mail{
		To:        acct.Email,
		Username:  acct.Username,
		Kind:      kind,
		Code:      code,
		ExpiresIn: ttl,
	})
	if err != nil {
		e.warn("authcore: sending %s mail: %v", kind, err)
	}
}

// VerifyEmail marks the account of email verified when code matches.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) error {
	if err := e.limit(ctx, EndpointEmailVerify); err != nil {
		return err
	}
	email = normalizeEmail(email)
	acct, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidCode
		}
		return storeErr(err)
	}
	if acct.EmailVerified {
		return nil
	}
	subject, err := e.verifyCodes.Consume(ctx, email, strings.TrimSpace(code))
	if err != nil {
		return codeErr(err)
	}
	if subject != acct.ID {
		return ErrInvalidCode
	}
	if err := e.accounts.MarkEmailVerified(ctx, acct.ID); err != nil {
		return storeErr(err)
	}
	e.metricInc(MetricEmailVerified)
	e.emitAudit(ctx, AuditEmailVerification, AuditStatusSuccess, acct.ID, "", nil, nil)
	return nil
}

// ResendVerification mails a new verification code. It answers nil whether
// or not email belongs to an unverified account.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if err := e.limit(ctx, EndpointEmailCode); err != nil {
		return err
	}
	acct, err := e.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			e.warn("authcore: resend verification lookup failed: %v", err)
		}
		return nil
	}
	if acct.EmailVerified || password.IsSentinel(acct.PasswordHash) {
		return nil
	}
	e.sendCode(ctx, e.verifyCodes, acct, MailVerification, e.config.Accounts.VerificationCodeTTL)
	return nil
}

// RequestPasswordReset mails a reset code. The answer never reveals whether
// the address is registered.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.limit(ctx, EndpointPasswordReset); err != nil {
		return err
	}
	e.metricInc(MetricPasswordResetRequest)
	acct, err := e.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			e.warn("authcore: password reset lookup failed: %v", err)
		}
		return nil
	}
	if password.IsSentinel(acct.PasswordHash) {
		return nil
	}
	e.sendCode(ctx, e.resetCodes, acct, MailPasswordReset, e.config.Accounts.ResetCodeTTL)
	e.emitAudit(ctx, AuditPasswordResetRequest, AuditStatusSuccess, acct.ID, "", nil, nil)
	return nil
}

// ResetPassword sets a new password when code matches, then ends every
// session and refresh token of the account.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := e.limit(ctx, EndpointResetConfirm); err != nil {
		return err
	}
	email = normalizeEmail(email)
	hash, err := e.hashNewPassword(newPassword)
	if err != nil {
		return err
	}
	acct, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidCode
		}
		return storeErr(err)
	}
	subject, err := e.resetCodes.Consume(ctx, email, strings.TrimSpace(code))
	if err != nil {
		return codeErr(err)
	}
	if subject != acct.ID {
		return ErrInvalidCode
	}
	if err := e.accounts.UpdatePassword(ctx, acct.ID, hash); err != nil {
		return storeErr(err)
	}
	if err := e.endAll(ctx, acct.ID, "password_reset"); err != nil {
		e.warn("authcore: ending sessions after password reset: %v", err)
	}
	if err := e.lockout.Reset(ctx, acct.ID); err != nil {
		e.warn("authcore: lockout reset after password reset: %v", err)
	}
	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, AuditPasswordReset, AuditStatusSuccess, acct.ID, "", nil, nil)
	return nil
}

// SetRole changes the role of accountID. Only admins may do it.
func (e *Engine) SetRole(ctx context.Context, actor Claims, accountID, role string) error {
	if actor.Role != RoleAdmin {
		e.emitAudit(ctx, AuditRoleChanged, AuditStatusBlocked, actor.AccountID, "", ErrPermissionDenied, func() map[string]string {
			return map[string]string{"target": accountID}
		})
		return ErrPermissionDenied
	}
	if !e.config.roleKnown(role) {
		return ErrInvalidRole
	}
	if err := e.accounts.SetRole(ctx, accountID, role); err != nil {
		return storeErr(err)
	}
	e.emitAudit(ctx, AuditRoleChanged, AuditStatusSuccess, actor.AccountID, "", nil, func() map[string]string {
		return map[string]string{"target": accountID, "role": role}
	})
	return nil
}

func (e *Engine) hashNewPassword(plain string) (string, error) {
	if err := validatePasswordChars(plain); err != nil {
		return "", err
	}
	hash, err := e.verifier.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) || errors.Is(err, password.ErrTooLong) {
			return "", fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return "", err
	}
	return hash, nil
}

func codeErr(err error) error {
	switch {
	case errors.Is(err, stores.ErrCodeExpired):
		return ErrCodeExpired
	case errors.Is(err, stores.ErrCodeUnavailable):
		return ErrUnavailable
	}
	return ErrInvalidCode
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateUsername(username string) error {
	n := len([]rune(username))
	if n < usernameMinLen || n > usernameMaxLen {
		return fmt.Errorf("%w: username must be %d to %d characters", ErrInvalidAccount, usernameMinLen, usernameMaxLen)
	}
	for _, r := range username {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return fmt.Errorf("%w: username may only hold letters, digits and underscores", ErrInvalidAccount)
		}
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" || len(email) > emailMaxLen {
		return fmt.Errorf("%w: invalid email", ErrInvalidAccount)
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") || !strings.Contains(domain, ".") {
		return fmt.Errorf("%w: invalid email", ErrInvalidAccount)
	}
	return nil
}

// validatePasswordChars requires upper case, lower case and a digit.
func validatePasswordChars(plain string) error {
	var upper, lower, digit bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return fmt.Errorf("%w: password needs upper case, lower case and a digit", ErrPasswordPolicy)
	}
	return nil
}
