package authcore

import (
	"context"
	"strconv"
	"strings"
)

// SetupTOTP starts enrolment of an authenticator app. A pending secret is
// handed out again rather than replaced, so a half-finished setup can be
// resumed.
func (e *Engine) SetupTOTP(ctx context.Context, accountID string) (*TOTPSetup, error) {
	acct, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}
	setup, err := e.provision(acct.Username, acct.MFASecret)
	if err != nil {
		return nil, err
	}
	if acct.MFASecret == "" {
		if err := e.accounts.SetMFA(ctx, acct.ID, false, setup.Secret, nil); err != nil {
			return nil, storeErr(err)
		}
	}
	return &TOTPSetup{Secret: setup.Secret, URI: setup.URI}, nil
}

// ConfirmTOTP enables MFA once code proves the pending secret was enrolled.
// It returns the recovery codes; they are not retrievable later.
func (e *Engine) ConfirmTOTP(ctx context.Context, accountID, code string) ([]string, error) {
	acct, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}
	if acct.MFASecret == "" {
		return nil, ErrMFANotConfigured
	}
	if err := e.checkTOTP(ctx, acct, code); err != nil {
		return nil, err
	}
	codes, err := e.enableMFA(ctx, acct.ID, acct.MFASecret)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricMFAEnabled)
	e.emitAudit(ctx, AuditMFAEnabled, AuditStatusSuccess, acct.ID, "", nil, nil)
	return codes, nil
}

// DisableTOTP turns MFA off. code may be a TOTP code or a recovery code.
func (e *Engine) DisableTOTP(ctx context.Context, accountID, code string) error {
	acct, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !acct.MFAEnabled {
		return ErrMFANotConfigured
	}
	if err := e.checkTOTP(ctx, acct, code); err != nil {
		used, consumeErr := e.consumeRecoveryCode(ctx, acct.ID, acct.RecoveryCodes, code)
		if consumeErr != nil {
			return consumeErr
		}
		if !used {
			return err
		}
		e.metricInc(MetricRecoveryCodeUsed)
		e.emitAudit(ctx, AuditRecoveryCodeUsed, AuditStatusSuccess, acct.ID, "", nil, func() map[string]string {
			return map[string]string{"purpose": "disable_mfa"}
		})
	}
	if err := e.accounts.SetMFA(ctx, acct.ID, false, "", nil); err != nil {
		return storeErr(err)
	}
	e.metricInc(MetricMFADisabled)
	e.emitAudit(ctx, AuditMFADisabled, AuditStatusSuccess, acct.ID, "", nil, nil)
	return nil
}

// RegenerateRecoveryCodes replaces every recovery code. It needs a current
// TOTP code; a recovery code is not accepted here.
func (e *Engine) RegenerateRecoveryCodes(ctx context.Context, accountID, code string) ([]string, error) {
	acct, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.MFAEnabled {
		return nil, ErrMFANotConfigured
	}
	if err := e.checkTOTP(ctx, acct, code); err != nil {
		return nil, err
	}
	codes, err := e.enableMFA(ctx, acct.ID, acct.MFASecret)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricRecoveryCodesRegenerated)
	e.emitAudit(ctx, AuditRecoveryCodesRegenerated, AuditStatusSuccess, acct.ID, "", nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(len(codes))}
	})
	return codes, nil
}

// checkTOTP verifies code against the account secret and burns its time step.
func (e *Engine) checkTOTP(ctx context.Context, acct *Account, code string) error {
	step, ok, err := e.totp.Verify(acct.MFASecret, strings.TrimSpace(code))
	if err != nil || !ok {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, AuditMFAFailed, AuditStatusFailed, acct.ID, "", ErrInvalidMFACode, nil)
		return ErrInvalidMFACode
	}
	fresh, err := e.markStepUsed(ctx, acct.ID, step)
	if err != nil {
		e.warn("authcore: totp replay guard unavailable: %v", err)
		return ErrUnavailable
	}
	if !fresh {
		e.metricInc(MetricTOTPReplay)
		e.emitAudit(ctx, AuditMFAFailed, AuditStatusFailed, acct.ID, "", ErrInvalidMFACode, func() map[string]string {
			return map[string]string{"reason": "replay"}
		})
		return ErrInvalidMFACode
	}
	return nil
}
