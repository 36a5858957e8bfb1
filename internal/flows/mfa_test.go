package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/internal/metrics"
)

type fakeMFA struct {
	acct      Account
	usedSteps map[int64]bool
	recovery  map[string]bool
	emailCode string
	pending   string
	enabled   bool
}

func (f *fakeMFA) deps(rec *recorder, issuer *sessionIssuer) MFADeps {
	return MFADeps{
		Hooks:      rec.hooks(),
		Completion: issuer.completion(),
		ValidateChallenge: func(token string) (string, error) {
			switch token {
			case "temp":
				return f.acct.ID, nil
			case "stale":
				return "", testErrors.MFAChallengeExpired
			}
			return "", testErrors.TokenInvalid
		},
		LoadAccount: func(context.Context, string) (Account, error) { return f.acct, nil },
		NewSecret: func(_ Account, secret string) (Setup, error) {
			if secret == "" {
				secret = "NEWSECRET"
			}
			return Setup{Secret: secret, URI: "otpauth://totp/x?secret=" + secret}, nil
		},
		SavePendingSecret: func(_ context.Context, _ string, secret string) error {
			f.pending = secret
			return nil
		},
		VerifyTOTP: func(secret, code string) (int64, bool, error) {
			if code == "123456" {
				return 42, true, nil
			}
			return 0, false, nil
		},
		MarkStepUsed: func(_ context.Context, _ string, step int64) (bool, error) {
			if f.usedSteps[step] {
				return false, nil
			}
			f.usedSteps[step] = true
			return true, nil
		},
		ConsumeRecoveryCode: func(_ context.Context, _ Account, code string) (bool, error) {
			if f.recovery[code] {
				delete(f.recovery, code)
				return true, nil
			}
			return false, nil
		},
		EnableMFA: func(context.Context, Account) ([]string, error) {
			f.enabled = true
			return []string{"r1", "r2"}, nil
		},
		ConsumeEmailCode: func(_ context.Context, _ string, code string) error {
			if code != f.emailCode {
				return testErrors.InvalidMFACode
			}
			f.emailCode = ""
			return nil
		},
	}
}

func newFakeMFA() *fakeMFA {
	return &fakeMFA{
		acct: Account{
			ID: "a1", Email: "a@example.com", MFAEnabled: true, MFASecret: "SECRET",
			RecoveryCodes: []string{"h1", "h2"},
		},
		usedSteps: map[int64]bool{},
		recovery:  map[string]bool{"ABCD-EFGH": true},
		emailCode: "654321",
	}
}

func TestRunVerifyMFATOTPAndReplay(t *testing.T) {
	f, rec, issuer := newFakeMFA(), newRecorder(), &sessionIssuer{}
	deps := f.deps(rec, issuer)

	res, err := RunVerifyMFA(context.Background(), "temp", "totp", "123456", deps)
	if err != nil {
		t.Fatalf("RunVerifyMFA failed: %v", err)
	}
	if res.Tokens.AccessToken == "" || rec.count(metrics.MetricMFASuccess) != 1 {
		t.Fatalf("expected session, got %+v", res)
	}
	if _, err := RunVerifyMFA(context.Background(), "temp", "totp", "123456", deps); err != testErrors.InvalidMFACode {
		t.Fatalf("expected replay rejection, got %v", err)
	}
	if rec.count(metrics.MetricTOTPReplay) != 1 {
		t.Fatal("expected replay metric")
	}
}

func TestRunVerifyMFARecoveryCode(t *testing.T) {
	f, rec, issuer := newFakeMFA(), newRecorder(), &sessionIssuer{}
	deps := f.deps(rec, issuer)

	res, err := RunVerifyMFA(context.Background(), "temp", "", "ABCD-EFGH", deps)
	if err != nil {
		t.Fatalf("recovery code rejected: %v", err)
	}
	if !res.UsedRecoveryCode || !rec.has(auditRecoveryCodeUsed, statusSuccess) {
		t.Fatal("expected recovery code bookkeeping")
	}
	if _, err := RunVerifyMFA(context.Background(), "temp", "", "ABCD-EFGH", deps); err != testErrors.InvalidMFACode {
		t.Fatalf("recovery code is single use, got %v", err)
	}
}

func TestRunVerifyMFAEmailCode(t *testing.T) {
	f, rec, issuer := newFakeMFA(), newRecorder(), &sessionIssuer{}
	deps := f.deps(rec, issuer)

	if _, err := RunVerifyMFA(context.Background(), "temp", "email", "000000", deps); err != testErrors.InvalidMFACode {
		t.Fatalf("expected invalid code, got %v", err)
	}
	if _, err := RunVerifyMFA(context.Background(), "temp", "email", "654321", deps); err != nil {
		t.Fatalf("email code rejected: %v", err)
	}

	f.acct.Email = ""
	if _, err := RunVerifyMFA(context.Background(), "temp", "email", "654321", deps); err != testErrors.MFAMethodUnavailable {
		t.Fatalf("expected method unavailable, got %v", err)
	}
}

func TestRunVerifyMFAChallengeErrors(t *testing.T) {
	f, rec, issuer := newFakeMFA(), newRecorder(), &sessionIssuer{}
	deps := f.deps(rec, issuer)

	if _, err := RunVerifyMFA(context.Background(), "stale", "totp", "123456", deps); err != testErrors.MFAChallengeExpired {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := RunVerifyMFA(context.Background(), "forged", "totp", "123456", deps); err != testErrors.TokenInvalid {
		t.Fatalf("expected invalid, got %v", err)
	}
	if _, err := RunVerifyMFA(context.Background(), "temp", "sms", "123456", deps); err != testErrors.MFAMethodUnavailable {
		t.Fatalf("expected unknown method rejection, got %v", err)
	}
	if len(issuer.sessions) != 0 {
		t.Fatal("no session expected")
	}
}

func TestRunVerifyMFASetupThenEnable(t *testing.T) {
	f, rec, issuer := newFakeMFA(), newRecorder(), &sessionIssuer{}
	f.acct = Account{ID: "a1"}
	deps := f.deps(rec, issuer)

	res, err := RunVerifyMFA(context.Background(), "temp", "totp", "", deps)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if res.Setup == nil || res.Setup.Secret != "NEWSECRET" || f.pending != "NEWSECRET" {
		t.Fatalf("unexpected setup %+v", res.Setup)
	}
	if len(issuer.sessions) != 0 {
		t.Fatal("setup must not open a session")
	}

	f.acct.MFASecret = f.pending
	res, err = RunVerifyMFA(context.Background(), "temp", "totp", "123456", deps)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if !f.enabled || len(res.RecoveryCodes) != 2 || rec.count(metrics.MetricMFAEnabled) != 1 {
		t.Fatalf("expected MFA enabled with recovery codes, got %+v", res)
	}

	f.acct.MFAEnabled = true
	if _, err := RunVerifyMFA(context.Background(), "temp", "totp", "", deps); err != testErrors.MFAAlreadyEnabled {
		t.Fatalf("expected already enabled, got %v", err)
	}
}

func TestRunVerifyMFALockedAccount(t *testing.T) {
	f, rec, issuer := newFakeMFA(), newRecorder(), &sessionIssuer{}
	deps := f.deps(rec, issuer)
	locked := errors.New("locked")
	deps.CheckLockout = func(context.Context, string) (LockState, error) {
		return LockState{Locked: true, RetryAfter: time.Minute}, nil
	}
	deps.Locked = func(time.Duration) error { return locked }

	if _, err := RunVerifyMFA(context.Background(), "temp", "totp", "123456", deps); err != locked {
		t.Fatalf("expected locked, got %v", err)
	}
}
