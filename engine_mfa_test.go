package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
)

// seedMFAAccount stores alice with TOTP enabled and returns her secret and
// plain recovery codes.
func seedMFAAccount(t *testing.T, env *testEnv) (*Account, string, []string) {
	t.Helper()
	setup, err := env.engine.totp.Generate("alice")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	codes, hashes, err := mfa.GenerateRecoveryCodes("id-alice", 10, 10)
	if err != nil {
		t.Fatalf("GenerateRecoveryCodes failed: %v", err)
	}
	acct := env.seedAccount(t, "alice", testPassword, func(a *Account) {
		a.MFAEnabled = true
		a.MFASecret = setup.Secret
		a.RecoveryCodes = hashes
	})
	return acct, setup.Secret, codes
}

func challenge(t *testing.T, env *testEnv) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), "alice", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !res.RequiresMFA || res.TempToken == "" {
		t.Fatalf("expected MFA challenge, got %+v", res)
	}
	return res
}

func TestLoginWithMFAIssuesChallengeOnly(t *testing.T) {
	env := newTestEngine(t, nil)
	seedMFAAccount(t, env)

	res := challenge(t, env)
	if res.AccessToken != "" || res.RefreshToken != "" || res.SessionID != "" {
		t.Fatalf("challenge must not carry tokens: %+v", res)
	}
	if strings.Join(res.MFAMethods, ",") != "totp,email" {
		t.Fatalf("unexpected methods: %v", res.MFAMethods)
	}
	if !res.TempExpiresAt.Equal(env.clock.Now().Add(5 * time.Minute)) {
		t.Fatalf("unexpected temp token expiry: %v", res.TempExpiresAt)
	}
	mail := env.mail.last(t, "alice@example.com", MailMFACode)
	if len(mail.Code) != 6 {
		t.Fatalf("expected 6-digit email code, got %q", mail.Code)
	}
	if _, err := env.engine.Authenticate(context.Background(), res.TempToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("temp token must not authenticate, got %v", err)
	}
}

func TestVerifyMFAWithTOTP(t *testing.T) {
	env := newTestEngine(t, nil)
	acct, secret, _ := seedMFAAccount(t, env)

	res := challenge(t, env)
	out, err := env.engine.VerifyMFA(context.Background(), res.TempToken, "totp", env.totpCode(t, secret))
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		t.Fatalf("expected tokens, got %+v", out)
	}
	auth, err := env.engine.Authenticate(context.Background(), out.AccessToken)
	if err != nil || auth.Claims.AccountID != acct.ID {
		t.Fatalf("Authenticate after MFA failed: %v", err)
	}
}

func TestVerifyMFARejectsReplayedTOTP(t *testing.T) {
	env := newTestEngine(t, nil)
	_, secret, _ := seedMFAAccount(t, env)
	code := env.totpCode(t, secret)

	first := challenge(t, env)
	if _, err := env.engine.VerifyMFA(context.Background(), first.TempToken, "totp", code); err != nil {
		t.Fatalf("first VerifyMFA failed: %v", err)
	}

	second := challenge(t, env)
	if _, err := env.engine.VerifyMFA(context.Background(), second.TempToken, "totp", code); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricTOTPReplay]; got != 1 {
		t.Fatalf("expected one replay, got %d", got)
	}

	env.clock.Advance(30 * time.Second)
	if _, err := env.engine.VerifyMFA(context.Background(), second.TempToken, "totp", env.totpCode(t, secret)); err != nil {
		t.Fatalf("next step should verify: %v", err)
	}
}

func TestVerifyMFAWrongCode(t *testing.T) {
	env := newTestEngine(t, nil)
	seedMFAAccount(t, env)

	res := challenge(t, env)
	if _, err := env.engine.VerifyMFA(context.Background(), res.TempToken, "totp", "000000"); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected invalid code, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricMFAFailure]; got == 0 {
		t.Fatal("expected MFA failure metric")
	}
}

func TestVerifyMFAWithRecoveryCodeSpendsIt(t *testing.T) {
	env := newTestEngine(t, nil)
	acct, _, codes := seedMFAAccount(t, env)

	res := challenge(t, env)
	out, err := env.engine.VerifyMFA(context.Background(), res.TempToken, "totp", codes[0])
	if err != nil {
		t.Fatalf("VerifyMFA with recovery code failed: %v", err)
	}
	if !out.UsedRecoveryKey || out.AccessToken == "" {
		t.Fatalf("expected recovery sign-in, got %+v", out)
	}
	if got := len(env.account(t, acct.ID).RecoveryCodes); got != 9 {
		t.Fatalf("expected 9 remaining codes, got %d", got)
	}

	again := challenge(t, env)
	if _, err := env.engine.VerifyMFA(context.Background(), again.TempToken, "totp", codes[0]); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("spent recovery code must fail, got %v", err)
	}
}

func TestVerifyMFAWithEmailCode(t *testing.T) {
	env := newTestEngine(t, nil)
	seedMFAAccount(t, env)

	res := challenge(t, env)
	mail := env.mail.last(t, "alice@example.com", MailMFACode)
	out, err := env.engine.VerifyMFA(context.Background(), res.TempToken, "email", mail.Code)
	if err != nil {
		t.Fatalf("VerifyMFA by email failed: %v", err)
	}
	if out.AccessToken == "" {
		t.Fatal("expected tokens")
	}
	if _, err := env.engine.VerifyMFA(context.Background(), res.TempToken, "email", mail.Code); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("email code is single use, got %v", err)
	}
}

func TestSendMFAEmailCodeOnDemand(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.MFA.ProactiveEmail = false
		cfg.JWT.ChallengeTTL = 15 * time.Minute
	})
	seedMFAAccount(t, env)

	res := challenge(t, env)
	if env.mail.count() != 0 {
		t.Fatal("proactive email is disabled")
	}
	if err := env.engine.SendMFAEmailCode(context.Background(), res.TempToken); err != nil {
		t.Fatalf("SendMFAEmailCode failed: %v", err)
	}
	mail := env.mail.last(t, "alice@example.com", MailMFACode)

	env.clock.Advance(10*time.Minute + time.Second)
	if _, err := env.engine.VerifyMFA(context.Background(), res.TempToken, "email", mail.Code); !errors.Is(err, ErrMFAChallengeExpired) {
		t.Fatalf("expected expired challenge, got %v", err)
	}
}

func TestVerifyMFAExpiredChallenge(t *testing.T) {
	env := newTestEngine(t, nil)
	_, secret, _ := seedMFAAccount(t, env)

	res := challenge(t, env)
	env.clock.Advance(5*time.Minute + time.Second)
	if _, err := env.engine.VerifyMFA(context.Background(), res.TempToken, "totp", env.totpCode(t, secret)); !errors.Is(err, ErrMFAChallengeExpired) {
		t.Fatalf("expected challenge expired, got %v", err)
	}
}

func TestVerifyMFAUnknownMethod(t *testing.T) {
	env := newTestEngine(t, nil)
	seedMFAAccount(t, env)

	res := challenge(t, env)
	if _, err := env.engine.VerifyMFA(context.Background(), res.TempToken, "sms", "123456"); !errors.Is(err, ErrMFAMethodUnavailable) {
		t.Fatalf("expected method unavailable, got %v", err)
	}
}

func TestVerifyMFAEmptyCodeStartsEnrolment(t *testing.T) {
	env := newTestEngine(t, nil)
	acct := env.seedAccount(t, "alice", testPassword, nil)
	temp, _, err := env.engine.jwt.IssueChallenge(jwt.Subject{ID: acct.ID, Username: acct.Username, Email: acct.Email})
	if err != nil {
		t.Fatalf("IssueChallenge failed: %v", err)
	}

	out, err := env.engine.VerifyMFA(context.Background(), temp, "totp", "")
	if err != nil {
		t.Fatalf("VerifyMFA setup failed: %v", err)
	}
	if out.PendingTOTP == nil || out.AccessToken != "" {
		t.Fatalf("expected pending setup without tokens, got %+v", out)
	}
	secret := env.account(t, acct.ID).MFASecret
	if secret != out.PendingTOTP.Secret {
		t.Fatal("pending secret not stored")
	}

	done, err := env.engine.VerifyMFA(context.Background(), temp, "totp", env.totpCode(t, secret))
	if err != nil {
		t.Fatalf("VerifyMFA enrolment failed: %v", err)
	}
	if len(done.RecoveryCodes) != 10 || done.AccessToken == "" {
		t.Fatalf("expected recovery codes and tokens, got %+v", done)
	}
	if !env.account(t, acct.ID).MFAEnabled {
		t.Fatal("expected MFA enabled")
	}
}

func TestTOTPLifecycle(t *testing.T) {
	env := newTestEngine(t, nil)
	acct := env.seedAccount(t, "alice", testPassword, nil)
	ctx := context.Background()

	setup, err := env.engine.SetupTOTP(ctx, acct.ID)
	if err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}
	if !strings.HasPrefix(setup.URI, "otpauth://totp/") {
		t.Fatalf("unexpected uri %q", setup.URI)
	}
	again, err := env.engine.SetupTOTP(ctx, acct.ID)
	if err != nil || again.Secret != setup.Secret {
		t.Fatalf("pending secret should be reused: %v", err)
	}

	if _, err := env.engine.ConfirmTOTP(ctx, acct.ID, "000000"); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected invalid code, got %v", err)
	}
	codes, err := env.engine.ConfirmTOTP(ctx, acct.ID, env.totpCode(t, setup.Secret))
	if err != nil {
		t.Fatalf("ConfirmTOTP failed: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 recovery codes, got %d", len(codes))
	}
	if _, err := env.engine.SetupTOTP(ctx, acct.ID); !errors.Is(err, ErrMFAAlreadyEnabled) {
		t.Fatalf("expected already enabled, got %v", err)
	}

	env.clock.Advance(30 * time.Second)
	fresh, err := env.engine.RegenerateRecoveryCodes(ctx, acct.ID, env.totpCode(t, setup.Secret))
	if err != nil {
		t.Fatalf("RegenerateRecoveryCodes failed: %v", err)
	}
	if fresh[0] == codes[0] {
		t.Fatal("expected new recovery codes")
	}

	if err := env.engine.DisableTOTP(ctx, acct.ID, codes[0]); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("old recovery code must not disable, got %v", err)
	}
	if err := env.engine.DisableTOTP(ctx, acct.ID, fresh[1]); err != nil {
		t.Fatalf("DisableTOTP failed: %v", err)
	}
	got := env.account(t, acct.ID)
	if got.MFAEnabled || got.MFASecret != "" || len(got.RecoveryCodes) != 0 {
		t.Fatalf("expected MFA cleared, got %+v", got)
	}
}
