package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/password"
)

const testPassword = "Correct-Horse-9"

func TestLoginWithoutMFAReturnsTokens(t *testing.T) {
	env := newTestEngine(t, nil)
	acct := env.seedAccount(t, "alice", testPassword, nil)
	ctx := WithUserAgent(ipContext("10.0.0.1"), "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148")

	res, err := env.engine.Login(ctx, "alice", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.RequiresMFA || res.TempToken != "" {
		t.Fatalf("unexpected MFA challenge: %+v", res)
	}
	if res.AccessToken == "" || res.RefreshToken == "" || res.SessionID == "" {
		t.Fatalf("expected tokens and session id, got %+v", res)
	}
	if res.User == nil || res.User.ID != acct.ID || res.User.Username != "alice" {
		t.Fatalf("unexpected user view: %+v", res.User)
	}
	if !res.AccessExpiresAt.Equal(env.clock.Now().Add(24 * time.Hour)) {
		t.Fatalf("unexpected access expiry: %v", res.AccessExpiresAt)
	}

	auth, err := env.engine.Authenticate(context.Background(), res.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if auth.Claims.AccountID != acct.ID || auth.Claims.SessionID != res.SessionID {
		t.Fatalf("unexpected claims: %+v", auth.Claims)
	}
	if auth.Session.DeviceName != "Mobile" || auth.Session.IP != "10.0.0.1" {
		t.Fatalf("unexpected session info: %+v", auth.Session)
	}

	if got := env.engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("expected one login success, got %d", got)
	}
	if env.account(t, acct.ID).LastLogin == nil {
		t.Fatal("expected last login to be recorded")
	}
}

func TestLoginByEmailIsCaseInsensitive(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedAccount(t, "alice", testPassword, nil)

	if _, err := env.engine.Login(context.Background(), "ALICE@example.com", testPassword); err != nil {
		t.Fatalf("Login by email failed: %v", err)
	}
}

func TestLoginUnknownAndWrongPasswordLookAlike(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedAccount(t, "alice", testPassword, nil)

	_, errUnknown := env.engine.Login(context.Background(), "nobody", testPassword)
	_, errWrong := env.engine.Login(context.Background(), "alice", "Wrong-Horse-9")
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v and %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("errors differ: %q vs %q", errUnknown, errWrong)
	}
}

func TestLoginLocksOnSixthAttempt(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedAccount(t, "alice", testPassword, nil)
	ctx := ipContext("10.0.0.2")

	for i := 0; i < 5; i++ {
		if _, err := env.engine.Login(ctx, "alice", "Wrong-Horse-9"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}

	_, err := env.engine.Login(ctx, "alice", testPassword)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected *LockedError, got %T", err)
	}
	if locked.RetrySeconds() != 900 {
		t.Fatalf("expected 900s retry, got %d", locked.RetrySeconds())
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricAccountLocked]; got != 1 {
		t.Fatalf("expected one account lock, got %d", got)
	}

	env.clock.Advance(15*time.Minute + time.Second)
	if _, err := env.engine.Login(ctx, "alice", testPassword); err != nil {
		t.Fatalf("login after lock expiry failed: %v", err)
	}
}

func TestLoginBackoffDoublesAfterRelock(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedAccount(t, "alice", testPassword, nil)
	ctx := ipContext("10.0.0.3")

	for i := 0; i < 5; i++ {
		_, _ = env.engine.Login(ctx, "alice", "Wrong-Horse-9")
	}
	env.clock.Advance(15*time.Minute + time.Second)
	if _, err := env.engine.Login(ctx, "alice", "Wrong-Horse-9"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	_, err := env.engine.Login(ctx, "alice", testPassword)
	var locked *LockedError
	if !errors.As(err, &locked) || locked.RetrySeconds() != 1800 {
		t.Fatalf("expected 1800s lock, got %v", err)
	}
}

func TestLoginUnverifiedEmailRejected(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedAccount(t, "alice", testPassword, func(a *Account) { a.EmailVerified = false })

	if _, err := env.engine.Login(context.Background(), "alice", testPassword); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected email not verified, got %v", err)
	}
}

func TestLoginWalletAccountHasNoPassword(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedAccount(t, "wallet", "", func(a *Account) {
		a.PasswordHash = password.SentinelWallet
		a.WalletAddress = "0x00000000000000000000000000000000000000aa"
	})

	for i := 0; i < 6; i++ {
		if _, err := env.engine.Login(context.Background(), "wallet", "web3_auth"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
}

func TestLoginBannedUntilFuture(t *testing.T) {
	env := newTestEngine(t, nil)
	until := env.clock.Now().Add(time.Hour)
	env.seedAccount(t, "alice", testPassword, func(a *Account) { a.BannedUntil = &until })

	if _, err := env.engine.Login(context.Background(), "alice", testPassword); !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected banned, got %v", err)
	}
	env.clock.Advance(time.Hour + time.Second)
	if _, err := env.engine.Login(context.Background(), "alice", testPassword); err != nil {
		t.Fatalf("login after ban expiry failed: %v", err)
	}
}

func TestLoginRateLimitedPerClient(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimits.Login = RatePolicy{Max: 2, Window: time.Minute}
	})
	env.seedAccount(t, "alice", testPassword, nil)
	ctx := ipContext("10.0.0.4")

	for i := 0; i < 2; i++ {
		_, _ = env.engine.Login(ctx, "alice", "Wrong-Horse-9")
	}
	_, err := env.engine.Login(ctx, "alice", testPassword)
	var limited *RateLimitError
	if !errors.As(err, &limited) || limited.Endpoint != EndpointLogin {
		t.Fatalf("expected login rate limit, got %v", err)
	}
	if limited.RetrySeconds() <= 0 || limited.RetrySeconds() > 60 {
		t.Fatalf("unexpected retry: %d", limited.RetrySeconds())
	}

	if _, err := env.engine.Login(ipContext("10.0.0.5"), "alice", testPassword); err != nil {
		t.Fatalf("other client should not be limited: %v", err)
	}
}

func TestLoginRehashesWeakerHash(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) { cfg.Password.BcryptCost = 5 })
	acct := env.seedAccount(t, "alice", testPassword, nil)

	if _, err := env.engine.Login(context.Background(), "alice", testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if got := env.account(t, acct.ID).PasswordHash; got == acct.PasswordHash {
		t.Fatal("expected password hash to be upgraded")
	}
}
