package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
)

func refreshDeps(rec *recorder) RefreshDeps {
	return RefreshDeps{
		Hooks: rec.hooks(),
		Exchange: func(context.Context, string) (refresh.Issued, error) {
			return refresh.Issued{Token: "next", Record: refresh.Token{AccountID: "a1", SessionID: "s1"}}, nil
		},
		LoadAccount: func(context.Context, string) (Account, error) { return Account{ID: "a1"}, nil },
		IssueAccess: func(acct Account, sessionID string) (string, time.Time, error) {
			return "access-" + sessionID, time.Time{}, nil
		},
		RebindSession: func(context.Context, string, string) error { return nil },
	}
}

func TestRunRefreshRotates(t *testing.T) {
	rec := newRecorder()
	var rebound string
	deps := refreshDeps(rec)
	deps.RebindSession = func(_ context.Context, sessionID, access string) error {
		rebound = sessionID + "=" + access
		return nil
	}

	res, err := RunRefresh(context.Background(), "old", deps)
	if err != nil {
		t.Fatalf("RunRefresh failed: %v", err)
	}
	if res.Tokens.RefreshToken != "next" || res.Tokens.SessionID != "s1" || rebound != "s1=access-s1" {
		t.Fatalf("unexpected rotation %+v rebound=%q", res.Tokens, rebound)
	}
	if rec.count(metrics.MetricRefreshSuccess) != 1 {
		t.Fatal("expected success metric")
	}
}

func TestRunRefreshReuseEndsFamily(t *testing.T) {
	rec := newRecorder()
	deps := refreshDeps(rec)
	deps.Exchange = func(context.Context, string) (refresh.Issued, error) {
		return refresh.Issued{}, &refresh.ReuseError{AccountID: "a1", Family: "f1", SessionIDs: []string{"s1", "s2"}}
	}
	var ended []string
	deps.EndSessions = func(_ context.Context, accountID string, ids []string) error {
		ended = ids
		return nil
	}

	if _, err := RunRefresh(context.Background(), "old", deps); err != testErrors.ReuseDetected {
		t.Fatalf("expected reuse, got %v", err)
	}
	if len(ended) != 2 || rec.count(metrics.MetricRefreshReuseDetected) != 1 || !rec.has(auditRefreshReuse, statusBlocked) {
		t.Fatalf("expected family sessions ended, got %v", ended)
	}
}

func TestRunRefreshMapsStoreErrors(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{refresh.ErrExpired, testErrors.TokenExpired},
		{refresh.ErrRevoked, testErrors.TokenRevoked},
		{refresh.ErrNotFound, testErrors.TokenInvalid},
		{refresh.ErrInvalid, testErrors.TokenInvalid},
		{refresh.ErrUnavailable, testErrors.Unavailable},
	}
	for _, tc := range cases {
		deps := refreshDeps(newRecorder())
		deps.Exchange = func(context.Context, string) (refresh.Issued, error) { return refresh.Issued{}, tc.err }
		if _, err := RunRefresh(context.Background(), "t", deps); err != tc.want {
			t.Fatalf("%v: expected %v, got %v", tc.err, tc.want, err)
		}
	}
}

func TestRunRefreshEndedSessionRevokesTokens(t *testing.T) {
	deps := refreshDeps(newRecorder())
	deps.RebindSession = func(context.Context, string, string) error { return session.ErrNotFound }
	revoked := ""
	deps.RevokeSession = func(_ context.Context, id string) error {
		revoked = id
		return nil
	}
	if _, err := RunRefresh(context.Background(), "t", deps); err != testErrors.TokenRevoked {
		t.Fatalf("expected revoked, got %v", err)
	}
	if revoked != "s1" {
		t.Fatal("refresh tokens of an ended session must be revoked")
	}
}

func TestRunRefreshBannedAccount(t *testing.T) {
	deps := refreshDeps(newRecorder())
	deps.LoadAccount = func(context.Context, string) (Account, error) { return Account{ID: "a1", Banned: true}, nil }
	if _, err := RunRefresh(context.Background(), "t", deps); err != testErrors.AccountBanned {
		t.Fatalf("expected banned, got %v", err)
	}
}

func logoutDeps(rec *recorder) LogoutDeps {
	return LogoutDeps{
		Hooks: rec.hooks(),
		ParseAccess: func(token string) (*jwt.AccessClaims, error) {
			if token != "good" {
				return nil, errors.New("bad signature")
			}
			return &jwt.AccessClaims{
				SessionID: "s1",
				RegisteredClaims: gojwt.RegisteredClaims{
					Subject:   "a1",
					ExpiresAt: gojwt.NewNumericDate(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)),
				},
			}, nil
		},
		Blacklist: func(context.Context, string, string, time.Time) error { return nil },
		InvalidateByToken: func(context.Context, string) (session.Session, error) {
			return session.Session{ID: "s1"}, nil
		},
	}
}

func TestRunLogoutBlacklistsUntilExpiry(t *testing.T) {
	rec := newRecorder()
	deps := logoutDeps(rec)
	var until time.Time
	deps.Blacklist = func(_ context.Context, _, _ string, u time.Time) error {
		until = u
		return nil
	}
	revoked := ""
	deps.RevokeRefresh = func(_ context.Context, id string) error {
		revoked = id
		return nil
	}

	if err := RunLogout(context.Background(), "good", deps); err != nil {
		t.Fatalf("RunLogout failed: %v", err)
	}
	if !until.Equal(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)) || revoked != "s1" {
		t.Fatalf("unexpected logout effects until=%v revoked=%q", until, revoked)
	}
	if !rec.has(auditLogout, statusSuccess) || !rec.has(auditTokenBlacklist, statusSuccess) {
		t.Fatal("expected logout and blacklist audit events")
	}
}

func TestRunLogoutPartialFailureSucceeds(t *testing.T) {
	rec := newRecorder()
	deps := logoutDeps(rec)
	deps.Blacklist = func(context.Context, string, string, time.Time) error { return errors.New("redis down") }
	if err := RunLogout(context.Background(), "good", deps); err != nil {
		t.Fatalf("one working tier is enough, got %v", err)
	}

	deps.InvalidateByToken = func(context.Context, string) (session.Session, error) {
		return session.Session{}, errors.New("db down")
	}
	if err := RunLogout(context.Background(), "good", deps); err != testErrors.Unavailable {
		t.Fatalf("expected unavailable when both tiers fail, got %v", err)
	}
	if err := RunLogout(context.Background(), "forged", deps); err != testErrors.TokenInvalid {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestRunLogoutFailsWhenSessionAndRefreshSurvive(t *testing.T) {
	rec := newRecorder()
	deps := logoutDeps(rec)
	deps.RevokeRefresh = func(context.Context, string) error { return errors.New("db down") }
	if err := RunLogout(context.Background(), "good", deps); err != nil {
		t.Fatalf("an ended session cannot be reopened, logout should succeed: %v", err)
	}

	deps.InvalidateByToken = func(context.Context, string) (session.Session, error) {
		return session.Session{}, errors.New("db down")
	}
	if err := RunLogout(context.Background(), "good", deps); err != testErrors.Unavailable {
		t.Fatalf("expected unavailable while the refresh token still works, got %v", err)
	}
	if !rec.has(auditLogout, statusFailed) {
		t.Fatal("expected a failed logout audit event")
	}
}

func TestRunWeb3Modes(t *testing.T) {
	wallets := map[string]Account{}
	issuer := &sessionIssuer{}
	deps := Web3Deps{
		Hooks:      newRecorder().hooks(),
		Completion: issuer.completion(),
		VerifyProof: func(_ context.Context, address, _, _ string) (string, error) {
			return address, nil
		},
		FindByWallet: func(_ context.Context, address string) (Account, bool, error) {
			acct, ok := wallets[address]
			return acct, ok, nil
		},
		CreateWallet: func(_ context.Context, address string) (Account, error) {
			acct := Account{ID: "w-" + address, WalletAddress: address}
			wallets[address] = acct
			return acct, nil
		},
	}

	if _, err := RunWeb3(context.Background(), "0xabc", "sig", "msg", deps); err != testErrors.WalletNotRegistered {
		t.Fatalf("expected not registered, got %v", err)
	}
	deps.AllowRegister = true
	if _, err := RunWeb3(context.Background(), "0xabc", "sig", "msg", deps); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := RunWeb3(context.Background(), "0xabc", "sig", "msg", deps); err != testErrors.WalletRegistered {
		t.Fatalf("expected registered, got %v", err)
	}
	deps.AllowRegister = false
	res, err := RunWeb3(context.Background(), "0xabc", "sig", "msg", deps)
	if err != nil || res.Account.ID != "w-0xabc" {
		t.Fatalf("login failed: %v", err)
	}
	if len(issuer.sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(issuer.sessions))
	}

	proofErr := errors.New("bad proof")
	deps.VerifyProof = func(context.Context, string, string, string) (string, error) { return "", proofErr }
	if _, err := RunWeb3(context.Background(), "0xabc", "sig", "msg", deps); err != proofErr {
		t.Fatalf("expected proof error, got %v", err)
	}
}
