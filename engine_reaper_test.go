package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/internal/reaper"
)

func removedBy(results []ReaperResult) map[string]int64 {
	out := make(map[string]int64, len(results))
	for _, r := range results {
		out[r.Task] = r.Removed
	}
	return out
}

func TestRunReaperOncePurgesExpiredState(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	alice := env.seedAccount(t, "alice", testPassword, nil)
	res := login(t, env, ctx)
	if err := env.engine.Logout(ctx, res.AccessToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	key, address := newWallet(t)
	msg, sig := signedChallenge(t, env, key, address)
	wallet, err := env.engine.Web3Verify(ctx, address, sig, msg)
	if err != nil {
		t.Fatalf("Web3Verify failed: %v", err)
	}
	if _, err := env.engine.Web3Challenge(ctx, address); err != nil {
		t.Fatalf("Web3Challenge failed: %v", err)
	}
	bob := register(t, env, "bob")

	early := removedBy(env.engine.RunReaperOnce(ctx))
	if early["unverified_accounts"] != 0 || early["token_blacklist"] != 0 {
		t.Fatalf("nothing should be due yet: %+v", early)
	}

	env.clock.Advance(8*24*time.Hour + time.Minute)
	got := removedBy(env.engine.RunReaperOnce(ctx))

	if got["sessions"] < 2 {
		t.Fatalf("expected both sessions purged, got %d", got["sessions"])
	}
	if got["refresh_tokens"] < 2 {
		t.Fatalf("expected refresh tokens purged, got %d", got["refresh_tokens"])
	}
	if got["token_blacklist"] != 1 {
		t.Fatalf("expected one blacklist entry purged, got %d", got["token_blacklist"])
	}
	if got["web3_challenges"] != 2 {
		t.Fatalf("expected used and unused challenges purged, got %d", got["web3_challenges"])
	}
	if got["unverified_accounts"] != 1 {
		t.Fatalf("expected one unverified account purged, got %d", got["unverified_accounts"])
	}

	if _, err := env.accounts.GetByID(ctx, bob.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("unverified account must be gone, got %v", err)
	}
	env.account(t, alice.ID)
	env.account(t, wallet.User.ID)

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricReaperRemoved] == 0 || snap.Counters[MetricReaperFailure] != 0 {
		t.Fatalf("unexpected reaper metrics %d/%d", snap.Counters[MetricReaperRemoved], snap.Counters[MetricReaperFailure])
	}
}

func TestRunReaperOnceKeepsUnverifiedWhenRetentionOff(t *testing.T) {
	env := newTestEngine(t, func(cfg *Config) { cfg.Accounts.UnverifiedRetention = 0 })
	bob := register(t, env, "bob")

	env.clock.Advance(30 * 24 * time.Hour)
	for _, r := range env.engine.RunReaperOnce(context.Background()) {
		if r.Task == "unverified_accounts" {
			t.Fatal("unverified task must not be scheduled")
		}
	}
	env.account(t, bob.ID)
}

func TestStartReaperLifecycle(t *testing.T) {
	env := newTestEngine(t, nil)
	if err := env.engine.StartReaper(context.Background()); err != nil {
		t.Fatalf("disabled reaper must be a no-op, got %v", err)
	}

	env = newTestEngine(t, func(cfg *Config) {
		cfg.Reaper.Enabled = true
		cfg.Reaper.Interval = time.Second
	})
	if err := env.engine.StartReaper(context.Background()); err != nil {
		t.Fatalf("StartReaper failed: %v", err)
	}
	if err := env.engine.StartReaper(context.Background()); !errors.Is(err, reaper.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	done := make(chan struct{})
	go func() {
		env.engine.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the reaper")
	}
}
