package authcore

import (
	"errors"
	"sync"
	"testing"
)

func TestRefreshConcurrencyAtMostOneWinner(t *testing.T) {
	env := newTestEngine(t, nil)
	env.seedAccount(t, "alice", "Secret123", nil)
	ctx := ipContext("198.51.100.7")

	res, err := env.engine.Login(ctx, "alice", "Secret123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	type outcome struct {
		res *LoginResult
		err error
	}
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := env.engine.Refresh(ctx, res.RefreshToken)
			results <- outcome{r, err}
		}()
	}
	wg.Wait()
	close(results)

	var winners []*LoginResult
	for o := range results {
		if o.err == nil {
			winners = append(winners, o.res)
			continue
		}
		if !errors.Is(o.err, ErrReuseDetected) && !errors.Is(o.err, ErrTokenRevoked) {
			t.Fatalf("unexpected refresh error: %v", o.err)
		}
	}
	if len(winners) > 1 {
		t.Fatalf("expected at most one refresh success, got %d", len(winners))
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got == 0 {
		t.Fatal("racing refreshes must be reported as reuse")
	}

	// The reuse revoked the whole family, the winner's child included.
	for _, w := range winners {
		if _, err := env.engine.Refresh(ctx, w.RefreshToken); err == nil {
			t.Fatal("child of a reused family was still accepted")
		}
	}
	if _, err := env.engine.Authenticate(ctx, res.AccessToken); err == nil {
		t.Fatal("session of a reused family still authenticates")
	}
}
