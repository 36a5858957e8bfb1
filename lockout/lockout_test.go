package lockout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine() (*Engine, *testClock) {
	clock := &testClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(NewMemoryStore(), DefaultPolicy()).WithClock(clock.Now), clock
}

func TestBackoffCurve(t *testing.T) {
	p := DefaultPolicy()
	cases := map[int]time.Duration{
		0:  0,
		4:  0,
		5:  15 * time.Minute,
		6:  30 * time.Minute,
		7:  60 * time.Minute,
		8:  120 * time.Minute,
		9:  240 * time.Minute,
		10: 240 * time.Minute,
		64: 240 * time.Minute,
	}
	for attempts, want := range cases {
		if got := p.Backoff(attempts); got != want {
			t.Fatalf("Backoff(%d) = %v, want %v", attempts, got, want)
		}
	}
}

func TestLocksAtThresholdUntilBackoffElapses(t *testing.T) {
	e, clock := newTestEngine()
	ctx := context.Background()

	for i := 1; i < 5; i++ {
		st, err := e.RecordFailure(ctx, "acct-1")
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if st.Locked || st.JustLocked {
			t.Fatalf("attempt %d must not lock", i)
		}
	}

	st, err := e.RecordFailure(ctx, "acct-1")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !st.Locked || !st.JustLocked {
		t.Fatalf("5th failure must lock, got %+v", st)
	}
	if st.RemainingSeconds() != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected remaining seconds %d", st.RemainingSeconds())
	}

	clock.Advance(15*time.Minute - time.Second)
	st, err = e.Check(ctx, "acct-1")
	if err != nil || !st.Locked {
		t.Fatalf("account must stay locked until backoff elapses: %+v %v", st, err)
	}

	clock.Advance(time.Second)
	st, err = e.Check(ctx, "acct-1")
	if err != nil || st.Locked {
		t.Fatalf("account must unlock after backoff: %+v %v", st, err)
	}
	if st.FailedAttempts != 5 {
		t.Fatalf("counter must survive lock expiry, got %d", st.FailedAttempts)
	}

	st, _ = e.RecordFailure(ctx, "acct-1")
	if st.RetryAfter != 30*time.Minute {
		t.Fatalf("second lock cycle must double, got %v", st.RetryAfter)
	}
}

func TestResetUnlocks(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = e.RecordFailure(ctx, "acct-1")
	}
	if st, _ := e.Check(ctx, "acct-1"); !st.Locked {
		t.Fatal("expected lock")
	}
	if err := e.Reset(ctx, "acct-1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	st, _ := e.Check(ctx, "acct-1")
	if st.Locked || st.FailedAttempts != 0 {
		t.Fatalf("reset must clear lock and counter, got %+v", st)
	}
}

func TestAccountsAreIndependent(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = e.RecordFailure(ctx, "acct-1")
	}
	if st, _ := e.Check(ctx, "acct-2"); st.Locked {
		t.Fatal("lockout must be scoped to one account")
	}
}

func TestConcurrentFailuresAreNotLost(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.RecordFailure(ctx, "acct-1")
		}()
	}
	wg.Wait()

	st, err := e.Check(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if st.FailedAttempts != 40 {
		t.Fatalf("expected 40 recorded failures, got %d", st.FailedAttempts)
	}
}

type brokenStore struct{}

var errBroken = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) (Record, error) { return Record{}, errBroken }
func (brokenStore) Update(context.Context, string, func(*Record)) (Record, error) {
	return Record{}, errBroken
}
func (brokenStore) Reset(context.Context, string) error { return errBroken }

func TestCheckFailsClosed(t *testing.T) {
	e := New(brokenStore{}, DefaultPolicy())

	st, err := e.Check(context.Background(), "acct-1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !st.Locked || st.RetryAfter != FailClosedRetry {
		t.Fatalf("store outage must read as locked, got %+v", st)
	}
}
