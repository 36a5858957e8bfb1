package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, *MemoryStore, *time.Time) {
	t.Helper()
	store := NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)
	svc := NewService(store, time.Hour).WithClock(func() time.Time { return now })
	return svc, store, &now
}

func TestIssueStoresOnlyHash(t *testing.T) {
	svc, store, _ := newTestService(t)
	issued, err := svc.Issue(context.Background(), "acct-1", "sess-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := store.Get(context.Background(), issued.Token); !errors.Is(err, ErrNotFound) {
		t.Fatal("plaintext token must not be a store key")
	}
	rec, err := store.Get(context.Background(), Hash(issued.Token))
	if err != nil {
		t.Fatalf("Get by hash: %v", err)
	}
	if rec.Family == "" || rec.ParentHash != "" || rec.SessionID != "sess-1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if err := svc.Verify(context.Background(), "acct-1", issued.Token); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestExchangeKeepsFamilyAndLinksParent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a, _ := svc.Issue(ctx, "acct-1", "sess-1")

	b, err := svc.Exchange(ctx, a.Token)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if b.Record.Family != a.Record.Family {
		t.Fatalf("family changed: %s -> %s", a.Record.Family, b.Record.Family)
	}
	if b.Record.ParentHash != a.Record.Hash {
		t.Fatal("child must point at parent hash")
	}
	old, err := store.Get(ctx, a.Record.Hash)
	if err != nil || old.RotatedAt == nil {
		t.Fatalf("parent should be kept and stamped rotated: %+v err=%v", old, err)
	}
}

func TestReplayRevokesWholeFamily(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	a, _ := svc.Issue(ctx, "acct-1", "sess-1")
	b, err := svc.Exchange(ctx, a.Token)
	if err != nil {
		t.Fatalf("Exchange a: %v", err)
	}
	c, err := svc.Exchange(ctx, b.Token)
	if err != nil {
		t.Fatalf("Exchange b: %v", err)
	}
	other, _ := svc.Issue(ctx, "acct-1", "sess-2")

	_, err = svc.Exchange(ctx, a.Token)
	var reuse *ReuseError
	if !errors.As(err, &reuse) || !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("expected ReuseError, got %v", err)
	}
	if reuse.AccountID != "acct-1" || len(reuse.SessionIDs) != 1 || reuse.SessionIDs[0] != "sess-1" {
		t.Fatalf("unexpected reuse detail %+v", reuse)
	}

	for _, tok := range []string{a.Token, b.Token, c.Token} {
		if err := svc.Verify(ctx, "acct-1", tok); !errors.Is(err, ErrRevoked) {
			t.Fatalf("family member should fail verify, got %v", err)
		}
	}
	if _, err := svc.Exchange(ctx, c.Token); !errors.Is(err, ErrRevoked) {
		t.Fatalf("head of a flagged family must not rotate, got %v", err)
	}
	if err := svc.Verify(ctx, "acct-1", other.Token); err != nil {
		t.Fatalf("unrelated family must survive: %v", err)
	}
}

func TestDetectReuse(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	a, _ := svc.Issue(ctx, "acct-1", "sess-1")

	if reused, err := svc.DetectReuse(ctx, "acct-1", a.Token); err != nil || reused {
		t.Fatalf("fresh token: reused=%v err=%v", reused, err)
	}
	b, _ := svc.Exchange(ctx, a.Token)
	if reused, err := svc.DetectReuse(ctx, "acct-1", a.Token); err != nil || !reused {
		t.Fatalf("rotated token: reused=%v err=%v", reused, err)
	}
	if err := svc.Verify(ctx, "acct-1", b.Token); !errors.Is(err, ErrRevoked) {
		t.Fatalf("child should be revoked after reuse, got %v", err)
	}
}

func TestExchangeExpired(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()
	a, _ := svc.Issue(ctx, "acct-1", "sess-1")
	*now = now.Add(2 * time.Hour)
	if _, err := svc.Exchange(ctx, a.Token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if err := svc.Verify(ctx, "acct-1", a.Token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestExchangeRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService(t)
	for _, tok := range []string{"", "short", "!!!!", "dGVzdA"} {
		if _, err := svc.Exchange(context.Background(), tok); !errors.Is(err, ErrInvalid) {
			t.Fatalf("token %q: expected ErrInvalid, got %v", tok, err)
		}
	}
	unknown, _ := newOpaqueToken()
	if _, err := svc.Exchange(context.Background(), unknown); !errors.Is(err, ErrInvalid) {
		t.Fatalf("unknown token: expected ErrInvalid, got %v", err)
	}
}

func TestVerifyRejectsRotatedParent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a, _ := svc.Issue(ctx, "acct-1", "sess-1")
	b, err := svc.Exchange(ctx, a.Token)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	if err := svc.Verify(ctx, "acct-1", a.Token); !errors.Is(err, ErrRevoked) {
		t.Fatalf("rotated parent: expected ErrRevoked, got %v", err)
	}
	if err := svc.Verify(ctx, "acct-1", b.Token); err != nil {
		t.Fatalf("child should verify: %v", err)
	}
	rec, _ := store.Get(ctx, a.Record.Hash)
	if rec.Revoked || rec.ReuseDetected {
		t.Fatalf("Verify must not flag the family: %+v", rec)
	}
}

func TestVerifyWrongAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	a, _ := svc.Issue(context.Background(), "acct-1", "sess-1")
	if err := svc.Verify(context.Background(), "acct-2", a.Token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestConcurrentExchangeFlagsFamily(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	a, _ := svc.Issue(ctx, "acct-1", "sess-1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, reused int
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Exchange(ctx, a.Token)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrReuseDetected):
				reused++
			}
		}()
	}
	wg.Wait()
	if ok != 1 || reused != 7 {
		t.Fatalf("expected exactly one winner and seven replays, got ok=%d reused=%d", ok, reused)
	}
}

func TestRevokeAllAndActiveCount(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()
	a, _ := svc.Issue(ctx, "acct-1", "sess-1")
	_, _ = svc.Issue(ctx, "acct-1", "sess-2")
	_, _ = svc.Issue(ctx, "acct-2", "sess-3")
	_, _ = svc.Exchange(ctx, a.Token)

	if n, _ := svc.ActiveCount(ctx, "acct-1"); n != 2 {
		t.Fatalf("expected 2 active, got %d", n)
	}
	if err := svc.RevokeSession(ctx, "sess-2"); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if n, _ := svc.ActiveCount(ctx, "acct-1"); n != 1 {
		t.Fatalf("expected 1 active, got %d", n)
	}
	if _, err := svc.RevokeAll(ctx, "acct-1"); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if n, _ := svc.ActiveCount(ctx, "acct-1"); n != 0 {
		t.Fatalf("expected 0 active, got %d", n)
	}
	if n, _ := svc.ActiveCount(ctx, "acct-2"); n != 1 {
		t.Fatalf("other account affected, got %d", n)
	}

	*now = now.Add(3 * time.Hour)
	deleted, err := svc.CleanupExpired(ctx, time.Hour)
	if err != nil || deleted != 4 {
		t.Fatalf("CleanupExpired: deleted=%d err=%v", deleted, err)
	}
}
