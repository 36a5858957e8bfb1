package reaper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunOnceRunsEveryTask(t *testing.T) {
	var order []string
	r := New(Config{}, nil,
		Task{Name: "sessions", Run: func(context.Context) (int64, error) {
			order = append(order, "sessions")
			return 3, nil
		}},
		Task{Name: "refresh", Run: func(context.Context) (int64, error) {
			order = append(order, "refresh")
			return 0, errors.New("db down")
		}},
		Task{Name: "blacklist", Run: func(context.Context) (int64, error) {
			order = append(order, "blacklist")
			return 1, nil
		}},
	)

	results := r.RunOnce(context.Background())
	if len(results) != 3 || len(order) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Removed != 3 || results[1].Err == nil || results[2].Removed != 1 {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestTaskPanicIsContained(t *testing.T) {
	r := New(Config{}, nil, Task{Name: "bad", Run: func(context.Context) (int64, error) {
		panic("boom")
	}})
	results := r.RunOnce(context.Background())
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("expected panic converted to error, got %+v", results)
	}
}

func TestTaskTimeout(t *testing.T) {
	r := New(Config{TaskTimeout: 10 * time.Millisecond}, nil, Task{Name: "slow", Run: func(ctx context.Context) (int64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}})
	results := r.RunOnce(context.Background())
	if !errors.Is(results[0].Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", results[0].Err)
	}
}

func TestStartRunsOnIntervalAndStopsOnCancel(t *testing.T) {
	var passes atomic.Int64
	r := New(Config{Interval: 5 * time.Millisecond, RunOnStart: true}, func(Result) { passes.Add(1) },
		Task{Name: "count", Run: func(context.Context) (int64, error) { return 0, nil }},
	)
	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for passes.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
	if passes.Load() < 3 {
		t.Fatalf("expected at least 3 passes, got %d", passes.Load())
	}
	ctx2, cancel2 := context.WithCancel(context.Background())
	if err := r.Start(ctx2); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	cancel2()
	r.Wait()
}
