// Package reaper runs periodic cleanup tasks in the background.
//
// Tasks run one after another on a fixed interval, each under its own timeout,
// from a single goroutine that owns no locks shared with request handling.
// Cancelling the context passed to [Reaper.Start] stops the loop; [Reaper.Wait]
// blocks until the current pass has finished.
package reaper

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// DefaultInterval is the pause between passes.
const DefaultInterval = 10 * time.Minute

// ErrAlreadyRunning is returned by Start on a reaper that is running.
var ErrAlreadyRunning = errors.New("reaper already running")

// Task is one cleanup step. Run returns how many rows it removed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Result is the outcome of one task in one pass.
type Result struct {
	Task     string
	Removed  int64
	Err      error
	Duration time.Duration
}

// Config tunes the loop.
type Config struct {
	Interval    time.Duration `toml:"interval"`
	TaskTimeout time.Duration `toml:"task_timeout"`
	// RunOnStart runs a pass immediately instead of waiting one interval.
	RunOnStart bool `toml:"run_on_start"`
}

// Reaper owns the task list and the loop goroutine.
type Reaper struct {
	cfg     Config
	tasks   []Task
	observe func(Result)
	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// New returns a reaper. observe, when set, sees every task result.
func New(cfg Config, observe func(Result), tasks ...Task) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = time.Minute
	}
	return &Reaper{cfg: cfg, tasks: tasks, observe: observe}
}

// Start launches the loop. It returns immediately.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyRunning
	}
	r.running = true
	r.wg.Add(1)
	go r.loop(ctx)
	return nil
}

// Wait blocks until the loop started by Start has exited.
func (r *Reaper) Wait() {
	r.wg.Wait()
}

func (r *Reaper) loop(ctx context.Context) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		r.wg.Done()
	}()

	if r.cfg.RunOnStart {
		r.RunOnce(ctx)
	}
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes every task once and returns their results. It stops early
// when ctx is cancelled.
func (r *Reaper) RunOnce(ctx context.Context) []Result {
	results := make([]Result, 0, len(r.tasks))
	for _, task := range r.tasks {
		if ctx.Err() != nil {
			break
		}
		res := r.runTask(ctx, task)
		if res.Err != nil {
			log.Printf("authcore: reaper task %s failed: %v", task.Name, res.Err)
		}
		if r.observe != nil {
			r.observe(res)
		}
		results = append(results, res)
	}
	return results
}

func (r *Reaper) runTask(ctx context.Context, task Task) (res Result) {
	tctx, cancel := context.WithTimeout(ctx, r.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	res.Task = task.Name
	defer func() {
		if p := recover(); p != nil {
			res.Err = errors.New("reaper task panicked")
			log.Printf("authcore: reaper task %s panic: %v", task.Name, p)
		}
		res.Duration = time.Since(start)
	}()
	res.Removed, res.Err = task.Run(tctx)
	return res
}
