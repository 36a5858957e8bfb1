package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/kv"
	"github.com/MrEthical07/authcore/internal/reaper"
)

// ReaperResult is the outcome of one cleanup task.
type ReaperResult = reaper.Result

func (e *Engine) newReaper(sweep *kv.Memory) *reaper.Reaper {
	tasks := []reaper.Task{
		{Name: "sessions", Run: func(ctx context.Context) (int64, error) {
			return e.sessions.Purge(ctx, e.config.Session.PurgeGrace)
		}},
		{Name: "refresh_tokens", Run: func(ctx context.Context) (int64, error) {
			return e.refresh.CleanupExpired(ctx, e.config.Refresh.CleanupGrace)
		}},
		{Name: "token_blacklist", Run: e.revocation.Purge},
		{Name: "web3_challenges", Run: e.web3.Purge},
	}
	if retention := e.config.Accounts.UnverifiedRetention; retention > 0 {
		tasks = append(tasks, reaper.Task{Name: "unverified_accounts", Run: func(ctx context.Context) (int64, error) {
			return e.accounts.DeleteUnverified(ctx, e.now().Add(-retention))
		}})
	}
	if sweep != nil {
		tasks = append(tasks, reaper.Task{Name: "cache", Run: sweep.Sweep})
	}

	cfg := reaper.Config{
		Interval:    e.config.Reaper.Interval,
		TaskTimeout: e.config.Reaper.TaskTimeout,
		RunOnStart:  e.config.Reaper.RunOnStart,
	}
	return reaper.New(cfg, e.observeReaper, tasks...)
}

func (e *Engine) observeReaper(res reaper.Result) {
	if res.Err != nil {
		e.metricInc(MetricReaperFailure)
		return
	}
	if res.Removed > 0 {
		e.metrics.Add(MetricReaperRemoved, uint64(res.Removed))
	}
}

// StartReaper runs the cleanup loop until ctx is cancelled or [Engine.Close]
// is called. It is a no-op when the reaper is disabled in the config.
func (e *Engine) StartReaper(ctx context.Context) error {
	if !e.config.Reaper.Enabled {
		return nil
	}
	e.stopMu.Lock()
	defer e.stopMu.Unlock()
	if e.stopReaper != nil {
		return reaper.ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	if err := e.reaper.Start(loopCtx); err != nil {
		cancel()
		return err
	}
	e.stopReaper = cancel
	return nil
}

// RunReaperOnce runs every cleanup task once, regardless of the Enabled flag.
func (e *Engine) RunReaperOnce(ctx context.Context) []ReaperResult {
	return e.reaper.RunOnce(ctx)
}
