package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// StaleReaper deletes conversations untouched for longer than maxAge and
// reports how many were removed.
type StaleReaper interface {
	ReapStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// Janitor runs the conversation store's reaper on a cron schedule so
// abandoned chats do not accumulate in the local database forever.
type Janitor struct {
	cron   *cron.Cron
	reaper StaleReaper
	maxAge time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewJanitor(reaper StaleReaper, maxAge time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		cron:   cron.New(),
		reaper: reaper,
		maxAge: maxAge,
		logger: logger,
	}
}

// Start schedules the reap job and begins running it. schedule is a
// standard five-field cron expression.
func (j *Janitor) Start(schedule string) error {
	j.mu.Lock()
	j.ctx, j.cancel = context.WithCancel(context.Background())
	j.mu.Unlock()

	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("chat janitor started", "schedule", schedule, "max_age", j.maxAge)
	return nil
}

// Stop halts the schedule and cancels any in-flight reap.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if j.cancel != nil {
		j.cancel()
	}
	j.mu.Unlock()

	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
	j.logger.Info("chat janitor stopped")
}

func (j *Janitor) run() {
	j.mu.Lock()
	ctx := j.ctx
	j.mu.Unlock()
	if ctx == nil {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	removed, err := j.reaper.ReapStale(runCtx, j.maxAge)
	if err != nil {
		j.logger.Warn("stale chat reap failed", "error", err, "duration", time.Since(start))
		return
	}
	if removed > 0 {
		j.logger.Info("stale chats removed", "count", removed, "duration", time.Since(start))
	}
}
