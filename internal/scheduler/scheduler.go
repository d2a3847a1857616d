// Package scheduler runs the background maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"technical-analyst/config"
	"technical-analyst/observability"
)

// Job names used in logs and metrics
const (
	JobPurge = "purge_cache"
	JobSweep = "sweep_sessions"
	JobWarm  = "warm_quotes"
)

// Jobs is the work the scheduler triggers
type Jobs interface {
	PurgeExpired(ctx context.Context) (int64, error)
	SweepSessions() int
	WarmQuotes(ctx context.Context) (int, error)
}

// Scheduler manages the cron jobs
type Scheduler struct {
	cron    *cron.Cron
	jobs    Jobs
	metrics *observability.Metrics
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler. Each run gets timeout to finish.
func New(jobs Jobs, metrics *observability.Metrics, timeout time.Duration) *Scheduler {
	if metrics == nil {
		metrics = observability.GetMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:    jobs,
		metrics: metrics,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds the purge, sweep and warm jobs. An empty spec disables its job.
func (s *Scheduler) Register(cfg config.SchedulerConfig) error {
	entries := []struct {
		name string
		spec string
		run  func(ctx context.Context) (int64, error)
	}{
		{JobPurge, cfg.PurgeSpec, s.jobs.PurgeExpired},
		{JobSweep, cfg.SweepSpec, func(context.Context) (int64, error) {
			return int64(s.jobs.SweepSessions()), nil
		}},
		{JobWarm, cfg.WarmSpec, func(ctx context.Context) (int64, error) {
			n, err := s.jobs.WarmQuotes(ctx)
			return int64(n), err
		}},
	}

	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		name, run := e.name, e.run
		if _, err := s.cron.AddFunc(e.spec, func() { s.Run(name, run) }); err != nil {
			return fmt.Errorf("register %s job: %w", name, err)
		}
	}
	return nil
}

// Run executes one job now, logging and recording its outcome
func (s *Scheduler) Run(name string, run func(ctx context.Context) (int64, error)) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := run(ctx)
	if err != nil {
		s.metrics.RecordSchedulerRun(name, "error")
		observability.Error("scheduled job failed", "job", name, "error", err)
		return
	}
	s.metrics.RecordSchedulerRun(name, "success")
	observability.Debug("scheduled job done", "job", name, "count", n, "elapsed", time.Since(start))
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	observability.Info("scheduler started", "jobs", s.Entries())
}

// Stop stops the scheduler, cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	observability.Info("scheduler stopped")
}
