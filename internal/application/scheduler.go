package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// Syncer refreshes the stored inventory of a configuration.
type Syncer interface {
	SyncConfig(ctx context.Context, cfg model.Configuration) (SyncResult, error)
}

// JobStarter starts mirror jobs.
type JobStarter interface {
	StartJob(ctx context.Context, configID string, repositoryIDs []string) (*model.MirrorJob, error)
}

// runRequest represents a manual "run now" trigger.
type runRequest struct {
	configID string
	done     chan runResponse
}

type runResponse struct {
	job *model.MirrorJob
	err error
}

// Scheduler periodically syncs due configurations and starts a batch mirror
// job for each.
type Scheduler struct {
	configs driven.ConfigStore
	syncer  Syncer
	jobs    JobStarter
	tick    time.Duration
	now     func() time.Time
	runCh   chan runRequest
}

// NewScheduler creates a Scheduler that checks for due configurations every tick.
func NewScheduler(configs driven.ConfigStore, syncer Syncer, jobs JobStarter, tick time.Duration) *Scheduler {
	return &Scheduler{
		configs: configs,
		syncer:  syncer,
		jobs:    jobs,
		tick:    tick,
		now:     time.Now,
		runCh:   make(chan runRequest),
	}
}

// Start runs an immediate check, then one per tick, and serves RunNow
// requests. Due runs happen on their own goroutine so a long sweep never
// delays a RunNow; RunNow requests are served one at a time. Start blocks
// until the context is canceled and every sweep has returned.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.sweep(ctx)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case req := <-s.runCh:
			job, err := s.runNow(ctx, req.configID)
			req.done <- runResponse{job: job, err: err}
		}
	}
}

// sweep runs due configurations now and on every tick.
func (s *Scheduler) sweep(ctx context.Context) {
	s.runDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// RunNow syncs a configuration and starts its batch job immediately,
// regardless of its schedule. It blocks until the job has been created or
// the context is canceled. The returned job is nil when the configuration
// has no repositories.
func (s *Scheduler) RunNow(ctx context.Context, configID string) (*model.MirrorJob, error) {
	done := make(chan runResponse, 1)
	req := runRequest{configID: configID, done: done}

	select {
	case s.runCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-done:
		return resp.job, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) runNow(ctx context.Context, configID string) (*model.MirrorJob, error) {
	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return nil, err
	}
	return s.runConfig(ctx, *cfg)
}

// runDue runs every configuration whose next run is due.
func (s *Scheduler) runDue(ctx context.Context) {
	due, err := s.configs.ListDue(ctx, s.now())
	if err != nil {
		slog.Error("listing due configurations failed", "error", err)
		return
	}

	for _, cfg := range due {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.runConfig(ctx, cfg); err != nil {
			slog.Error("scheduled run failed", "config", cfg.ID, "error", err)
		}
	}
}

// runConfig syncs then starts a batch job. The run is recorded even when it
// fails so a broken configuration waits a full interval before retrying.
func (s *Scheduler) runConfig(ctx context.Context, cfg model.Configuration) (*model.MirrorJob, error) {
	started := s.now()
	defer func() {
		interval := cfg.Schedule.Interval
		if interval <= 0 {
			interval = model.DefaultScheduleInterval
		}
		if err := s.configs.RecordRun(context.WithoutCancel(ctx), cfg.ID, started, started.Add(interval)); err != nil {
			slog.Error("recording scheduled run failed", "config", cfg.ID, "error", err)
		}
	}()

	if _, err := s.syncer.SyncConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("sync configuration %s: %w", cfg.ID, err)
	}

	job, err := s.jobs.StartJob(ctx, cfg.ID, nil)
	if errors.Is(err, driven.ErrNoRepositories) {
		slog.Info("nothing to mirror", "config", cfg.ID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("start mirror job for %s: %w", cfg.ID, err)
	}
	return job, nil
}
