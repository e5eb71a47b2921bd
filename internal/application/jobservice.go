package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// cancelWait bounds how long CancelJob waits for the running job to stop
// before writing the cancellation line.
const cancelWait = 5 * time.Second

// Mirrorer mirrors one repository on behalf of a job.
type Mirrorer interface {
	MirrorOne(ctx context.Context, cfg model.Configuration, repo model.Repository, jobID string) (MirrorResult, error)
}

type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// JobService creates mirror jobs and runs them in the background, one
// repository at a time.
type JobService struct {
	configs driven.ConfigStore
	repos   driven.RepositoryStore
	jobs    driven.JobStore
	mirror  Mirrorer
	now     func() time.Time

	base     context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight map[string]*runningJob
}

// NewJobService creates a JobService. Close stops every running job.
func NewJobService(
	configs driven.ConfigStore,
	repos driven.RepositoryStore,
	jobs driven.JobStore,
	mirror Mirrorer,
) *JobService {
	base, stop := context.WithCancel(context.Background())
	return &JobService{
		configs:  configs,
		repos:    repos,
		jobs:     jobs,
		mirror:   mirror,
		now:      time.Now,
		base:     base,
		stop:     stop,
		inFlight: make(map[string]*runningJob),
	}
}

// StartJob creates a pending job and returns it without waiting for any
// mirroring. With no repository ids every repository of the configuration is
// mirrored. Setup errors are returned before the job row exists.
func (s *JobService) StartJob(ctx context.Context, configID string, repositoryIDs []string) (*model.MirrorJob, error) {
	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: configuration %s: %w", driven.ErrValidation, cfg.ID, err)
	}

	targets, err := s.targets(ctx, configID, repositoryIDs)
	if err != nil {
		return nil, err
	}

	job := model.MirrorJob{
		ID:       uuid.NewString(),
		ConfigID: configID,
		Status:   model.JobStatusPending,
		Log: []model.LogEntry{{
			Timestamp: s.now(),
			Level:     model.LogLevelInfo,
			Message:   msgJobStarted,
		}},
	}
	if len(repositoryIDs) == 1 {
		job.RepositoryID = repositoryIDs[0]
		job.Log[0].RepositoryName = targets[0].FullName
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create mirror job: %w", err)
	}
	emit(job.ID, job.Log[0])

	runCtx, cancel := context.WithCancel(s.base)
	run := &runningJob{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.inFlight[job.ID] = run
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.inFlight, job.ID)
			s.mu.Unlock()
			close(run.done)
		}()
		s.run(runCtx, job.ID, *cfg, targets, len(repositoryIDs) != 1)
	}()

	return s.jobs.Get(ctx, job.ID)
}

func (s *JobService) targets(ctx context.Context, configID string, ids []string) ([]model.Repository, error) {
	if len(ids) == 0 {
		repos, err := s.repos.ListByConfig(ctx, configID)
		if err != nil {
			return nil, fmt.Errorf("list repositories of %s: %w", configID, err)
		}
		if len(repos) == 0 {
			return nil, fmt.Errorf("configuration %s: %w", configID, driven.ErrNoRepositories)
		}
		return repos, nil
	}

	repos := make([]model.Repository, 0, len(ids))
	for _, id := range ids {
		repo, err := s.repos.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if repo.ConfigID != configID {
			return nil, fmt.Errorf("repository %s in configuration %s: %w", id, configID, driven.ErrRepoNotFound)
		}
		repos = append(repos, *repo)
	}
	return repos, nil
}

// run executes a job. Only a failure to write the job log fails the job;
// repository failures are counted and the job completes.
func (s *JobService) run(ctx context.Context, jobID string, cfg model.Configuration, targets []model.Repository, batch bool) {
	store := context.WithoutCancel(ctx)

	ok, err := s.jobs.Transition(store, jobID, []model.JobStatus{model.JobStatusPending}, model.JobStatusRunning, s.now())
	if err != nil {
		slog.Error("mirror job could not start", "job", jobID, "error", err)
		return
	}
	if !ok {
		slog.Info("mirror job cancelled before start", "job", jobID)
		return
	}

	if batch {
		if err := appendLog(ctx, s.jobs, jobID, logEntry(model.LogLevelInfo, "", msgBatchStarted, len(targets))); err != nil {
			s.fail(store, jobID, err)
			return
		}
	}

	var mirrored, failed int
	for _, repo := range targets {
		if s.stopped(ctx, jobID) {
			slog.Info("mirror job stopped", "job", jobID, "mirrored", mirrored, "failed", failed)
			s.interrupt(store, jobID)
			return
		}

		result, err := s.mirror.MirrorOne(ctx, cfg, repo, jobID)
		if err != nil {
			s.fail(store, jobID, err)
			return
		}
		if result.Succeeded() {
			mirrored++
		} else {
			failed++
		}
	}

	if s.stopped(ctx, jobID) {
		s.interrupt(store, jobID)
		return
	}

	if batch {
		if err := appendLog(ctx, s.jobs, jobID, logEntry(model.LogLevelInfo, "", msgBatchCompleted, mirrored, failed)); err != nil {
			s.fail(store, jobID, err)
			return
		}
	}

	ok, err = s.jobs.Transition(store, jobID, []model.JobStatus{model.JobStatusRunning}, model.JobStatusCompleted, s.now())
	if err != nil {
		slog.Error("mirror job could not complete", "job", jobID, "error", err)
		return
	}
	if ok {
		slog.Info("mirror job completed", "job", jobID, "mirrored", mirrored, "failed", failed)
	}
}

// stopped reports whether the job was cancelled in this process or moved to
// a terminal status by another one.
func (s *JobService) stopped(ctx context.Context, jobID string) bool {
	if ctx.Err() != nil {
		return true
	}
	status, err := s.jobs.GetStatus(ctx, jobID)
	if err != nil {
		slog.Warn("mirror job status unavailable", "job", jobID, "error", err)
		return errors.Is(err, driven.ErrJobNotFound)
	}
	return status.IsTerminal()
}

func (s *JobService) fail(ctx context.Context, jobID string, cause error) {
	slog.Error("mirror job failed", "job", jobID, "error", cause)
	if _, err := s.jobs.Transition(ctx, jobID, []model.JobStatus{model.JobStatusRunning}, model.JobStatusFailed, s.now()); err != nil {
		slog.Error("mirror job could not be marked failed", "job", jobID, "error", err)
	}
}

// interrupt fails a job whose context ended while it was still running, as on
// shutdown. A job already cancelled by CancelJob is left alone.
func (s *JobService) interrupt(ctx context.Context, jobID string) {
	ok, err := s.jobs.Transition(ctx, jobID, []model.JobStatus{model.JobStatusRunning}, model.JobStatusFailed, s.now())
	if err != nil {
		slog.Error("mirror job could not be marked interrupted", "job", jobID, "error", err)
		return
	}
	if ok {
		if err := appendLog(ctx, s.jobs, jobID, logEntry(model.LogLevelWarning, "", msgInterrupted)); err != nil {
			slog.Error("mirror job interruption not logged", "job", jobID, "error", err)
		}
	}
}

// CancelJob moves a pending or running job to failed and stops its
// execution. The cancellation line is appended after the runner stops, or
// after cancelWait, whichever is first.
func (s *JobService) CancelJob(ctx context.Context, jobID string) (*model.MirrorJob, error) {
	status, err := s.jobs.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if status.IsTerminal() {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, status, driven.ErrJobNotCancellable)
	}

	ok, err := s.jobs.Transition(ctx, jobID,
		[]model.JobStatus{model.JobStatusPending, model.JobStatusRunning}, model.JobStatusFailed, s.now())
	if err != nil {
		return nil, fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	if !ok {
		return nil, fmt.Errorf("job %s finished before it could be cancelled: %w", jobID, driven.ErrJobNotCancellable)
	}

	s.mu.Lock()
	run := s.inFlight[jobID]
	s.mu.Unlock()

	if run != nil {
		run.cancel()
		select {
		case <-run.done:
		case <-time.After(cancelWait):
			slog.Warn("mirror job still stopping after cancel", "job", jobID, "waited", cancelWait)
		case <-ctx.Done():
		}
	}

	if err := appendLog(ctx, s.jobs, jobID, logEntry(model.LogLevelInfo, "", msgCancelled)); err != nil {
		return nil, err
	}
	return s.jobs.Get(ctx, jobID)
}

// GetJob returns a job with its full log.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.MirrorJob, error) {
	return s.jobs.Get(ctx, jobID)
}

// ListJobs returns the jobs of a configuration, newest first.
func (s *JobService) ListJobs(ctx context.Context, configID string) ([]model.MirrorJob, error) {
	if _, err := s.configs.Get(ctx, configID); err != nil {
		return nil, err
	}
	return s.jobs.ListByConfig(ctx, configID)
}

// Wait blocks until a job running in this process stops. It returns
// immediately for jobs that are not running here.
func (s *JobService) Wait(ctx context.Context, jobID string) error {
	s.mu.Lock()
	run := s.inFlight[jobID]
	s.mu.Unlock()
	if run == nil {
		return nil
	}

	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels every running job and waits for them to stop.
func (s *JobService) Close() {
	s.stop()
	s.wg.Wait()
}
