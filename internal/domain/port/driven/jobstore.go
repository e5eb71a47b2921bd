package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
)

var (
	// ErrJobNotFound indicates the requested job does not exist.
	ErrJobNotFound = errors.New("mirror job not found")

	// ErrJobNotCancellable indicates the job already reached a terminal status.
	ErrJobNotCancellable = errors.New("mirror job is not cancellable")

	// ErrNoRepositories indicates a job was requested for a configuration
	// that has no repositories to mirror.
	ErrNoRepositories = errors.New("no repositories to mirror")
)

// RepoOutcome is the status change a mirror attempt applies to a repository.
type RepoOutcome struct {
	RepositoryID string
	Status       model.RepoStatus
	LastMirrored *time.Time // Only written when non-nil.
	ErrorMessage string
}

// JobStore defines the driven port for mirror job persistence. The job log is
// append-only; entries are ordered by sequence and their timestamps are
// non-decreasing.
type JobStore interface {
	// Create inserts a job together with its initial log entries.
	Create(ctx context.Context, job model.MirrorJob) error
	// Get returns a job with its full log, or ErrJobNotFound.
	Get(ctx context.Context, id string) (*model.MirrorJob, error)
	// GetStatus returns only the status of a job, or ErrJobNotFound.
	GetStatus(ctx context.Context, id string) (model.JobStatus, error)
	// ListByConfig returns jobs of a configuration, newest first, without logs.
	ListByConfig(ctx context.Context, configID string) ([]model.MirrorJob, error)

	// AppendLog appends one entry as an atomic read-modify-write and returns
	// the stored entry with its sequence and clamped timestamp.
	AppendLog(ctx context.Context, jobID string, entry model.LogEntry) (model.LogEntry, error)
	// RecordOutcome applies a repository status change and appends the
	// matching log entry in a single transaction.
	RecordOutcome(ctx context.Context, jobID string, entry model.LogEntry, outcome RepoOutcome) (model.LogEntry, error)

	// Transition moves a job to status `to` only if its current status is one
	// of `from`. It reports whether the transition happened. StartedAt is set
	// when moving to running; CompletedAt when moving to a terminal status.
	Transition(ctx context.Context, id string, from []model.JobStatus, to model.JobStatus, at time.Time) (bool, error)
}
