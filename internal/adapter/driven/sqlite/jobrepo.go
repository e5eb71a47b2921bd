package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.JobStore = (*JobRepo)(nil)

// JobRepo is the SQLite implementation of the JobStore port interface.
// Log entries live in mirror_job_logs keyed by (job_id, seq).
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a new JobRepo backed by the given DB.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

const jobColumns = `id, config_id, repository_id, status, started_at, completed_at, created_at, updated_at`

// Create inserts a job and its initial log entries in one transaction.
func (r *JobRepo) Create(ctx context.Context, job model.MirrorJob) error {
	const query = `INSERT INTO mirror_jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	status := job.Status
	if status == "" {
		status = model.JobStatusPending
	}

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			job.ID, job.ConfigID, job.RepositoryID, string(status),
			nullableTime(job.StartedAt), nullableTime(job.CompletedAt),
			formatTime(createdAt), formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("insert job %s: %w", job.ID, err)
		}

		for _, entry := range job.Log {
			if _, err := appendLog(ctx, tx, job.ID, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns a job with its log ordered by sequence.
func (r *JobRepo) Get(ctx context.Context, id string) (*model.MirrorJob, error) {
	const query = `SELECT ` + jobColumns + ` FROM mirror_jobs WHERE id = ?`

	job, err := scanJob(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get job %s: %w", id, driven.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	entries, err := r.listLog(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Log = entries

	return job, nil
}

// GetStatus returns only the status column, which the runner polls between repositories.
func (r *JobRepo) GetStatus(ctx context.Context, id string) (model.JobStatus, error) {
	var status string
	err := r.db.Reader.QueryRowContext(ctx, `SELECT status FROM mirror_jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get job status %s: %w", id, driven.ErrJobNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get job status %s: %w", id, err)
	}
	return model.JobStatus(status), nil
}

// ListByConfig returns the jobs of a configuration, newest first. Logs are not loaded.
func (r *JobRepo) ListByConfig(ctx context.Context, configID string) ([]model.MirrorJob, error) {
	const query = `SELECT ` + jobColumns + ` FROM mirror_jobs WHERE config_id = ? ORDER BY created_at DESC, id`

	rows, err := r.db.Reader.QueryContext(ctx, query, configID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []model.MirrorJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, nil
}

// AppendLog appends a single entry to the job log.
func (r *JobRepo) AppendLog(ctx context.Context, jobID string, entry model.LogEntry) (model.LogEntry, error) {
	var stored model.LogEntry

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		stored, err = appendLog(ctx, tx, jobID, entry)
		return err
	})
	if err != nil {
		return model.LogEntry{}, err
	}
	return stored, nil
}

// RecordOutcome writes the repository status and the log entry describing it
// in one transaction.
func (r *JobRepo) RecordOutcome(
	ctx context.Context, jobID string, entry model.LogEntry, outcome driven.RepoOutcome,
) (model.LogEntry, error) {
	var stored model.LogEntry

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := applyOutcome(ctx, tx, outcome); err != nil {
			return err
		}
		var err error
		stored, err = appendLog(ctx, tx, jobID, entry)
		return err
	})
	if err != nil {
		return model.LogEntry{}, err
	}
	return stored, nil
}

// Transition performs a compare-and-set on the job status.
func (r *JobRepo) Transition(
	ctx context.Context, id string, from []model.JobStatus, to model.JobStatus, at time.Time,
) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	var (
		set  = []string{"status = ?", "updated_at = ?"}
		args = []any{string(to), formatTime(at)}
	)
	switch {
	case to == model.JobStatusRunning:
		set = append(set, "started_at = COALESCE(started_at, ?)")
		args = append(args, formatTime(at))
	case to.IsTerminal():
		set = append(set, "completed_at = ?")
		args = append(args, formatTime(at))
	}

	placeholders := make([]string, len(from))
	args = append(args, id)
	for i, s := range from {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	query := `UPDATE mirror_jobs SET ` + strings.Join(set, ", ") +
		` WHERE id = ? AND status IN (` + strings.Join(placeholders, ", ") + `)`

	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition job %s to %s: %w", id, to, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 1 {
		return true, nil
	}

	// Distinguish a lost race from a missing job.
	if _, err := r.GetStatus(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *JobRepo) listLog(ctx context.Context, jobID string) ([]model.LogEntry, error) {
	const query = `
		SELECT seq, timestamp, level, message, repository_name, details
		FROM mirror_job_logs
		WHERE job_id = ?
		ORDER BY seq
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job log: %w", err)
	}
	defer rows.Close()

	entries := []model.LogEntry{}
	for rows.Next() {
		var (
			entry     model.LogEntry
			ts, level string
		)
		if err := rows.Scan(&entry.Sequence, &ts, &level, &entry.Message, &entry.RepositoryName, &entry.Details); err != nil {
			return nil, fmt.Errorf("scan job log entry: %w", err)
		}
		if entry.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse log timestamp: %w", err)
		}
		entry.Level = model.LogLevel(level)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job log: %w", err)
	}

	return entries, nil
}

// appendLog assigns the next sequence number and clamps the timestamp so the
// log never goes backwards in time.
func appendLog(ctx context.Context, tx *sql.Tx, jobID string, entry model.LogEntry) (model.LogEntry, error) {
	var (
		lastSeq int
		lastTS  sql.NullString
	)
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0),
		       (SELECT timestamp FROM mirror_job_logs WHERE job_id = ? ORDER BY seq DESC LIMIT 1)
		FROM mirror_job_logs WHERE job_id = ?`, jobID, jobID,
	).Scan(&lastSeq, &lastTS)
	if err != nil {
		return model.LogEntry{}, fmt.Errorf("read job log tail %s: %w", jobID, err)
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	if lastTS.Valid {
		prev, err := parseTime(lastTS.String)
		if err != nil {
			return model.LogEntry{}, fmt.Errorf("parse log timestamp: %w", err)
		}
		if entry.Timestamp.Before(prev) {
			entry.Timestamp = prev
		}
	}
	if entry.Level == "" {
		entry.Level = model.LogLevelInfo
	}
	entry.Sequence = lastSeq + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO mirror_job_logs (job_id, seq, timestamp, level, message, repository_name, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		jobID, entry.Sequence, formatTime(entry.Timestamp), string(entry.Level),
		entry.Message, entry.RepositoryName, entry.Details,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return model.LogEntry{}, fmt.Errorf("append log to job %s: %w", jobID, driven.ErrJobNotFound)
		}
		return model.LogEntry{}, fmt.Errorf("append log to job %s: %w", jobID, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE mirror_jobs SET updated_at = ? WHERE id = ?`,
		formatTime(entry.Timestamp), jobID); err != nil {
		return model.LogEntry{}, fmt.Errorf("touch job %s: %w", jobID, err)
	}

	return entry, nil
}

func scanJob(row rowScanner) (*model.MirrorJob, error) {
	var (
		job                    model.MirrorJob
		status                 string
		startedAt, completedAt sql.NullString
		createdAt, updatedAt   string
	)

	err := row.Scan(&job.ID, &job.ConfigID, &job.RepositoryID, &status,
		&startedAt, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	if job.StartedAt, err = parseNullableTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if job.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &job, nil
}
