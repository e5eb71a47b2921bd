package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// Job log messages. Tests and operators match on these, keep them stable.
const (
	msgJobStarted       = "Mirror job started"
	msgBatchStarted     = "Starting mirroring process for %d repositories"
	msgBatchCompleted   = "Mirroring process completed. %d repositories mirrored, %d failed."
	msgMirrored         = "Successfully mirrored repository: %s"
	msgSynced           = "Successfully synced repository: %s"
	msgMirrorFailed     = "Failed to mirror repository: %s"
	msgRepoBusy         = "Skipped repository %s: another mirror operation is in progress"
	msgIssuesFailed     = "Replicated %d of %d issues for repository: %s"
	msgIssuesListFailed = "Could not fetch issues for repository: %s"
	msgCancelled        = "cancelled by user"
	msgInterrupted      = "Mirror job interrupted before completion"
)

func logEntry(level model.LogLevel, repo, format string, args ...any) model.LogEntry {
	return model.LogEntry{
		Level:          level,
		Message:        fmt.Sprintf(format, args...),
		RepositoryName: repo,
	}
}

// appendLog persists one job log entry and mirrors it to the process log.
// Store writes are detached from ctx so a cancelled job still records its
// final lines.
func appendLog(ctx context.Context, jobs driven.JobStore, jobID string, entry model.LogEntry) error {
	stored, err := jobs.AppendLog(context.WithoutCancel(ctx), jobID, entry)
	if err != nil {
		return fmt.Errorf("append log to job %s: %w", jobID, err)
	}
	emit(jobID, stored)
	return nil
}

// emit writes a job log entry to the process log at a matching level.
func emit(jobID string, e model.LogEntry) {
	level := slog.LevelInfo
	switch e.Level {
	case model.LogLevelWarning:
		level = slog.LevelWarn
	case model.LogLevelError:
		level = slog.LevelError
	}

	attrs := []any{"job", jobID, "seq", e.Sequence}
	if e.RepositoryName != "" {
		attrs = append(attrs, "repo", e.RepositoryName)
	}
	if e.Details != "" {
		attrs = append(attrs, "details", e.Details)
	}
	slog.Log(context.Background(), level, e.Message, attrs...)
}
