package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// MirrorResult is the outcome of one MirrorOne call.
type MirrorResult struct {
	Repository    string
	Status        model.RepoStatus // Final status; empty when the claim failed.
	Err           error
	IssuesCreated int
	IssuesFailed  int
}

// Succeeded reports whether the repository reached mirrored or synced.
func (r MirrorResult) Succeeded() bool {
	return r.Err == nil
}

// MirrorService mirrors single repositories into the destination forge and
// records each outcome in the repository row and the job log.
type MirrorService struct {
	repos       driven.RepositoryStore
	jobs        driven.JobStore
	clients     *ClientProvider
	callTimeout time.Duration
	now         func() time.Time
}

// NewMirrorService creates a MirrorService.
func NewMirrorService(
	repos driven.RepositoryStore,
	jobs driven.JobStore,
	clients *ClientProvider,
	callTimeout time.Duration,
) *MirrorService {
	return &MirrorService{
		repos:       repos,
		jobs:        jobs,
		clients:     clients,
		callTimeout: callTimeout,
		now:         time.Now,
	}
}

// MirrorOne mirrors one repository, or refreshes it when a mirror already
// exists. Provider failures are isolated into the result; the returned error
// is non-nil only when the job log itself could not be written.
func (s *MirrorService) MirrorOne(ctx context.Context, cfg model.Configuration, repo model.Repository, jobID string) (MirrorResult, error) {
	result := MirrorResult{Repository: repo.FullName}
	store := context.WithoutCancel(ctx)

	// repo may have been loaded before another job changed it; the store
	// picks mirroring or syncing from the status it holds.
	prev, err := s.repos.Claim(store, repo.ID)
	if errors.Is(err, driven.ErrRepoBusy) {
		result.Err = err
		return result, appendLog(ctx, s.jobs, jobID, logEntry(model.LogLevelWarning, repo.FullName, msgRepoBusy, repo.FullName))
	}
	if err != nil {
		result.Err = err
		entry := logEntry(model.LogLevelError, repo.FullName, msgMirrorFailed, repo.FullName)
		entry.Details = err.Error()
		return result, appendLog(ctx, s.jobs, jobID, entry)
	}

	status, err := s.mirror(ctx, cfg, repo, prev.HasMirror(), jobID, &result)
	if err != nil {
		result.Err = err
		return result, s.recordFailure(store, jobID, repo, err)
	}

	result.Status = status
	now := s.now()
	msg := msgMirrored
	if status == model.RepoStatusSynced {
		msg = msgSynced
	}
	stored, err := s.jobs.RecordOutcome(store, jobID,
		logEntry(model.LogLevelSuccess, repo.FullName, msg, repo.FullName),
		driven.RepoOutcome{RepositoryID: repo.ID, Status: status, LastMirrored: &now},
	)
	if err != nil {
		return result, fmt.Errorf("record outcome of %s: %w", repo.FullName, err)
	}
	emit(jobID, stored)
	return result, nil
}

// mirror performs the provider calls and returns the status to record. Issue
// replication problems are logged as warnings and never fail the repository.
func (s *MirrorService) mirror(ctx context.Context, cfg model.Configuration, repo model.Repository, hasMirror bool, jobID string, result *MirrorResult) (model.RepoStatus, error) {
	dest, err := s.destination(ctx, cfg)
	if err != nil {
		return "", err
	}

	owner := ResolveDestination(repo, cfg)
	if owner != "" {
		callCtx, cancel := withCallTimeout(ctx, s.callTimeout)
		_, err := dest.EnsureOrganization(callCtx, owner, cfg.Gitea.Visibility)
		cancel()
		if err != nil {
			return "", err
		}
	}

	// A failed or pending repository may still have a mirror on the
	// destination, left by an earlier run or a migration that outlived its
	// call timeout. It is refreshed rather than migrated again.
	synced, err := s.resync(ctx, dest, owner, repo)
	if err != nil {
		return "", err
	}
	switch {
	case synced && hasMirror:
		return model.RepoStatusSynced, nil
	case synced:
		slog.Info("adopted existing destination mirror", "repo", repo.FullName, "owner", owner)
		return model.RepoStatusMirrored, nil
	case hasMirror:
		slog.Info("destination mirror missing, mirroring again", "repo", repo.FullName, "owner", owner)
	}

	callCtx, cancel := withCallTimeout(ctx, s.callTimeout)
	created, err := dest.MirrorRepository(callCtx, model.MirrorRequest{
		CloneURL:    repo.CloneURL,
		Name:        repo.Name,
		Owner:       owner,
		Description: repo.Description,
		IsPrivate:   repo.IsPrivate,
		AuthToken:   cfg.GitHub.Token,
	})
	cancel()
	if err != nil {
		return "", err
	}

	if wantsIssues(cfg, repo) {
		issueOwner := created.Owner
		if issueOwner == "" {
			issueOwner = owner
		}
		if err := s.replicateIssues(ctx, cfg, dest, repo, issueOwner, created.Name, jobID, result); err != nil {
			return "", err
		}
	}

	return model.RepoStatusMirrored, nil
}

// resync refreshes the destination mirror of repo. It reports false when no
// repository of that name exists and a mirror must be created, and fails with
// ErrConflict when one exists that is not a mirror.
func (s *MirrorService) resync(ctx context.Context, dest driven.DestinationProvider, owner string, repo model.Repository) (bool, error) {
	if owner == "" {
		callCtx, cancel := withCallTimeout(ctx, s.callTimeout)
		me, err := dest.TestConnection(callCtx)
		cancel()
		if err != nil {
			return false, err
		}
		owner = me.Login
	}

	callCtx, cancel := withCallTimeout(ctx, s.callTimeout)
	existing, err := dest.GetRepository(callCtx, owner, repo.Name)
	cancel()
	if errors.Is(err, driven.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !existing.IsMirror {
		return false, fmt.Errorf("%w: %s/%s exists and is not a mirror", driven.ErrConflict, owner, repo.Name)
	}

	callCtx, cancel = withCallTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := dest.SyncMirror(callCtx, owner, repo.Name); err != nil {
		return false, err
	}
	return true, nil
}

// replicateIssues copies every source issue, continuing past individual
// failures. Only a failure to write the job log is returned.
func (s *MirrorService) replicateIssues(
	ctx context.Context,
	cfg model.Configuration,
	dest driven.DestinationProvider,
	repo model.Repository,
	owner, name, jobID string,
	result *MirrorResult,
) error {
	callCtx, cancel := withCallTimeout(ctx, s.callTimeout)
	issues, err := s.clients.Source(cfg).ListIssues(callCtx, repo.Owner, repo.Name)
	cancel()
	if err != nil {
		entry := logEntry(model.LogLevelWarning, repo.FullName, msgIssuesListFailed, repo.FullName)
		entry.Details = err.Error()
		return appendLog(ctx, s.jobs, jobID, entry)
	}

	var firstErr error
	for _, issue := range issues {
		if ctx.Err() != nil {
			firstErr = cmpErr(firstErr, ctx.Err())
			result.IssuesFailed += len(issues) - result.IssuesCreated - result.IssuesFailed
			break
		}

		callCtx, cancel := withCallTimeout(ctx, s.callTimeout)
		err := dest.CreateIssue(callCtx, owner, name, issue)
		cancel()
		if err != nil {
			firstErr = cmpErr(firstErr, err)
			result.IssuesFailed++
			slog.Debug("issue replication failed", "repo", repo.FullName, "issue", issue.Number, "error", err)
			continue
		}
		result.IssuesCreated++
	}

	if result.IssuesFailed == 0 {
		return nil
	}
	entry := logEntry(model.LogLevelWarning, repo.FullName, msgIssuesFailed, result.IssuesCreated, len(issues), repo.FullName)
	entry.Details = firstErr.Error()
	return appendLog(ctx, s.jobs, jobID, entry)
}

func (s *MirrorService) destination(ctx context.Context, cfg model.Configuration) (driven.DestinationProvider, error) {
	callCtx, cancel := withCallTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.clients.Destination(callCtx, cfg)
}

func (s *MirrorService) recordFailure(ctx context.Context, jobID string, repo model.Repository, cause error) error {
	entry := logEntry(model.LogLevelError, repo.FullName, msgMirrorFailed, repo.FullName)
	entry.Details = cause.Error()

	stored, err := s.jobs.RecordOutcome(ctx, jobID, entry, driven.RepoOutcome{
		RepositoryID: repo.ID,
		Status:       model.RepoStatusFailed,
		ErrorMessage: cause.Error(),
	})
	if err != nil {
		return fmt.Errorf("record failure of %s: %w", repo.FullName, err)
	}
	emit(jobID, stored)
	return nil
}

func wantsIssues(cfg model.Configuration, repo model.Repository) bool {
	return cfg.GitHub.MirrorIssues && repo.HasIssues && !(repo.IsStarred && cfg.GitHub.SkipStarredIssues)
}

func cmpErr(first, next error) error {
	if first != nil {
		return first
	}
	return next
}
