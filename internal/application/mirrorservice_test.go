package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

func seedJob(t *testing.T, h *harness, cfg model.Configuration) string {
	t.Helper()
	require.NoError(t, h.jobs.Create(context.Background(), model.MirrorJob{
		ID:       "job-1",
		ConfigID: cfg.ID,
		Status:   model.JobStatusRunning,
	}))
	return "job-1"
}

func jobLog(t *testing.T, h *harness, jobID string) []model.LogEntry {
	t.Helper()
	job, err := h.jobs.Get(context.Background(), jobID)
	require.NoError(t, err)
	return job.Log
}

func TestMirrorOne_StarredRepositoryGoesToStarredOrg(t *testing.T) {
	cfg := testConfig("cfg-1")
	cfg.GitHub.PreserveOrgStructure = true
	repo := storedRepo(cfg.ID, "r1", "acme/api", model.RepoStatusPending)
	repo.IsStarred = true
	repo.Organization = "acme"
	repo.IsPrivate = true

	h := newHarness(t, cfg, repo)
	jobID := seedJob(t, h, cfg)

	result, err := h.mirror.MirrorOne(context.Background(), cfg, repo, jobID)
	require.NoError(t, err)

	assert.True(t, result.Succeeded())
	assert.Equal(t, model.RepoStatusMirrored, result.Status)
	assert.Equal(t, []string{"github"}, h.dest.ensured)
	require.Len(t, h.dest.mirrored, 1)
	assert.Equal(t, model.MirrorRequest{
		CloneURL:  "https://github.com/acme/api.git",
		Name:      "api",
		Owner:     "github",
		IsPrivate: true,
		AuthToken: "ghp_source",
	}, h.dest.mirrored[0])

	stored := h.repos.byName("acme/api")
	assert.Equal(t, model.RepoStatusMirrored, stored.Status)
	assert.NotNil(t, stored.LastMirrored)
	assert.Empty(t, stored.ErrorMessage)

	log := jobLog(t, h, jobID)
	require.Len(t, log, 1)
	assert.Equal(t, model.LogLevelSuccess, log[0].Level)
	assert.Equal(t, "Successfully mirrored repository: acme/api", log[0].Message)
	assert.Equal(t, "acme/api", log[0].RepositoryName)
}

func TestMirrorOne_PersonalNamespaceSkipsOrganization(t *testing.T) {
	cfg := testConfig("cfg-1")
	cfg.Gitea.StarredReposOrg = ""
	repo := storedRepo(cfg.ID, "r1", "octocat/alpha", model.RepoStatusFailed)

	h := newHarness(t, cfg, repo)
	jobID := seedJob(t, h, cfg)

	result, err := h.mirror.MirrorOne(context.Background(), cfg, repo, jobID)
	require.NoError(t, err)

	assert.True(t, result.Succeeded())
	assert.Empty(t, h.dest.ensured)
	assert.Equal(t, []string{"/alpha"}, h.dest.mirroredNames())
}

func TestMirrorOne_ReplicatesIssuesPastFailures(t *testing.T) {
	cfg := testConfig("cfg-1")
	cfg.GitHub.MirrorIssues = true
	repo := storedRepo(cfg.ID, "r1", "octocat/alpha", model.RepoStatusPending)

	h := newHarness(t, cfg, repo)
	h.source.issues = map[string][]model.Issue{
		"octocat/alpha": {
			{Number: 1, Title: "first", Author: "alice"},
			{Number: 2, Title: "broken", Author: "bob"},
			{Number: 3, Title: "third", Author: "carol"},
		},
	}
	h.dest.issueErr = func(issue model.Issue) error {
		if issue.Number == 2 {
			return &driven.ProviderError{Kind: driven.ErrValidation, Op: "create issue", Err: errors.New("title rejected")}
		}
		return nil
	}
	jobID := seedJob(t, h, cfg)

	result, err := h.mirror.MirrorOne(context.Background(), cfg, repo, jobID)
	require.NoError(t, err)

	assert.True(t, result.Succeeded())
	assert.Equal(t, 2, result.IssuesCreated)
	assert.Equal(t, 1, result.IssuesFailed)
	assert.Equal(t, []string{"mirror-bot/alpha#first", "mirror-bot/alpha#third"}, h.dest.issues)

	log := jobLog(t, h, jobID)
	require.Len(t, log, 2)
	assert.Equal(t, model.LogLevelWarning, log[0].Level)
	assert.Equal(t, "Replicated 2 of 3 issues for repository: octocat/alpha", log[0].Message)
	assert.Contains(t, log[0].Details, "title rejected")
	assert.Equal(t, model.LogLevelSuccess, log[1].Level)
	assert.Equal(t, model.RepoStatusMirrored, h.repos.byName("octocat/alpha").Status)
}

func TestMirrorOne_SkipsIssuesOfStarredRepositories(t *testing.T) {
	cfg := testConfig("cfg-1")
	cfg.GitHub.MirrorIssues = true
	cfg.GitHub.SkipStarredIssues = true
	repo := storedRepo(cfg.ID, "r1", "torvalds/linux", model.RepoStatusPending)
	repo.IsStarred = true

	h := newHarness(t, cfg, repo)
	h.source.issues = map[string][]model.Issue{"torvalds/linux": {{Number: 1, Title: "bug"}}}
	jobID := seedJob(t, h, cfg)

	_, err := h.mirror.MirrorOne(context.Background(), cfg, repo, jobID)
	require.NoError(t, err)

	assert.Empty(t, h.dest.issues)
}

func TestMirrorOne_ResyncsExistingMirror(t *testing.T) {
	cfg := testConfig("cfg-1")
	cfg.GitHub.MirrorIssues = true
	repo := storedRepo(cfg.ID, "r1", "octocat/alpha", model.RepoStatusMirrored)

	h := newHarness(t, cfg, repo)
	h.dest.existing["mirror-bot/alpha"] = model.DestinationRepo{Owner: "mirror-bot", Name: "alpha", IsMirror: true}
	h.source.issues = map[string][]model.Issue{"octocat/alpha": {{Number: 1, Title: "bug"}}}
	jobID := seedJob(t, h, cfg)

	result, err := h.mirror.MirrorOne(context.Background(), cfg, repo, jobID)
	require.NoError(t, err)

	assert.Equal(t, model.RepoStatusSynced, result.Status)
	assert.Equal(t, []string{"mirror-bot/alpha"}, h.dest.synced)
	assert.Empty(t, h.dest.mirrored)
	assert.Empty(t, h.dest.issues, "issues are only replicated on the first mirror")
	assert.Equal(t, model.RepoStatusSynced, h.repos.byName("octocat/alpha").Status)
	assert.Equal(t, "Successfully synced repository: octocat/alpha", jobLog(t, h, jobID)[0].Message)
}

func TestMirrorOne_RecreatesMissingMirror(t *testing.T) {
	cfg := testConfig("cfg-1")
	repo := storedRepo(cfg.ID, "r1", "octocat/alpha", model.RepoStatusSynced)

	h := newHarness(t, cfg, repo)
	jobID := seedJob(t, h, cfg)

	result, err := h.mirror.MirrorOne(context.Background(), cfg, repo, jobID)
	require.NoError(t, err)

	assert.Equal(t, model.RepoStatusMirrored, result.Status)
	assert.Empty(t, h.dest.synced)
	assert.Len(t, h.dest.mirrored, 1)
}

func TestMirrorOne_BusyRepositoryIsSkipped(t *testing.T) {
	cfg := testConfig("cfg-1")
	repo := storedRepo(cfg.ID, "r1", "octocat/alpha", model.RepoStatusMirroring)

	h := newHarness(t, cfg, repo)
	jobID := seedJob(t, h, cfg)

	result, err := h.mirror.MirrorOne(context.Background(), cfg, repo, jobID)
	require.NoError(t, err)

	assert.False(t, result.Succeeded())
	assert.ErrorIs(t, result.Err, driven.ErrRepoBusy)
	assert.Empty(t, h.dest.mirrored)
	assert.Equal(t, model.RepoStatusMirroring, h.repos.byName("octocat/alpha").Status)

	log := jobLog(t, h, jobID)
	require.Len(t, log, 1)
	assert.Equal(t, model.LogLevelWarning, log[0].Level)
}

func TestMirrorOne_DestinationFailureIsIsolated(t *testing.T) {
	cfg := testConfig("cfg-1")
	repo := storedRepo(cfg.ID, "r1", "octocat/alpha", model.RepoStatusPending)

	h := newHarness(t, cfg, repo)
	h.dest.mirrorErr = map[string]error{
		"alpha": &driven.ProviderError{Kind: driven.ErrAuthentication, Op: "mirror", StatusCode: 401, Err: errors.New("bad token")},
	}
	jobID := seedJob(t, h, cfg)

	result, err := h.mirror.MirrorOne(context.Background(), cfg, repo, jobID)
	require.NoError(t, err)

	assert.False(t, result.Succeeded())
	assert.ErrorIs(t, result.Err, driven.ErrAuthentication)

	stored := h.repos.byName("octocat/alpha")
	assert.Equal(t, model.RepoStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "bad token")

	log := jobLog(t, h, jobID)
	require.Len(t, log, 1)
	assert.Equal(t, model.LogLevelError, log[0].Level)
	assert.Equal(t, "Failed to mirror repository: octocat/alpha", log[0].Message)
	assert.Equal(t, stored.ErrorMessage, log[0].Details)
}

func TestMirrorOne_LogFailureIsReturned(t *testing.T) {
	cfg := testConfig("cfg-1")
	repo := storedRepo(cfg.ID, "r1", "octocat/alpha", model.RepoStatusPending)

	h := newHarness(t, cfg, repo)
	jobID := seedJob(t, h, cfg)
	h.jobs.appendErr = errors.New("disk full")

	_, err := h.mirror.MirrorOne(context.Background(), cfg, repo, jobID)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestMirrorOne_FailedRepositoryAdoptsExistingMirror(t *testing.T) {
	cfg := testConfig("cfg-1")
	repo := storedRepo(cfg.ID, "r1", "octocat/alpha", model.RepoStatusPending)

	h := newHarness(t, cfg, repo)
	jobID := seedJob(t, h, cfg)
	ctx := context.Background()

	result, err := h.mirror.MirrorOne(ctx, cfg, h.repos.byName("octocat/alpha"), jobID)
	require.NoError(t, err)
	require.Equal(t, model.RepoStatusMirrored, result.Status)

	h.dest.syncErr = &driven.ProviderError{Kind: driven.ErrConnection, Op: "sync", Err: errors.New("timeout")}
	result, err = h.mirror.MirrorOne(ctx, cfg, h.repos.byName("octocat/alpha"), jobID)
	require.NoError(t, err)
	require.ErrorIs(t, result.Err, driven.ErrConnection)
	require.Equal(t, model.RepoStatusFailed, h.repos.byName("octocat/alpha").Status)

	h.dest.syncErr = nil
	result, err = h.mirror.MirrorOne(ctx, cfg, h.repos.byName("octocat/alpha"), jobID)
	require.NoError(t, err)

	assert.True(t, result.Succeeded())
	assert.Equal(t, model.RepoStatusMirrored, result.Status)
	assert.Len(t, h.dest.mirrored, 1, "the existing mirror is not migrated again")
	assert.Equal(t, []string{"mirror-bot/alpha"}, h.dest.synced)

	stored := h.repos.byName("octocat/alpha")
	assert.Equal(t, model.RepoStatusMirrored, stored.Status)
	assert.Empty(t, stored.ErrorMessage)
}

func TestMirrorOne_ExistingNonMirrorRepositoryConflicts(t *testing.T) {
	cfg := testConfig("cfg-1")
	repo := storedRepo(cfg.ID, "r1", "octocat/alpha", model.RepoStatusPending)

	h := newHarness(t, cfg, repo)
	h.dest.existing["mirror-bot/alpha"] = model.DestinationRepo{Owner: "mirror-bot", Name: "alpha"}
	jobID := seedJob(t, h, cfg)

	result, err := h.mirror.MirrorOne(context.Background(), cfg, repo, jobID)
	require.NoError(t, err)

	assert.ErrorIs(t, result.Err, driven.ErrConflict)
	assert.Empty(t, h.dest.mirrored)
	assert.Empty(t, h.dest.synced)
	assert.Equal(t, model.RepoStatusFailed, h.repos.byName("octocat/alpha").Status)
}

func TestMirrorOne_ClaimFollowsStoredStatus(t *testing.T) {
	cfg := testConfig("cfg-1")
	stored := storedRepo(cfg.ID, "r1", "octocat/alpha", model.RepoStatusMirrored)

	h := newHarness(t, cfg, stored)
	h.dest.existing["mirror-bot/alpha"] = model.DestinationRepo{Owner: "mirror-bot", Name: "alpha", IsMirror: true}
	jobID := seedJob(t, h, cfg)

	stale := stored
	stale.Status = model.RepoStatusPending

	result, err := h.mirror.MirrorOne(context.Background(), cfg, stale, jobID)
	require.NoError(t, err)

	assert.Equal(t, []string{"mirrored->syncing"}, h.repos.claims)
	assert.Equal(t, model.RepoStatusSynced, result.Status)
	assert.Empty(t, h.dest.mirrored)
}
