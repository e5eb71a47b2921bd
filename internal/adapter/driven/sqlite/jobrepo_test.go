package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

func TestJobRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	seedConfig(t, db, "cfg-1")
	repo := NewJobRepo(db)
	ctx := context.Background()

	err := repo.Create(ctx, model.MirrorJob{
		ID:       "job-1",
		ConfigID: "cfg-1",
		Log:      []model.LogEntry{{Level: model.LogLevelInfo, Message: "Mirror job started"}},
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	require.Len(t, got.Log, 1)
	assert.Equal(t, 1, got.Log[0].Sequence)
	assert.Equal(t, "Mirror job started", got.Log[0].Message)
	assert.False(t, got.Log[0].Timestamp.IsZero())
}

func TestJobRepo_Get_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, driven.ErrJobNotFound)

	_, err = repo.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, driven.ErrJobNotFound)
}

func TestJobRepo_AppendLog_OrderAndClamp(t *testing.T) {
	db := setupTestDB(t)
	seedConfig(t, db, "cfg-1")
	repo := NewJobRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, model.MirrorJob{ID: "job-1", ConfigID: "cfg-1"}))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := repo.AppendLog(ctx, "job-1", model.LogEntry{Timestamp: base, Message: "first"})
	require.NoError(t, err)

	stored, err := repo.AppendLog(ctx, "job-1", model.LogEntry{Timestamp: base.Add(-time.Hour), Message: "skewed"})
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Sequence)
	assert.True(t, base.Equal(stored.Timestamp), "timestamp must be clamped to the previous entry")

	_, err = repo.AppendLog(ctx, "job-1", model.LogEntry{Timestamp: base.Add(time.Second), Message: "third"})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, got.Log, 3)
	for i, entry := range got.Log {
		assert.Equal(t, i+1, entry.Sequence)
		if i > 0 {
			assert.False(t, entry.Timestamp.Before(got.Log[i-1].Timestamp))
		}
	}
	assert.Equal(t, []string{"first", "skewed", "third"},
		[]string{got.Log[0].Message, got.Log[1].Message, got.Log[2].Message})
	assert.Equal(t, model.LogLevelInfo, got.Log[0].Level)
}

func TestJobRepo_AppendLog_UnknownJob(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)

	_, err := repo.AppendLog(context.Background(), "missing", model.LogEntry{Message: "x"})
	assert.ErrorIs(t, err, driven.ErrJobNotFound)
}

func TestJobRepo_RecordOutcome(t *testing.T) {
	db := setupTestDB(t)
	seedConfig(t, db, "cfg-1")
	repos := NewRepoRepo(db)
	repo := NewJobRepo(db)
	ctx := context.Background()

	require.NoError(t, repos.Insert(ctx, makeRepo("r1", "octocat/hello-world")))
	require.NoError(t, repo.Create(ctx, model.MirrorJob{ID: "job-1", ConfigID: "cfg-1"}))

	_, err := repo.RecordOutcome(ctx, "job-1",
		model.LogEntry{Level: model.LogLevelError, Message: "Failed to mirror repository: hello-world", Details: "boom"},
		driven.RepoOutcome{RepositoryID: "r1", Status: model.RepoStatusFailed, ErrorMessage: "boom"},
	)
	require.NoError(t, err)

	r, err := repos.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.RepoStatusFailed, r.Status)
	assert.Equal(t, "boom", r.ErrorMessage)

	job, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	last, ok := job.LastEntry()
	require.True(t, ok)
	assert.Equal(t, model.LogLevelError, last.Level)
	assert.Equal(t, "boom", last.Details)
}

func TestJobRepo_RecordOutcome_RollsBackOnMissingRepo(t *testing.T) {
	db := setupTestDB(t)
	seedConfig(t, db, "cfg-1")
	repo := NewJobRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, model.MirrorJob{ID: "job-1", ConfigID: "cfg-1"}))

	_, err := repo.RecordOutcome(ctx, "job-1",
		model.LogEntry{Message: "Successfully mirrored repository: ghost"},
		driven.RepoOutcome{RepositoryID: "ghost", Status: model.RepoStatusMirrored},
	)
	assert.ErrorIs(t, err, driven.ErrRepoNotFound)

	job, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, job.Log, "log entry must not be written when the status update fails")
}

func TestJobRepo_Transition(t *testing.T) {
	db := setupTestDB(t)
	seedConfig(t, db, "cfg-1")
	repo := NewJobRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, model.MirrorJob{ID: "job-1", ConfigID: "cfg-1"}))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok, err := repo.Transition(ctx, "job-1", []model.JobStatus{model.JobStatusPending}, model.JobStatusRunning, at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(ctx, "job-1", []model.JobStatus{model.JobStatusPending}, model.JobStatusRunning, at)
	require.NoError(t, err)
	assert.False(t, ok, "second transition from pending must lose")

	done := at.Add(time.Minute)
	ok, err = repo.Transition(ctx, "job-1",
		[]model.JobStatus{model.JobStatusPending, model.JobStatusRunning}, model.JobStatusCompleted, done)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(ctx, "job-1",
		[]model.JobStatus{model.JobStatusPending, model.JobStatusRunning}, model.JobStatusFailed, done)
	require.NoError(t, err)
	assert.False(t, ok, "terminal jobs must not be overwritten")

	job, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	assert.True(t, at.Equal(*job.StartedAt))
	assert.True(t, done.Equal(*job.CompletedAt))

	_, err = repo.Transition(ctx, "missing", []model.JobStatus{model.JobStatusPending}, model.JobStatusRunning, at)
	assert.ErrorIs(t, err, driven.ErrJobNotFound)
}

func TestJobRepo_ListByConfig_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	seedConfig(t, db, "cfg-1")
	repo := NewJobRepo(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, model.MirrorJob{ID: "old", ConfigID: "cfg-1", CreatedAt: base}))
	require.NoError(t, repo.Create(ctx, model.MirrorJob{ID: "new", ConfigID: "cfg-1", CreatedAt: base.Add(time.Hour)}))

	got, err := repo.ListByConfig(ctx, "cfg-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "old", got[1].ID)
}
