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
var _ driven.RepositoryStore = (*RepoRepo)(nil)

// RepoRepo is the SQLite implementation of the RepositoryStore port interface.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

const repoColumns = `id, config_id, full_name, name, owner, organization, description, url,
	clone_url, is_private, is_fork, has_issues, is_starred, status, last_mirrored,
	error_message, created_at, updated_at`

// Insert adds a new repository. Returns ErrRepoAlreadyExists if a repository
// with the same full_name already exists under the configuration.
func (r *RepoRepo) Insert(ctx context.Context, repo model.Repository) error {
	const query = `INSERT INTO repositories (` + repoColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	createdAt := repo.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	status := repo.Status
	if status == "" {
		status = model.RepoStatusPending
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		repo.ID, repo.ConfigID, repo.FullName, repo.Name, repo.Owner, repo.Organization,
		repo.Description, repo.URL, repo.CloneURL,
		boolToInt(repo.IsPrivate), boolToInt(repo.IsFork), boolToInt(repo.HasIssues), boolToInt(repo.IsStarred),
		string(status), nullableTime(repo.LastMirrored), repo.ErrorMessage,
		formatTime(createdAt), formatTime(now),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("insert repository %s: %w", repo.FullName, driven.ErrRepoAlreadyExists)
		}
		return fmt.Errorf("insert repository %s: %w", repo.FullName, err)
	}

	return nil
}

// UpdateDescriptive updates the source-derived fields of an existing repository,
// matched by (config_id, full_name). Mirror status fields are never written here.
func (r *RepoRepo) UpdateDescriptive(ctx context.Context, repo model.Repository) error {
	const query = `
		UPDATE repositories SET
			name = ?, owner = ?, organization = ?, description = ?, url = ?, clone_url = ?,
			is_private = ?, is_fork = ?, has_issues = ?, is_starred = ?, updated_at = ?
		WHERE config_id = ? AND full_name = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		repo.Name, repo.Owner, repo.Organization, repo.Description, repo.URL, repo.CloneURL,
		boolToInt(repo.IsPrivate), boolToInt(repo.IsFork), boolToInt(repo.HasIssues), boolToInt(repo.IsStarred),
		formatTime(time.Now()), repo.ConfigID, repo.FullName,
	)
	if err != nil {
		return fmt.Errorf("update repository %s: %w", repo.FullName, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update repository %s: %w", repo.FullName, driven.ErrRepoNotFound)
	}

	return nil
}

// Get returns a repository by id, or ErrRepoNotFound.
func (r *RepoRepo) Get(ctx context.Context, id string) (*model.Repository, error) {
	const query = `SELECT ` + repoColumns + ` FROM repositories WHERE id = ?`

	repo, err := scanRepo(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get repository %s: %w", id, driven.ErrRepoNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", id, err)
	}
	return repo, nil
}

// GetByFullName retrieves a repository by configuration and full name. Returns
// nil, nil if the repository does not exist.
func (r *RepoRepo) GetByFullName(ctx context.Context, configID, fullName string) (*model.Repository, error) {
	const query = `SELECT ` + repoColumns + ` FROM repositories WHERE config_id = ? AND full_name = ?`

	repo, err := scanRepo(r.db.Reader.QueryRowContext(ctx, query, configID, fullName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", fullName, err)
	}
	return repo, nil
}

// ListByConfig returns all repositories of a configuration ordered by full_name.
func (r *RepoRepo) ListByConfig(ctx context.Context, configID string) ([]model.Repository, error) {
	const query = `SELECT ` + repoColumns + ` FROM repositories WHERE config_id = ? ORDER BY full_name`

	rows, err := r.db.Reader.QueryContext(ctx, query, configID)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	repos := []model.Repository{}
	for rows.Next() {
		repo, err := scanRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

// Claim moves a repository into mirroring or syncing, whichever its stored
// status calls for, unless another operation holds it. The read and the
// conditional update run in one writer transaction, so two concurrent claims
// cannot both succeed.
func (r *RepoRepo) Claim(ctx context.Context, id string) (model.RepoStatus, error) {
	var previous model.RepoStatus

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM repositories WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("claim repository %s: %w", id, driven.ErrRepoNotFound)
		}
		if err != nil {
			return fmt.Errorf("claim repository %s: %w", id, err)
		}

		previous = model.RepoStatus(current)
		if previous.IsBusy() {
			return fmt.Errorf("claim repository %s (status %s): %w", id, previous, driven.ErrRepoBusy)
		}

		const update = `UPDATE repositories SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
		result, err := tx.ExecContext(ctx, update, string(previous.ClaimTarget()), formatTime(time.Now()), id, current)
		if err != nil {
			return fmt.Errorf("claim repository %s: %w", id, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("claim repository %s: %w", id, driven.ErrRepoBusy)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return previous, nil
}

// applyOutcome writes a mirror outcome inside an existing transaction.
func applyOutcome(ctx context.Context, tx *sql.Tx, outcome driven.RepoOutcome) error {
	const query = `
		UPDATE repositories SET
			status = ?,
			last_mirrored = COALESCE(?, last_mirrored),
			error_message = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := tx.ExecContext(ctx, query,
		string(outcome.Status), nullableTime(outcome.LastMirrored), outcome.ErrorMessage,
		formatTime(time.Now()), outcome.RepositoryID,
	)
	if err != nil {
		return fmt.Errorf("update repository status %s: %w", outcome.RepositoryID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update repository status %s: %w", outcome.RepositoryID, driven.ErrRepoNotFound)
	}
	return nil
}

func scanRepo(row rowScanner) (*model.Repository, error) {
	var (
		repo                                    model.Repository
		isPrivate, isFork, hasIssues, isStarred int
		status, createdAt, updatedAt            string
		lastMirrored                            sql.NullString
	)

	err := row.Scan(
		&repo.ID, &repo.ConfigID, &repo.FullName, &repo.Name, &repo.Owner, &repo.Organization,
		&repo.Description, &repo.URL, &repo.CloneURL,
		&isPrivate, &isFork, &hasIssues, &isStarred,
		&status, &lastMirrored, &repo.ErrorMessage, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	repo.IsPrivate = isPrivate == 1
	repo.IsFork = isFork == 1
	repo.HasIssues = hasIssues == 1
	repo.IsStarred = isStarred == 1
	repo.Status = model.RepoStatus(status)

	if repo.LastMirrored, err = parseNullableTime(lastMirrored); err != nil {
		return nil, fmt.Errorf("parse last_mirrored: %w", err)
	}
	if repo.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if repo.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &repo, nil
}
