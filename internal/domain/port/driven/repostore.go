package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
)

// Sentinel errors returned by RepositoryStore implementations.
var (
	// ErrRepoNotFound indicates the requested repository does not exist.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrRepoAlreadyExists indicates a repository with the same full name
	// already exists under the configuration.
	ErrRepoAlreadyExists = errors.New("repository already exists")

	// ErrRepoBusy indicates another mirror operation currently owns the repository.
	ErrRepoBusy = errors.New("repository is busy")
)

// RepositoryStore defines the driven port for repository persistence.
// Repositories are never deleted by the core.
type RepositoryStore interface {
	// Insert adds a new repository. Returns ErrRepoAlreadyExists on a
	// (config_id, full_name) collision.
	Insert(ctx context.Context, repo model.Repository) error
	// UpdateDescriptive updates source-derived fields only; status,
	// last_mirrored and error_message are left untouched.
	UpdateDescriptive(ctx context.Context, repo model.Repository) error
	// Get returns a repository by id, or ErrRepoNotFound.
	Get(ctx context.Context, id string) (*model.Repository, error)
	// GetByFullName returns nil, nil when the repository does not exist.
	GetByFullName(ctx context.Context, configID, fullName string) (*model.Repository, error)
	// ListByConfig returns the repositories of a configuration ordered by full name.
	ListByConfig(ctx context.Context, configID string) ([]model.Repository, error)
	// Claim atomically moves the repository into the busy status chosen by
	// RepoStatus.ClaimTarget from its stored status. It returns ErrRepoBusy if
	// the repository is already mirroring or syncing, and the status it held
	// before the claim otherwise.
	Claim(ctx context.Context, id string) (model.RepoStatus, error)
}
