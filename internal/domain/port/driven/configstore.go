package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
)

var (
	// ErrConfigNotFound indicates the requested configuration does not exist.
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrEncryptionKeyNotSet is returned when tokens must be stored or read
	// but GITMIRROR_SECRET_KEY has not been configured.
	ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set GITMIRROR_SECRET_KEY")
)

// ConfigStore defines the driven port for configuration persistence. Tokens
// cross this boundary in plaintext; the adapter encrypts them at rest.
type ConfigStore interface {
	// Save inserts or replaces a configuration by id.
	Save(ctx context.Context, cfg model.Configuration) error
	// Get returns a configuration by id, or ErrConfigNotFound.
	Get(ctx context.Context, id string) (*model.Configuration, error)
	// GetActiveForUser returns the active configuration of a user, or ErrConfigNotFound.
	GetActiveForUser(ctx context.Context, userID string) (*model.Configuration, error)
	// List returns every configuration ordered by name.
	List(ctx context.Context) ([]model.Configuration, error)
	// ListDue returns active configurations whose schedule is enabled and due at now.
	ListDue(ctx context.Context, now time.Time) ([]model.Configuration, error)
	// RecordRun stores the last and next scheduled run times.
	RecordRun(ctx context.Context, id string, lastRun, nextRun time.Time) error
}
