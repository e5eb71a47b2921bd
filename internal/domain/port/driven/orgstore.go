package driven

import (
	"context"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
)

// OrganizationStore defines the driven port for organization persistence.
type OrganizationStore interface {
	// Upsert inserts or updates an organization keyed by (config_id, name).
	// An existing row keeps its IsIncluded toggle. The stored row is returned.
	Upsert(ctx context.Context, org model.Organization) (model.Organization, error)
	// GetByName returns nil, nil when the organization is unknown.
	GetByName(ctx context.Context, configID, name string) (*model.Organization, error)
	// ListByConfig returns organizations ordered by name.
	ListByConfig(ctx context.Context, configID string) ([]model.Organization, error)
	// SetIncluded flips the sync-scope toggle.
	SetIncluded(ctx context.Context, configID, name string, included bool) error
}
