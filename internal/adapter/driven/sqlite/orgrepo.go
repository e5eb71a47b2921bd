package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.OrganizationStore = (*OrgRepo)(nil)

// OrgRepo is the SQLite implementation of the OrganizationStore port interface.
type OrgRepo struct {
	db *DB
}

// NewOrgRepo creates a new OrgRepo backed by the given DB.
func NewOrgRepo(db *DB) *OrgRepo {
	return &OrgRepo{db: db}
}

const orgColumns = `id, config_id, name, type, avatar_url, description, is_included,
	repository_count, created_at, updated_at`

// Upsert inserts or updates an organization keyed by (config_id, name). The
// is_included toggle of an existing row is preserved.
func (r *OrgRepo) Upsert(ctx context.Context, org model.Organization) (model.Organization, error) {
	const query = `
		INSERT INTO organizations (` + orgColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(config_id, name) DO UPDATE SET
			type = excluded.type,
			avatar_url = excluded.avatar_url,
			description = excluded.description,
			repository_count = excluded.repository_count,
			updated_at = excluded.updated_at
	`

	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if org.Type == "" {
		org.Type = model.OrgTypeMember
	}
	now := time.Now().UTC()

	_, err := r.db.Writer.ExecContext(ctx, query,
		org.ID, org.ConfigID, org.Name, string(org.Type), org.AvatarURL, org.Description,
		boolToInt(org.IsIncluded), org.RepositoryCount, formatTime(now), formatTime(now),
	)
	if err != nil {
		return model.Organization{}, fmt.Errorf("upsert organization %s: %w", org.Name, err)
	}

	stored, err := r.getByName(ctx, r.db.Writer, org.ConfigID, org.Name)
	if err != nil {
		return model.Organization{}, err
	}
	if stored == nil {
		return model.Organization{}, fmt.Errorf("upsert organization %s: row missing after write", org.Name)
	}
	return *stored, nil
}

// GetByName returns nil, nil when the organization is unknown.
func (r *OrgRepo) GetByName(ctx context.Context, configID, name string) (*model.Organization, error) {
	return r.getByName(ctx, r.db.Reader, configID, name)
}

func (r *OrgRepo) getByName(ctx context.Context, conn *sql.DB, configID, name string) (*model.Organization, error) {
	const query = `SELECT ` + orgColumns + ` FROM organizations WHERE config_id = ? AND name = ?`

	org, err := scanOrg(conn.QueryRowContext(ctx, query, configID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization %s: %w", name, err)
	}
	return org, nil
}

// ListByConfig returns the organizations of a configuration ordered by name.
func (r *OrgRepo) ListByConfig(ctx context.Context, configID string) ([]model.Organization, error) {
	const query = `SELECT ` + orgColumns + ` FROM organizations WHERE config_id = ? ORDER BY name`

	rows, err := r.db.Reader.QueryContext(ctx, query, configID)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	orgs := []model.Organization{}
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, *org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}

	return orgs, nil
}

// SetIncluded flips the sync-scope toggle of an organization.
func (r *OrgRepo) SetIncluded(ctx context.Context, configID, name string, included bool) error {
	const query = `UPDATE organizations SET is_included = ?, updated_at = ? WHERE config_id = ? AND name = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, boolToInt(included), formatTime(time.Now()), configID, name)
	if err != nil {
		return fmt.Errorf("set organization %s included: %w", name, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("set organization %s included: %w", name, driven.ErrNotFound)
	}
	return nil
}

func scanOrg(row rowScanner) (*model.Organization, error) {
	var (
		org                  model.Organization
		orgType              string
		isIncluded           int
		createdAt, updatedAt string
	)

	err := row.Scan(
		&org.ID, &org.ConfigID, &org.Name, &orgType, &org.AvatarURL, &org.Description,
		&isIncluded, &org.RepositoryCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	org.Type = model.OrgType(orgType)
	org.IsIncluded = isIncluded == 1

	if org.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if org.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &org, nil
}
