package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ConfigStore = (*ConfigRepo)(nil)

// ConfigRepo is the SQLite implementation of the ConfigStore port interface.
// Source and destination tokens are encrypted with AES-256-GCM before write
// and decrypted after read; the remaining sub-config settings are stored as
// JSON records under the row's schema version.
type ConfigRepo struct {
	db     *DB
	sealer sealer
}

// NewConfigRepo creates a new ConfigRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable token storage (saving a token returns ErrEncryptionKeyNotSet).
func NewConfigRepo(db *DB, key []byte) *ConfigRepo {
	return &ConfigRepo{db: db, sealer: sealer{key: key}}
}

// githubSettings is the stored shape of model.GitHubConfig without the token.
type githubSettings struct {
	Username             string   `json:"username"`
	SkipForks            bool     `json:"skipForks"`
	PrivateRepositories  bool     `json:"privateRepositories"`
	MirrorIssues         bool     `json:"mirrorIssues"`
	MirrorStarred        bool     `json:"mirrorStarred"`
	MirrorOrganizations  bool     `json:"mirrorOrganizations"`
	OnlyMirrorOrgs       bool     `json:"onlyMirrorOrgs"`
	IncludeOrgs          []string `json:"includeOrgs"`
	ExcludeOrgs          []string `json:"excludeOrgs"`
	MirrorPublicOrgs     bool     `json:"mirrorPublicOrgs"`
	PublicOrgs           []string `json:"publicOrgs"`
	PreserveOrgStructure bool     `json:"preserveOrgStructure"`
	SkipStarredIssues    bool     `json:"skipStarredIssues"`
	SingleRepo           string   `json:"singleRepo,omitempty"`
}

// giteaSettings is the stored shape of model.GiteaConfig without the token.
type giteaSettings struct {
	URL             string `json:"url"`
	Organization    string `json:"organization,omitempty"`
	Visibility      string `json:"visibility"`
	StarredReposOrg string `json:"starredReposOrg"`
}

const configColumns = `id, user_id, name, is_active, version, github_settings, github_token,
	gitea_settings, gitea_token, include_patterns, exclude_patterns, schedule_enabled,
	schedule_interval_seconds, last_run, next_run, created_at, updated_at`

// Save inserts or replaces a configuration by id.
func (r *ConfigRepo) Save(ctx context.Context, cfg model.Configuration) error {
	const query = `
		INSERT INTO configurations (` + configColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			is_active = excluded.is_active,
			version = excluded.version,
			github_settings = excluded.github_settings,
			github_token = excluded.github_token,
			gitea_settings = excluded.gitea_settings,
			gitea_token = excluded.gitea_token,
			include_patterns = excluded.include_patterns,
			exclude_patterns = excluded.exclude_patterns,
			schedule_enabled = excluded.schedule_enabled,
			schedule_interval_seconds = excluded.schedule_interval_seconds,
			last_run = excluded.last_run,
			next_run = excluded.next_run,
			updated_at = excluded.updated_at
	`

	gh := cfg.GitHub
	githubJSON, err := json.Marshal(githubSettings{
		Username:             gh.Username,
		SkipForks:            gh.SkipForks,
		PrivateRepositories:  gh.PrivateRepositories,
		MirrorIssues:         gh.MirrorIssues,
		MirrorStarred:        gh.MirrorStarred,
		MirrorOrganizations:  gh.MirrorOrganizations,
		OnlyMirrorOrgs:       gh.OnlyMirrorOrgs,
		IncludeOrgs:          nonNil(gh.IncludeOrgs),
		ExcludeOrgs:          nonNil(gh.ExcludeOrgs),
		MirrorPublicOrgs:     gh.MirrorPublicOrgs,
		PublicOrgs:           nonNil(gh.PublicOrgs),
		PreserveOrgStructure: gh.PreserveOrgStructure,
		SkipStarredIssues:    gh.SkipStarredIssues,
		SingleRepo:           gh.SingleRepo,
	})
	if err != nil {
		return fmt.Errorf("marshal github settings: %w", err)
	}

	giteaJSON, err := json.Marshal(giteaSettings{
		URL:             cfg.Gitea.URL,
		Organization:    cfg.Gitea.Organization,
		Visibility:      string(cfg.Gitea.Visibility),
		StarredReposOrg: cfg.Gitea.StarredReposOrg,
	})
	if err != nil {
		return fmt.Errorf("marshal gitea settings: %w", err)
	}

	includeJSON, err := json.Marshal(nonNil(cfg.Include))
	if err != nil {
		return fmt.Errorf("marshal include patterns: %w", err)
	}
	excludeJSON, err := json.Marshal(nonNil(cfg.Exclude))
	if err != nil {
		return fmt.Errorf("marshal exclude patterns: %w", err)
	}

	githubToken, err := r.sealer.seal(gh.Token)
	if err != nil {
		return fmt.Errorf("seal github token for configuration %s: %w", cfg.ID, err)
	}
	giteaToken, err := r.sealer.seal(cfg.Gitea.Token)
	if err != nil {
		return fmt.Errorf("seal gitea token for configuration %s: %w", cfg.ID, err)
	}

	now := time.Now().UTC()
	createdAt := cfg.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		cfg.ID, cfg.UserID, cfg.Name, boolToInt(cfg.IsActive), cfg.Version,
		string(githubJSON), githubToken, string(giteaJSON), giteaToken,
		string(includeJSON), string(excludeJSON),
		boolToInt(cfg.Schedule.Enabled), int64(cfg.Schedule.Interval/time.Second),
		nullableTime(cfg.Schedule.LastRun), nullableTime(cfg.Schedule.NextRun),
		formatTime(createdAt), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("save configuration %s: %w", cfg.ID, err)
	}

	return nil
}

// Get returns a configuration by id, or ErrConfigNotFound.
func (r *ConfigRepo) Get(ctx context.Context, id string) (*model.Configuration, error) {
	query := `SELECT ` + configColumns + ` FROM configurations WHERE id = ?`

	cfg, err := r.scanConfig(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get configuration %s: %w", id, driven.ErrConfigNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get configuration %s: %w", id, err)
	}
	return cfg, nil
}

// GetActiveForUser returns the most recently updated active configuration of a user.
func (r *ConfigRepo) GetActiveForUser(ctx context.Context, userID string) (*model.Configuration, error) {
	query := `SELECT ` + configColumns + ` FROM configurations
		WHERE user_id = ? AND is_active = 1
		ORDER BY updated_at DESC
		LIMIT 1`

	cfg, err := r.scanConfig(r.db.Reader.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active configuration for user %s: %w", userID, driven.ErrConfigNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("active configuration for user %s: %w", userID, err)
	}
	return cfg, nil
}

// List returns every configuration ordered by name.
func (r *ConfigRepo) List(ctx context.Context) ([]model.Configuration, error) {
	query := `SELECT ` + configColumns + ` FROM configurations ORDER BY name, id`
	return r.queryConfigs(ctx, query)
}

// ListDue returns active configurations with an enabled schedule whose next
// run is unset or not after now.
func (r *ConfigRepo) ListDue(ctx context.Context, now time.Time) ([]model.Configuration, error) {
	query := `SELECT ` + configColumns + ` FROM configurations
		WHERE is_active = 1 AND schedule_enabled = 1
		  AND (next_run IS NULL OR next_run <= ?)
		ORDER BY name, id`
	return r.queryConfigs(ctx, query, formatTime(now))
}

// RecordRun stores the last and next scheduled run times.
func (r *ConfigRepo) RecordRun(ctx context.Context, id string, lastRun, nextRun time.Time) error {
	const query = `UPDATE configurations SET last_run = ?, next_run = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, formatTime(lastRun), formatTime(nextRun), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("record run for configuration %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("record run for configuration %s: %w", id, driven.ErrConfigNotFound)
	}
	return nil
}

func (r *ConfigRepo) queryConfigs(ctx context.Context, query string, args ...any) ([]model.Configuration, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query configurations: %w", err)
	}
	defer rows.Close()

	configs := []model.Configuration{}
	for rows.Next() {
		cfg, err := r.scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate configurations: %w", err)
	}

	return configs, nil
}

func (r *ConfigRepo) scanConfig(row rowScanner) (*model.Configuration, error) {
	var (
		cfg                                  model.Configuration
		isActive, scheduleEnabled            int
		intervalSeconds                      int64
		githubJSON, giteaJSON, includeJSON   string
		excludeJSON, githubToken, giteaToken string
		lastRun, nextRun                     sql.NullString
		createdAt, updatedAt                 string
	)

	err := row.Scan(
		&cfg.ID, &cfg.UserID, &cfg.Name, &isActive, &cfg.Version,
		&githubJSON, &githubToken, &giteaJSON, &giteaToken,
		&includeJSON, &excludeJSON, &scheduleEnabled, &intervalSeconds,
		&lastRun, &nextRun, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	var gh githubSettings
	if err := json.Unmarshal([]byte(githubJSON), &gh); err != nil {
		return nil, fmt.Errorf("unmarshal github settings for configuration %s: %w", cfg.ID, err)
	}
	var gt giteaSettings
	if err := json.Unmarshal([]byte(giteaJSON), &gt); err != nil {
		return nil, fmt.Errorf("unmarshal gitea settings for configuration %s: %w", cfg.ID, err)
	}
	if err := json.Unmarshal([]byte(includeJSON), &cfg.Include); err != nil {
		return nil, fmt.Errorf("unmarshal include patterns for configuration %s: %w", cfg.ID, err)
	}
	if err := json.Unmarshal([]byte(excludeJSON), &cfg.Exclude); err != nil {
		return nil, fmt.Errorf("unmarshal exclude patterns for configuration %s: %w", cfg.ID, err)
	}

	ghToken, err := r.sealer.open(githubToken)
	if err != nil {
		return nil, fmt.Errorf("open github token for configuration %s: %w", cfg.ID, err)
	}
	gtToken, err := r.sealer.open(giteaToken)
	if err != nil {
		return nil, fmt.Errorf("open gitea token for configuration %s: %w", cfg.ID, err)
	}

	cfg.IsActive = isActive == 1
	cfg.GitHub = model.GitHubConfig{
		Username:             gh.Username,
		Token:                ghToken,
		SkipForks:            gh.SkipForks,
		PrivateRepositories:  gh.PrivateRepositories,
		MirrorIssues:         gh.MirrorIssues,
		MirrorStarred:        gh.MirrorStarred,
		MirrorOrganizations:  gh.MirrorOrganizations,
		OnlyMirrorOrgs:       gh.OnlyMirrorOrgs,
		IncludeOrgs:          gh.IncludeOrgs,
		ExcludeOrgs:          gh.ExcludeOrgs,
		MirrorPublicOrgs:     gh.MirrorPublicOrgs,
		PublicOrgs:           gh.PublicOrgs,
		PreserveOrgStructure: gh.PreserveOrgStructure,
		SkipStarredIssues:    gh.SkipStarredIssues,
		SingleRepo:           gh.SingleRepo,
	}
	cfg.Gitea = model.GiteaConfig{
		URL:             gt.URL,
		Token:           gtToken,
		Organization:    gt.Organization,
		Visibility:      model.Visibility(gt.Visibility),
		StarredReposOrg: gt.StarredReposOrg,
	}
	cfg.Schedule.Enabled = scheduleEnabled == 1
	cfg.Schedule.Interval = time.Duration(intervalSeconds) * time.Second

	if cfg.Schedule.LastRun, err = parseNullableTime(lastRun); err != nil {
		return nil, fmt.Errorf("parse last_run for configuration %s: %w", cfg.ID, err)
	}
	if cfg.Schedule.NextRun, err = parseNullableTime(nextRun); err != nil {
		return nil, fmt.Errorf("parse next_run for configuration %s: %w", cfg.ID, err)
	}
	if cfg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for configuration %s: %w", cfg.ID, err)
	}
	if cfg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for configuration %s: %w", cfg.ID, err)
	}

	if err := cfg.Migrate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
