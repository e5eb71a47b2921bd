package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// fileConfig is the on-disk shape of a mirror configuration. Keys follow the
// camelCase names of the stored record.
type fileConfig struct {
	ID       string       `yaml:"id" toml:"id"`
	UserID   string       `yaml:"userId" toml:"userId"`
	Name     string       `yaml:"name" toml:"name"`
	IsActive *bool        `yaml:"isActive" toml:"isActive"`
	GitHub   fileGitHub   `yaml:"github" toml:"github"`
	Gitea    fileGitea    `yaml:"gitea" toml:"gitea"`
	Include  []string     `yaml:"include" toml:"include"`
	Exclude  []string     `yaml:"exclude" toml:"exclude"`
	Schedule fileSchedule `yaml:"schedule" toml:"schedule"`
}

type fileGitHub struct {
	Username             string   `yaml:"username" toml:"username"`
	Token                string   `yaml:"token" toml:"token"`
	SkipForks            bool     `yaml:"skipForks" toml:"skipForks"`
	PrivateRepositories  bool     `yaml:"privateRepositories" toml:"privateRepositories"`
	MirrorIssues         bool     `yaml:"mirrorIssues" toml:"mirrorIssues"`
	MirrorStarred        bool     `yaml:"mirrorStarred" toml:"mirrorStarred"`
	MirrorOrganizations  bool     `yaml:"mirrorOrganizations" toml:"mirrorOrganizations"`
	OnlyMirrorOrgs       bool     `yaml:"onlyMirrorOrgs" toml:"onlyMirrorOrgs"`
	IncludeOrgs          []string `yaml:"includeOrgs" toml:"includeOrgs"`
	ExcludeOrgs          []string `yaml:"excludeOrgs" toml:"excludeOrgs"`
	MirrorPublicOrgs     bool     `yaml:"mirrorPublicOrgs" toml:"mirrorPublicOrgs"`
	PublicOrgs           []string `yaml:"publicOrgs" toml:"publicOrgs"`
	PreserveOrgStructure bool     `yaml:"preserveOrgStructure" toml:"preserveOrgStructure"`
	SkipStarredIssues    bool     `yaml:"skipStarredIssues" toml:"skipStarredIssues"`
	SingleRepo           string   `yaml:"singleRepo" toml:"singleRepo"`
}

type fileGitea struct {
	URL             string `yaml:"url" toml:"url"`
	Token           string `yaml:"token" toml:"token"`
	Organization    string `yaml:"organization" toml:"organization"`
	Visibility      string `yaml:"visibility" toml:"visibility"`
	StarredReposOrg string `yaml:"starredReposOrg" toml:"starredReposOrg"`
}

type fileSchedule struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Interval string `yaml:"interval" toml:"interval"` // Go duration, e.g. "6h".
}

// LoadConfigurationFile reads a mirror configuration from a .yaml, .yml or
// .toml file. Unknown keys are rejected. Token values may reference
// environment variables as $VAR or ${VAR}. The result has defaults applied
// and is validated; its ID is empty unless the file sets one.
func LoadConfigurationFile(path string) (model.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Configuration{}, fmt.Errorf("reading configuration file: %w", err)
	}

	var raw fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &raw)
	case ".toml":
		err = decodeTOML(data, &raw)
	default:
		return model.Configuration{}, fmt.Errorf("%w: unsupported configuration file extension %q", driven.ErrValidation, ext)
	}
	if err != nil {
		return model.Configuration{}, fmt.Errorf("%w: parsing %s: %w", driven.ErrValidation, path, err)
	}

	cfg, err := raw.toModel()
	if err != nil {
		return model.Configuration{}, fmt.Errorf("%w: %s: %w", driven.ErrValidation, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return model.Configuration{}, fmt.Errorf("%w: %s: %w", driven.ErrValidation, path, err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, raw *fileConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(raw); err != nil {
		return err
	}
	return nil
}

func decodeTOML(data []byte, raw *fileConfig) error {
	meta, err := toml.Decode(string(data), raw)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func (f fileConfig) toModel() (model.Configuration, error) {
	cfg := model.Configuration{
		ID:       strings.TrimSpace(f.ID),
		UserID:   strings.TrimSpace(f.UserID),
		Name:     strings.TrimSpace(f.Name),
		IsActive: f.IsActive == nil || *f.IsActive,
		GitHub: model.GitHubConfig{
			Username:             f.GitHub.Username,
			Token:                os.ExpandEnv(f.GitHub.Token),
			SkipForks:            f.GitHub.SkipForks,
			PrivateRepositories:  f.GitHub.PrivateRepositories,
			MirrorIssues:         f.GitHub.MirrorIssues,
			MirrorStarred:        f.GitHub.MirrorStarred,
			MirrorOrganizations:  f.GitHub.MirrorOrganizations,
			OnlyMirrorOrgs:       f.GitHub.OnlyMirrorOrgs,
			IncludeOrgs:          f.GitHub.IncludeOrgs,
			ExcludeOrgs:          f.GitHub.ExcludeOrgs,
			MirrorPublicOrgs:     f.GitHub.MirrorPublicOrgs,
			PublicOrgs:           f.GitHub.PublicOrgs,
			PreserveOrgStructure: f.GitHub.PreserveOrgStructure,
			SkipStarredIssues:    f.GitHub.SkipStarredIssues,
			SingleRepo:           strings.TrimSpace(f.GitHub.SingleRepo),
		},
		Gitea: model.GiteaConfig{
			URL:             strings.TrimRight(strings.TrimSpace(f.Gitea.URL), "/"),
			Token:           os.ExpandEnv(f.Gitea.Token),
			Organization:    strings.TrimSpace(f.Gitea.Organization),
			Visibility:      model.Visibility(strings.ToLower(f.Gitea.Visibility)),
			StarredReposOrg: strings.TrimSpace(f.Gitea.StarredReposOrg),
		},
		Include:  f.Include,
		Exclude:  f.Exclude,
		Schedule: model.ScheduleConfig{Enabled: f.Schedule.Enabled},
	}

	if f.Schedule.Interval != "" {
		d, err := time.ParseDuration(strings.TrimSpace(f.Schedule.Interval))
		if err != nil {
			return model.Configuration{}, fmt.Errorf("schedule.interval: %w", err)
		}
		if d <= 0 {
			return model.Configuration{}, errors.New("schedule.interval must be positive")
		}
		cfg.Schedule.Interval = d
	}

	cfg.ApplyDefaults()
	return cfg, nil
}
