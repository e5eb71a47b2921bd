package model

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// ConfigurationVersion is the current schema version of Configuration.
// Stored records with a lower version are upgraded by Migrate.
const ConfigurationVersion = 1

// Default values applied when a configuration omits them.
const (
	DefaultStarredReposOrg  = "github"
	DefaultScheduleInterval = time.Hour
	WildcardPattern         = "*"
)

// Configuration is one user's mirroring setup. It is passed explicitly into
// every core call; there is no ambient active configuration.
type Configuration struct {
	ID        string
	UserID    string
	Name      string
	IsActive  bool
	Version   int
	GitHub    GitHubConfig
	Gitea     GiteaConfig
	Include   []string
	Exclude   []string
	Schedule  ScheduleConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GitHubConfig holds source provider credentials and discovery toggles.
type GitHubConfig struct {
	Username             string
	Token                string
	SkipForks            bool
	PrivateRepositories  bool
	MirrorIssues         bool
	MirrorStarred        bool
	MirrorOrganizations  bool
	OnlyMirrorOrgs       bool
	IncludeOrgs          []string
	ExcludeOrgs          []string
	MirrorPublicOrgs     bool
	PublicOrgs           []string
	PreserveOrgStructure bool
	SkipStarredIssues    bool
	SingleRepo           string // "owner/repo"; when set only this repository is synced.
}

// GiteaConfig holds destination credentials and placement defaults.
type GiteaConfig struct {
	URL             string
	Token           string
	Organization    string
	Visibility      Visibility
	StarredReposOrg string
}

// ScheduleConfig controls periodic sync+mirror runs.
type ScheduleConfig struct {
	Enabled  bool
	Interval time.Duration
	LastRun  *time.Time
	NextRun  *time.Time
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (c *Configuration) ApplyDefaults() {
	if c.Version == 0 {
		c.Version = ConfigurationVersion
	}
	if c.Include == nil {
		c.Include = []string{WildcardPattern}
	}
	if c.Exclude == nil {
		c.Exclude = []string{}
	}
	if c.Gitea.Visibility == "" {
		c.Gitea.Visibility = VisibilityPublic
	}
	if c.Gitea.StarredReposOrg == "" {
		c.Gitea.StarredReposOrg = DefaultStarredReposOrg
	}
	if c.Schedule.Interval <= 0 {
		c.Schedule.Interval = DefaultScheduleInterval
	}
	if c.GitHub.IncludeOrgs == nil {
		c.GitHub.IncludeOrgs = []string{}
	}
	if c.GitHub.ExcludeOrgs == nil {
		c.GitHub.ExcludeOrgs = []string{}
	}
	if c.GitHub.PublicOrgs == nil {
		c.GitHub.PublicOrgs = []string{}
	}
}

// Migrate upgrades a configuration stored under an older schema version.
// Version 0 predates the field and only needs defaults.
func (c *Configuration) Migrate() error {
	switch {
	case c.Version > ConfigurationVersion:
		return fmt.Errorf("configuration %s has unsupported version %d", c.ID, c.Version)
	case c.Version < ConfigurationVersion:
		c.ApplyDefaults()
		c.Version = ConfigurationVersion
	}
	return nil
}

// Validate checks that the configuration carries everything a sync or mirror
// run needs. All problems are reported together.
func (c *Configuration) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.GitHub.Token == "" {
		errs = append(errs, errors.New("github.token is required"))
	}
	if c.Gitea.URL == "" {
		errs = append(errs, errors.New("gitea.url is required"))
	} else if u, err := url.Parse(c.Gitea.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("gitea.url %q is not an absolute http(s) URL", c.Gitea.URL))
	}
	if c.Gitea.Token == "" {
		errs = append(errs, errors.New("gitea.token is required"))
	}
	if c.Gitea.Visibility != "" && !c.Gitea.Visibility.Valid() {
		errs = append(errs, fmt.Errorf("gitea.visibility %q must be public, private or limited", c.Gitea.Visibility))
	}
	if c.GitHub.SingleRepo != "" && strings.Count(c.GitHub.SingleRepo, "/") != 1 {
		errs = append(errs, fmt.Errorf("github.singleRepo %q must be owner/repo", c.GitHub.SingleRepo))
	}
	if c.Schedule.Enabled && c.Schedule.Interval < time.Minute {
		errs = append(errs, fmt.Errorf("schedule.interval %s must be at least 1m", c.Schedule.Interval))
	}

	return errors.Join(errs...)
}

// OrgSelected reports whether org passes the includeOrgs/excludeOrgs lists.
// An empty includeOrgs list or one containing "*" selects every organization.
func (g GitHubConfig) OrgSelected(org string) bool {
	if slices.Contains(g.ExcludeOrgs, org) {
		return false
	}
	if len(g.IncludeOrgs) == 0 || slices.Contains(g.IncludeOrgs, WildcardPattern) {
		return true
	}
	return slices.Contains(g.IncludeOrgs, org)
}

// Redacted returns a copy with both tokens masked, for logs and API responses.
func (c Configuration) Redacted() Configuration {
	c.GitHub.Token = maskToken(c.GitHub.Token)
	c.Gitea.Token = maskToken(c.Gitea.Token)
	return c
}

func maskToken(token string) string {
	if token == "" {
		return ""
	}
	return "********"
}
