package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// StartJobRequest is the body of POST /api/v1/jobs.
type StartJobRequest struct {
	ConfigID      string   `json:"config_id"`
	RepositoryIDs []string `json:"repository_ids"`
}

// JobResponse is the JSON representation of a mirror job. Log is omitted in
// listings.
type JobResponse struct {
	ID           string             `json:"id"`
	ConfigID     string             `json:"config_id"`
	RepositoryID string             `json:"repository_id,omitempty"`
	Status       string             `json:"status"`
	StartedAt    *string            `json:"started_at"`
	CompletedAt  *string            `json:"completed_at"`
	CreatedAt    string             `json:"created_at"`
	UpdatedAt    string             `json:"updated_at"`
	Log          []LogEntryResponse `json:"log,omitempty"`
}

// LogEntryResponse is one job log line.
type LogEntryResponse struct {
	Sequence       int    `json:"sequence"`
	Timestamp      string `json:"timestamp"`
	Level          string `json:"level"`
	Message        string `json:"message"`
	RepositoryName string `json:"repository_name,omitempty"`
	Details        string `json:"details,omitempty"`
}

// ConfigResponse is a configuration with both tokens masked.
type ConfigResponse struct {
	ID       string   `json:"id"`
	UserID   string   `json:"user_id"`
	Name     string   `json:"name"`
	IsActive bool     `json:"is_active"`
	Version  int      `json:"version"`
	Include  []string `json:"include"`
	Exclude  []string `json:"exclude"`
	GitHub   struct {
		Username             string   `json:"username"`
		Token                string   `json:"token"`
		SkipForks            bool     `json:"skip_forks"`
		PrivateRepositories  bool     `json:"private_repositories"`
		MirrorIssues         bool     `json:"mirror_issues"`
		MirrorStarred        bool     `json:"mirror_starred"`
		MirrorOrganizations  bool     `json:"mirror_organizations"`
		OnlyMirrorOrgs       bool     `json:"only_mirror_orgs"`
		IncludeOrgs          []string `json:"include_orgs"`
		ExcludeOrgs          []string `json:"exclude_orgs"`
		MirrorPublicOrgs     bool     `json:"mirror_public_orgs"`
		PublicOrgs           []string `json:"public_orgs"`
		PreserveOrgStructure bool     `json:"preserve_org_structure"`
		SkipStarredIssues    bool     `json:"skip_starred_issues"`
		SingleRepo           string   `json:"single_repo,omitempty"`
	} `json:"github"`
	Gitea struct {
		URL             string `json:"url"`
		Token           string `json:"token"`
		Organization    string `json:"organization"`
		Visibility      string `json:"visibility"`
		StarredReposOrg string `json:"starred_repos_org"`
	} `json:"gitea"`
	Schedule struct {
		Enabled  bool    `json:"enabled"`
		Interval string  `json:"interval"`
		LastRun  *string `json:"last_run"`
		NextRun  *string `json:"next_run"`
	} `json:"schedule"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// RepositoryResponse is the JSON representation of a tracked repository.
type RepositoryResponse struct {
	ID           string  `json:"id"`
	FullName     string  `json:"full_name"`
	Name         string  `json:"name"`
	Owner        string  `json:"owner"`
	Organization string  `json:"organization,omitempty"`
	Description  string  `json:"description"`
	URL          string  `json:"url"`
	CloneURL     string  `json:"clone_url"`
	IsPrivate    bool    `json:"is_private"`
	IsFork       bool    `json:"is_fork"`
	HasIssues    bool    `json:"has_issues"`
	IsStarred    bool    `json:"is_starred"`
	Status       string  `json:"status"`
	LastMirrored *string `json:"last_mirrored"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// OrganizationResponse is the JSON representation of a source organization.
type OrganizationResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	AvatarURL       string `json:"avatar_url"`
	Description     string `json:"description"`
	IsIncluded      bool   `json:"is_included"`
	RepositoryCount int    `json:"repository_count"`
}

// SyncResponse reports the outcome of a sync.
type SyncResponse struct {
	Added         int `json:"added"`
	Updated       int `json:"updated"`
	Unchanged     int `json:"unchanged"`
	Organizations int `json:"organizations"`
}

// IdentityResponse is the account a token authenticates as.
type IdentityResponse struct {
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
}

// ConnectionResponse reports a connection test.
type ConnectionResponse struct {
	OK          bool              `json:"ok"`
	Source      *IdentityResponse `json:"source,omitempty"`
	Destination *IdentityResponse `json:"destination,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// HealthResponse is the JSON representation of the health check.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// nonNil keeps empty lists as [] in JSON.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toJobResponse(job model.MirrorJob) JobResponse {
	resp := JobResponse{
		ID:           job.ID,
		ConfigID:     job.ConfigID,
		RepositoryID: job.RepositoryID,
		Status:       string(job.Status),
		StartedAt:    formatOptionalTime(job.StartedAt),
		CompletedAt:  formatOptionalTime(job.CompletedAt),
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
	for _, e := range job.Log {
		resp.Log = append(resp.Log, LogEntryResponse{
			Sequence:       e.Sequence,
			Timestamp:      formatTime(e.Timestamp),
			Level:          string(e.Level),
			Message:        e.Message,
			RepositoryName: e.RepositoryName,
			Details:        e.Details,
		})
	}
	return resp
}

func toConfigResponse(cfg model.Configuration) ConfigResponse {
	cfg = cfg.Redacted()

	var resp ConfigResponse
	resp.ID = cfg.ID
	resp.UserID = cfg.UserID
	resp.Name = cfg.Name
	resp.IsActive = cfg.IsActive
	resp.Version = cfg.Version
	resp.Include = nonNil(cfg.Include)
	resp.Exclude = nonNil(cfg.Exclude)

	gh := cfg.GitHub
	resp.GitHub.Username = gh.Username
	resp.GitHub.Token = gh.Token
	resp.GitHub.SkipForks = gh.SkipForks
	resp.GitHub.PrivateRepositories = gh.PrivateRepositories
	resp.GitHub.MirrorIssues = gh.MirrorIssues
	resp.GitHub.MirrorStarred = gh.MirrorStarred
	resp.GitHub.MirrorOrganizations = gh.MirrorOrganizations
	resp.GitHub.OnlyMirrorOrgs = gh.OnlyMirrorOrgs
	resp.GitHub.IncludeOrgs = nonNil(gh.IncludeOrgs)
	resp.GitHub.ExcludeOrgs = nonNil(gh.ExcludeOrgs)
	resp.GitHub.MirrorPublicOrgs = gh.MirrorPublicOrgs
	resp.GitHub.PublicOrgs = nonNil(gh.PublicOrgs)
	resp.GitHub.PreserveOrgStructure = gh.PreserveOrgStructure
	resp.GitHub.SkipStarredIssues = gh.SkipStarredIssues
	resp.GitHub.SingleRepo = gh.SingleRepo

	resp.Gitea.URL = cfg.Gitea.URL
	resp.Gitea.Token = cfg.Gitea.Token
	resp.Gitea.Organization = cfg.Gitea.Organization
	resp.Gitea.Visibility = string(cfg.Gitea.Visibility)
	resp.Gitea.StarredReposOrg = cfg.Gitea.StarredReposOrg

	resp.Schedule.Enabled = cfg.Schedule.Enabled
	resp.Schedule.Interval = cfg.Schedule.Interval.String()
	resp.Schedule.LastRun = formatOptionalTime(cfg.Schedule.LastRun)
	resp.Schedule.NextRun = formatOptionalTime(cfg.Schedule.NextRun)

	resp.CreatedAt = formatTime(cfg.CreatedAt)
	resp.UpdatedAt = formatTime(cfg.UpdatedAt)
	return resp
}

func toRepositoryResponse(repo model.Repository) RepositoryResponse {
	return RepositoryResponse{
		ID:           repo.ID,
		FullName:     repo.FullName,
		Name:         repo.Name,
		Owner:        repo.Owner,
		Organization: repo.Organization,
		Description:  repo.Description,
		URL:          repo.URL,
		CloneURL:     repo.CloneURL,
		IsPrivate:    repo.IsPrivate,
		IsFork:       repo.IsFork,
		HasIssues:    repo.HasIssues,
		IsStarred:    repo.IsStarred,
		Status:       string(repo.Status),
		LastMirrored: formatOptionalTime(repo.LastMirrored),
		ErrorMessage: repo.ErrorMessage,
	}
}

func toOrganizationResponse(o model.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:              o.ID,
		Name:            o.Name,
		Type:            string(o.Type),
		AvatarURL:       o.AvatarURL,
		Description:     o.Description,
		IsIncluded:      o.IsIncluded,
		RepositoryCount: o.RepositoryCount,
	}
}

func toIdentityResponse(id model.Identity) *IdentityResponse {
	return &IdentityResponse{Login: id.Login, Name: id.Name}
}
