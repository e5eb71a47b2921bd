package model

import "time"

// Repository is a source repository tracked by a Configuration. Descriptive
// fields are owned by the synchronizer; Status, LastMirrored and ErrorMessage
// are owned by the mirror executor.
type Repository struct {
	ID           string
	ConfigID     string
	FullName     string // "owner/repo", unique per configuration.
	Name         string
	Owner        string
	Organization string // Empty when the owner is a user account.
	Description  string
	URL          string
	CloneURL     string
	IsPrivate    bool
	IsFork       bool
	HasIssues    bool
	IsStarred    bool
	Status       RepoStatus
	LastMirrored *time.Time
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DescriptiveEqual reports whether the source-derived fields of r and other match.
func (r Repository) DescriptiveEqual(other Repository) bool {
	return r.Name == other.Name &&
		r.Owner == other.Owner &&
		r.Organization == other.Organization &&
		r.Description == other.Description &&
		r.URL == other.URL &&
		r.CloneURL == other.CloneURL &&
		r.IsPrivate == other.IsPrivate &&
		r.IsFork == other.IsFork &&
		r.HasIssues == other.HasIssues &&
		r.IsStarred == other.IsStarred
}
