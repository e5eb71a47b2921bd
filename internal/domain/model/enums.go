package model

// RepoStatus is the mirror state of a repository.
//
//	pending  -> mirroring -> mirrored | failed
//	failed   -> mirroring
//	mirrored -> syncing   -> synced | failed
//	synced   -> syncing
type RepoStatus string

const (
	RepoStatusPending   RepoStatus = "pending"
	RepoStatusMirroring RepoStatus = "mirroring"
	RepoStatusMirrored  RepoStatus = "mirrored"
	RepoStatusSyncing   RepoStatus = "syncing"
	RepoStatusSynced    RepoStatus = "synced"
	RepoStatusFailed    RepoStatus = "failed"
)

// IsBusy reports whether a mirror operation currently owns the repository.
func (s RepoStatus) IsBusy() bool {
	return s == RepoStatusMirroring || s == RepoStatusSyncing
}

// HasMirror reports whether the repository has been mirrored at least once.
func (s RepoStatus) HasMirror() bool {
	return s == RepoStatusMirrored || s == RepoStatusSynced
}

// ClaimTarget is the busy status a mirror operation moves the repository to
// from s: syncing when a mirror exists, mirroring otherwise.
func (s RepoStatus) ClaimTarget() RepoStatus {
	if s.HasMirror() {
		return RepoStatusSyncing
	}
	return RepoStatusMirroring
}

// JobStatus represents the lifecycle of a mirror job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the job can no longer change status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// LogLevel classifies a job log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelSuccess LogLevel = "success"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// OrgType distinguishes organizations the identity belongs to from public ones
// added explicitly.
type OrgType string

const (
	OrgTypeMember OrgType = "member"
	OrgTypePublic OrgType = "public"
)

// Visibility is the destination organization visibility.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityLimited Visibility = "limited"
)

// Valid reports whether v is one of the known visibilities.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityLimited:
		return true
	}
	return false
}
