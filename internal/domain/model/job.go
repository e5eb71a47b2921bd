package model

import "time"

// MirrorJob is one execution attempt of mirroring, for a single repository
// or a whole configuration. Log is append-only and ordered by sequence.
type MirrorJob struct {
	ID           string
	ConfigID     string
	RepositoryID string // Set when the job targets exactly one repository.
	Status       JobStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Log          []LogEntry
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LogEntry is one line of a job's audit trail.
type LogEntry struct {
	Sequence       int
	Timestamp      time.Time
	Level          LogLevel
	Message        string
	RepositoryName string
	Details        string
}

// LastEntry returns the most recent log entry, or false when the log is empty.
func (j MirrorJob) LastEntry() (LogEntry, bool) {
	if len(j.Log) == 0 {
		return LogEntry{}, false
	}
	return j.Log[len(j.Log)-1], true
}
