package model

import "time"

// Organization is a source organization known to a Configuration. IsIncluded
// is a user toggle: excluded organizations are skipped by the synchronizer.
type Organization struct {
	ID              string
	ConfigID        string
	Name            string
	Type            OrgType
	AvatarURL       string
	Description     string
	IsIncluded      bool
	RepositoryCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
