package model

import "time"

// Issue is a source issue replicated to the destination forge.
type Issue struct {
	Number    int
	Title     string
	Body      string
	State     string // "open" or "closed".
	Author    string
	Labels    []Label
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// Label is an issue label. Color is a six digit hex string without "#".
type Label struct {
	Name  string
	Color string
}

// IsClosed reports whether the issue is closed on the source.
func (i Issue) IsClosed() bool {
	return i.State == "closed"
}
