package model

import "time"

// Repository represents a GitHub repository whose merged PRs are ingested.
// OrgID is the owning tenant; every PR ingested from the repository inherits it.
type Repository struct {
	ID             int64
	FullName       string
	Owner          string
	Name           string
	OrgID          string
	AddedAt        time.Time
	LastIngestedAt time.Time // Zero until the first successful ingest.
}
