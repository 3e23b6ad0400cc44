package model

import (
	"fmt"
	"time"
)

// MergedPR is a merged pull request awaiting (or holding) an evaluation. It is
// the unit of work drained by the scheduler. Rows are written once by the ingest
// service and never modified afterwards.
type MergedPR struct {
	ID             int64
	OrgID          string
	RepoFullName   string
	Number         int
	Title          string
	Body           string
	Author         string
	Additions      int
	Deletions      int
	ChangedFiles   int
	HeadSHA        string
	MergeCommitSHA string
	URL            string
	MergedAt       time.Time // Ordering key for the backlog.
	IngestedAt     time.Time
}

// Label returns the human-readable "owner/repo#number" form used in logs.
func (pr MergedPR) Label() string {
	return fmt.Sprintf("%s#%d", pr.RepoFullName, pr.Number)
}

// ChangedLines returns additions plus deletions.
func (pr MergedPR) ChangedLines() int {
	return pr.Additions + pr.Deletions
}

// PRDetail holds the fields only available from the single-PR endpoint.
type PRDetail struct {
	Body           string
	Additions      int
	Deletions      int
	ChangedFiles   int
	MergeCommitSHA string
}
