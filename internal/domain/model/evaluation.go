package model

import "time"

// Evaluation is the persisted result of scoring a merged PR. Its existence for a
// PR is what marks the PR as processed; at most one exists per PR.
type Evaluation struct {
	ID          int64
	PRID        int64
	FinalScore  int
	Severity    string
	Component   string
	Eligible    bool
	Summary     string
	Model       string
	EvaluatedAt time.Time
}

// Classification is the structured answer obtained from the LLM before rule
// scoring is applied.
type Classification struct {
	Severity  string
	Component string
	Summary   string
	Model     string
}

// EvaluationRequest is the payload sent to the evaluation endpoint for one PR.
type EvaluationRequest struct {
	PRID           int64     `json:"prId"`
	OrgID          string    `json:"orgId"`
	Repo           string    `json:"repo"`
	Number         int       `json:"number"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Author         string    `json:"author"`
	Additions      int       `json:"additions"`
	Deletions      int       `json:"deletions"`
	ChangedFiles   int       `json:"changedFiles"`
	HeadSHA        string    `json:"headSha"`
	MergeCommitSHA string    `json:"mergeCommitSha"`
	URL            string    `json:"url"`
	MergedAt       time.Time `json:"mergedAt"`
	PostComment    bool      `json:"postComment"`
}

// NewEvaluationRequest builds the evaluation payload for a merged PR.
func NewEvaluationRequest(pr MergedPR, postComment bool) EvaluationRequest {
	return EvaluationRequest{
		PRID:           pr.ID,
		OrgID:          pr.OrgID,
		Repo:           pr.RepoFullName,
		Number:         pr.Number,
		Title:          pr.Title,
		Body:           pr.Body,
		Author:         pr.Author,
		Additions:      pr.Additions,
		Deletions:      pr.Deletions,
		ChangedFiles:   pr.ChangedFiles,
		HeadSHA:        pr.HeadSHA,
		MergeCommitSHA: pr.MergeCommitSHA,
		URL:            pr.URL,
		MergedAt:       pr.MergedAt,
		PostComment:    postComment,
	}
}

// EvaluationResult is what the dispatcher gets back from a successful evaluation.
type EvaluationResult struct {
	FinalScore int
	Eligible   bool
}

// LeaderboardEntry aggregates eligible evaluation scores per author.
type LeaderboardEntry struct {
	Author     string
	TotalScore int
	PRCount    int
}
