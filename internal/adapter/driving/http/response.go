package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/ericfisherdev/mergemint/internal/markdown"
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

// DrainResponse is the body of the trigger endpoint. Field names are camelCase
// because existing schedulers parse them.
type DrainResponse struct {
	Message           string           `json:"message"`
	Processed         int              `json:"processed"`
	QueueEmpty        bool             `json:"queueEmpty,omitempty"`
	Error             string           `json:"error,omitempty"`
	PR                *DrainPRResponse `json:"pr,omitempty"`
	RemainingEstimate *int             `json:"remainingEstimate,omitempty"`
}

// DrainPRResponse identifies the PR a drain invocation dispatched.
type DrainPRResponse struct {
	Number int    `json:"number"`
	Repo   string `json:"repo"`
	Score  *int   `json:"score,omitempty"`
}

// EvaluateResponse is the body of the evaluation endpoint.
type EvaluateResponse struct {
	Evaluation EvaluationResponse `json:"evaluation"`
}

// EvaluationResponse is the JSON representation of an evaluation.
type EvaluationResponse struct {
	PRID        int64  `json:"pr_id"`
	FinalScore  int    `json:"final_score"`
	Severity    string `json:"severity"`
	Component   string `json:"component"`
	Eligible    bool   `json:"eligible"`
	Summary     string `json:"summary"`
	SummaryHTML string `json:"summary_html,omitempty"`
	Model       string `json:"model"`
	EvaluatedAt string `json:"evaluated_at"`
}

// PRResponse is the JSON representation of a merged pull request.
type PRResponse struct {
	ID           int64  `json:"id"`
	OrgID        string `json:"org_id"`
	Number       int    `json:"number"`
	Repository   string `json:"repository"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	URL          string `json:"url"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
	ChangedFiles int    `json:"changed_files"`
	MergedAt     string `json:"merged_at"`
	Evaluated    bool   `json:"evaluated"`
}

// AttemptResponse is the JSON representation of one dispatch attempt.
type AttemptResponse struct {
	RunID       string `json:"run_id"`
	Outcome     string `json:"outcome"`
	Error       string `json:"error,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	AttemptedAt string `json:"attempted_at"`
}

// LeaderboardResponse is one ranked author.
type LeaderboardResponse struct {
	Rank       int    `json:"rank"`
	Author     string `json:"author"`
	TotalScore int    `json:"total_score"`
	PRCount    int    `json:"pr_count"`
}

// BacklogResponse is the dry-run view of the backlog.
type BacklogResponse struct {
	State     string      `json:"state"`
	Next      *PRResponse `json:"next,omitempty"`
	Remaining int         `json:"remaining"`
	PageSize  int         `json:"page_size"`
}

// RepoResponse is the JSON representation of a watched repository.
type RepoResponse struct {
	FullName       string `json:"full_name"`
	Owner          string `json:"owner"`
	Name           string `json:"name"`
	OrgID          string `json:"org_id"`
	AddedAt        string `json:"added_at"`
	LastIngestedAt string `json:"last_ingested_at,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// AddRepoRequest is the JSON body for the add repository endpoint. OrgID
// defaults to the repository owner.
type AddRepoRequest struct {
	FullName string `json:"full_name"`
	OrgID    string `json:"org_id"`
}

// toEvaluationResponse converts a domain Evaluation. withHTML adds the
// sanitized rendering of the summary.
func toEvaluationResponse(e model.Evaluation, withHTML bool) EvaluationResponse {
	resp := EvaluationResponse{
		PRID:        e.PRID,
		FinalScore:  e.FinalScore,
		Severity:    e.Severity,
		Component:   e.Component,
		Eligible:    e.Eligible,
		Summary:     e.Summary,
		Model:       e.Model,
		EvaluatedAt: e.EvaluatedAt.UTC().Format(time.RFC3339),
	}
	if withHTML && e.Summary != "" {
		resp.SummaryHTML = markdown.Render(e.Summary)
	}
	return resp
}

// toPRResponse converts a domain MergedPR to its JSON response representation.
func toPRResponse(pr model.MergedPR, evaluated bool) PRResponse {
	return PRResponse{
		ID:           pr.ID,
		OrgID:        pr.OrgID,
		Number:       pr.Number,
		Repository:   pr.RepoFullName,
		Title:        pr.Title,
		Author:       pr.Author,
		URL:          pr.URL,
		Additions:    pr.Additions,
		Deletions:    pr.Deletions,
		ChangedFiles: pr.ChangedFiles,
		MergedAt:     pr.MergedAt.UTC().Format(time.RFC3339),
		Evaluated:    evaluated,
	}
}

func toAttemptResponse(a model.DispatchAttempt) AttemptResponse {
	return AttemptResponse{
		RunID:       a.RunID,
		Outcome:     string(a.Outcome),
		Error:       a.Error,
		DurationMS:  a.Duration.Milliseconds(),
		AttemptedAt: a.AttemptedAt.UTC().Format(time.RFC3339),
	}
}

// toRepoResponse converts a domain Repository to its JSON response representation.
func toRepoResponse(repo model.Repository) RepoResponse {
	resp := RepoResponse{
		FullName: repo.FullName,
		Owner:    repo.Owner,
		Name:     repo.Name,
		OrgID:    repo.OrgID,
		AddedAt:  repo.AddedAt.UTC().Format(time.RFC3339),
	}
	if !repo.LastIngestedAt.IsZero() {
		resp.LastIngestedAt = repo.LastIngestedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
