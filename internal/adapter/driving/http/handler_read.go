package httphandler

import (
	"net/http"
	"strconv"

	"github.com/ericfisherdev/mergemint/internal/application"
)

// ListPRs returns the most recently merged PRs with their evaluation status.
func (h *Handler) ListPRs(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, defaultListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	prs, err := h.deps.PRStore.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list PRs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	ids := make([]int64, 0, len(prs))
	for _, pr := range prs {
		ids = append(ids, pr.ID)
	}
	evaluated, err := h.deps.EvaluationStore.EvaluatedAmong(r.Context(), ids)
	if err != nil {
		h.logger.Error("failed to load evaluation status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]PRResponse, 0, len(prs))
	for _, pr := range prs {
		resp = append(resp, toPRResponse(pr, evaluated[pr.ID]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListAttempts returns the dispatch history of one PR, most recent first.
func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid PR id")
		return
	}

	attempts, err := h.deps.AttemptStore.ListByPR(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list attempts", "pr_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]AttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		resp = append(resp, toAttemptResponse(a))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListEvaluations returns the most recent evaluations.
func (h *Handler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, defaultListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	evaluations, err := h.deps.EvaluationStore.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list evaluations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]EvaluationResponse, 0, len(evaluations))
	for _, e := range evaluations {
		resp = append(resp, toEvaluationResponse(e, false))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetEvaluation returns the evaluation of one PR with its summary rendered to HTML.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid PR number")
		return
	}
	repoFullName := r.PathValue("owner") + "/" + r.PathValue("repo")

	pr, err := h.deps.PRStore.GetByNumber(r.Context(), repoFullName, number)
	if err != nil {
		h.logger.Error("failed to get PR", "repo", repoFullName, "number", number, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if pr == nil {
		writeError(w, http.StatusNotFound, "pull request not found")
		return
	}

	evaluation, err := h.deps.EvaluationStore.GetByPRID(r.Context(), pr.ID)
	if err != nil {
		h.logger.Error("failed to get evaluation", "pr", pr.Label(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if evaluation == nil {
		writeError(w, http.StatusNotFound, "evaluation not found")
		return
	}

	writeJSON(w, http.StatusOK, toEvaluationResponse(*evaluation, true))
}

// Leaderboard ranks authors by their total eligible score, optionally within
// one organization.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, defaultListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	org := r.URL.Query().Get("org")

	entries, err := h.deps.EvaluationStore.Leaderboard(r.Context(), org, limit)
	if err != nil {
		h.logger.Error("failed to build leaderboard", "org", org, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]LeaderboardResponse, 0, len(entries))
	for i, e := range entries {
		resp = append(resp, LeaderboardResponse{
			Rank:       i + 1,
			Author:     e.Author,
			TotalScore: e.TotalScore,
			PRCount:    e.PRCount,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Backlog resolves the backlog page the next drain would see, without
// dispatching anything.
func (h *Handler) Backlog(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backlog == nil {
		writeError(w, http.StatusServiceUnavailable, "drain is not configured")
		return
	}

	resolution, err := h.deps.Backlog.Resolve(r.Context())
	if err != nil {
		h.logger.Error("failed to resolve backlog", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := BacklogResponse{
		State:     resolution.State.String(),
		Remaining: resolution.Remaining,
		PageSize:  h.deps.Backlog.PageSize(),
	}
	if resolution.State == application.BacklogPending && resolution.Item != nil {
		next := toPRResponse(*resolution.Item, false)
		resp.Next = &next
	}

	writeJSON(w, http.StatusOK, resp)
}
