package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ericfisherdev/mergemint/internal/application"
	"github.com/ericfisherdev/mergemint/internal/domain/model"
)

// EvaluatePR scores one merged PR. It is the endpoint the drain dispatches to,
// so a non-2xx answer here is a dispatch failure there.
func (h *Handler) EvaluatePR(w http.ResponseWriter, r *http.Request) {
	if h.deps.Evaluator == nil {
		writeError(w, http.StatusServiceUnavailable, "evaluation is not configured")
		return
	}

	var req model.EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PRID <= 0 && (req.Repo == "" || req.Number <= 0) {
		writeError(w, http.StatusBadRequest, "prId or repo and number are required")
		return
	}

	evaluation, err := h.deps.Evaluator.Evaluate(r.Context(), req)
	if err != nil {
		if errors.Is(err, application.ErrPRNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("evaluation failed", "pr_id", req.PRID, "repo", req.Repo, "number", req.Number, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, EvaluateResponse{Evaluation: toEvaluationResponse(*evaluation, false)})
}
