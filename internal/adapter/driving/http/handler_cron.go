package httphandler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ericfisherdev/mergemint/internal/application"
	"github.com/ericfisherdev/mergemint/internal/domain/model"
)

// Response messages of the trigger endpoint. Schedulers match on them, so they
// are part of the API.
const (
	msgNoBacklog      = "No merged PRs found"
	msgQueueDrained   = "All PRs are processed"
	msgProcessed      = "PR processed successfully"
	msgProcessFailed  = "PR processing failed"
	msgProcessTimeout = "PR processing timeout"
)

// ProcessPRs runs one drain invocation and reports its outcome. Only the
// literal postComment=true (any case) enables commenting.
func (h *Handler) ProcessPRs(w http.ResponseWriter, r *http.Request) {
	if h.deps.Drainer == nil {
		writeError(w, http.StatusServiceUnavailable, "drain is not configured")
		return
	}

	opts := application.DrainOptions{
		PostComment: strings.EqualFold(r.URL.Query().Get("postComment"), "true"),
	}

	report, err := h.deps.Drainer.Drain(r.Context(), opts)
	if err != nil {
		h.logger.Error("drain failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status, body := toDrainResponse(report)
	writeJSON(w, status, body)
}

// toDrainResponse maps a drain report onto its HTTP status and body.
func toDrainResponse(report model.DrainReport) (int, DrainResponse) {
	switch report.Outcome {
	case model.OutcomeNoBacklog:
		return http.StatusOK, DrainResponse{Message: msgNoBacklog}
	case model.OutcomeQueueDrained:
		return http.StatusOK, DrainResponse{Message: msgQueueDrained, QueueEmpty: true}
	case model.OutcomeProcessed:
		score := report.Score
		remaining := report.RemainingEstimate
		return http.StatusOK, DrainResponse{
			Message:           msgProcessed,
			Processed:         1,
			PR:                toDrainPRResponse(report.PR, &score),
			RemainingEstimate: &remaining,
		}
	case model.OutcomeDispatchTimeout:
		return http.StatusGatewayTimeout, DrainResponse{
			Message: msgProcessTimeout,
			Error:   report.Error,
			PR:      toDrainPRResponse(report.PR, nil),
		}
	default:
		return http.StatusInternalServerError, DrainResponse{
			Message: msgProcessFailed,
			Error:   report.Error,
			PR:      toDrainPRResponse(report.PR, nil),
		}
	}
}

func toDrainPRResponse(ref *model.PRRef, score *int) *DrainPRResponse {
	if ref == nil {
		return nil
	}
	return &DrainPRResponse{
		Number: ref.Number,
		Repo:   ref.Repo,
		Score:  score,
	}
}

// requireSecret rejects requests whose bearer token does not match the
// configured secret. With no secret configured every request passes.
func (h *Handler) requireSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.deps.CronSecret != "" && !validBearer(r.Header.Get("Authorization"), h.deps.CronSecret) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

func validBearer(header, secret string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
