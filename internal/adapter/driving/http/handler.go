package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/mergemint/internal/application"
	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/ericfisherdev/mergemint/internal/domain/port/driven"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// BacklogInspector resolves the backlog without dispatching.
type BacklogInspector interface {
	Resolve(ctx context.Context) (application.BacklogResolution, error)
	PageSize() int
}

// PREvaluator scores a single merged PR.
type PREvaluator interface {
	Evaluate(ctx context.Context, req model.EvaluationRequest) (*model.Evaluation, error)
}

// RepoRefresher triggers an immediate ingest of one repository.
type RepoRefresher interface {
	RefreshRepo(ctx context.Context, repoFullName string) error
}

// Deps groups the collaborators of a Handler. Drainer, Backlog, Evaluator,
// Refresher and Metrics may be nil; the routes they back then answer 503
// (or are not registered, for Metrics).
type Deps struct {
	PRStore         driven.PRStore
	RepoStore       driven.RepoStore
	EvaluationStore driven.EvaluationStore
	AttemptStore    driven.AttemptStore

	Drainer   application.Drainer
	Backlog   BacklogInspector
	Evaluator PREvaluator
	Refresher RepoRefresher
	Metrics   http.Handler

	// CronSecret guards the trigger and evaluation endpoints. Empty leaves
	// them open.
	CronSecret string
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	deps   Deps
	logger *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		deps:   deps,
		logger: logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/cron/process-prs", h.requireSecret(h.ProcessPRs))
	mux.HandleFunc("POST /api/cron/process-prs", h.requireSecret(h.ProcessPRs))
	mux.HandleFunc("POST /api/evaluate-pr", h.requireSecret(h.EvaluatePR))

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/repos", h.ListRepos)
	mux.HandleFunc("POST /api/v1/repos", h.AddRepo)
	mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}", h.RemoveRepo)
	mux.HandleFunc("GET /api/v1/prs", h.ListPRs)
	mux.HandleFunc("GET /api/v1/prs/{id}/attempts", h.ListAttempts)
	mux.HandleFunc("GET /api/v1/evaluations", h.ListEvaluations)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/prs/{number}/evaluation", h.GetEvaluation)
	mux.HandleFunc("GET /api/v1/leaderboard", h.Leaderboard)
	mux.HandleFunc("GET /api/v1/backlog", h.Backlog)

	if h.deps.Metrics != nil {
		mux.Handle("GET /metrics", h.deps.Metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListRepos returns all watched repositories.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.deps.RepoStore.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list repos", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RepoResponse, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, toRepoResponse(repo))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddRepo adds a repository to the watch list and triggers an async ingest.
func (h *Handler) AddRepo(w http.ResponseWriter, r *http.Request) {
	var req AddRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !isValidRepoName(req.FullName) {
		writeError(w, http.StatusBadRequest, "invalid repository name: expected owner/repo format")
		return
	}

	parts := strings.SplitN(req.FullName, "/", 2)
	orgID := strings.TrimSpace(req.OrgID)
	if orgID == "" {
		orgID = parts[0]
	}
	repo := model.Repository{
		FullName: req.FullName,
		Owner:    parts[0],
		Name:     parts[1],
		OrgID:    orgID,
		AddedAt:  time.Now().UTC(),
	}

	if err := h.deps.RepoStore.Add(r.Context(), repo); err != nil {
		if errors.Is(err, driven.ErrRepoAlreadyExists) {
			writeError(w, http.StatusConflict, "repository already exists")
			return
		}
		h.logger.Error("failed to add repo", "repo", req.FullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// The request context ends with the response, so the refresh gets its own.
	if h.deps.Refresher != nil {
		go func() {
			if err := h.deps.Refresher.RefreshRepo(context.Background(), req.FullName); err != nil {
				h.logger.Error("async repo refresh failed", "repo", req.FullName, "error", err)
			}
		}()
	}

	writeJSON(w, http.StatusCreated, toRepoResponse(repo))
}

// RemoveRepo removes a repository from the watch list. Already ingested PRs
// and their evaluations are kept.
func (h *Handler) RemoveRepo(w http.ResponseWriter, r *http.Request) {
	fullName := r.PathValue("owner") + "/" + r.PathValue("repo")

	if err := h.deps.RepoStore.Remove(r.Context(), fullName); err != nil {
		if errors.Is(err, driven.ErrRepoNotFound) {
			writeError(w, http.StatusNotFound, "repository not found")
			return
		}
		h.logger.Error("failed to remove repo", "repo", fullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// parseLimit reads the limit query parameter, falling back to def and capping
// at maxListLimit. ok is false when the value is present but malformed.
func parseLimit(r *http.Request, def int) (limit int, ok bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, maxListLimit), true
}

// isValidRepoName validates that name is in owner/repo format where each part
// contains only alphanumeric characters, hyphens, dots, or underscores.
func isValidRepoName(name string) bool {
	parts := strings.SplitN(name, "/", 3)
	if len(parts) != 2 {
		return false
	}

	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, ch := range part {
			if !isValidRepoChar(ch) {
				return false
			}
		}
	}

	return true
}

// isValidRepoChar returns true if the rune is allowed in a repository owner or name.
func isValidRepoChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '.' || ch == '_'
}
