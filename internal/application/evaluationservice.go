package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/ericfisherdev/mergemint/internal/domain/port/driven"
	"github.com/ericfisherdev/mergemint/internal/rules"
)

// ErrPRNotFound is returned when an evaluation is requested for a PR that was
// never ingested.
var ErrPRNotFound = errors.New("merged PR not found")

// notEligiblePrefix starts the summary of evaluations that were not scored.
const notEligiblePrefix = "Not eligible: "

// EvaluationService scores a single merged PR: eligibility, LLM classification,
// rule scoring and persistence. It backs the evaluation endpoint the drain
// dispatches to.
type EvaluationService struct {
	prStore         driven.PRStore
	evaluationStore driven.EvaluationStore
	scorer          driven.PRScorer
	commenter       driven.GitHubClient
	rules           *rules.Rules
	logger          *slog.Logger
}

// NewEvaluationService creates an EvaluationService. commenter may be nil, in
// which case evaluations are never posted back to GitHub.
func NewEvaluationService(
	prStore driven.PRStore,
	evaluationStore driven.EvaluationStore,
	scorer driven.PRScorer,
	commenter driven.GitHubClient,
	r *rules.Rules,
	logger *slog.Logger,
) *EvaluationService {
	if r == nil {
		r = rules.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &EvaluationService{
		prStore:         prStore,
		evaluationStore: evaluationStore,
		scorer:          scorer,
		commenter:       commenter,
		rules:           r,
		logger:          logger,
	}
}

// Evaluate scores the PR identified by req and returns its stored evaluation.
// A PR that already has an evaluation is returned as-is without rescoring.
// Concurrent calls for the same PR may both classify, but only the first save
// is kept and only that call posts a GitHub comment.
func (s *EvaluationService) Evaluate(ctx context.Context, req model.EvaluationRequest) (*model.Evaluation, error) {
	pr, err := s.lookupPR(ctx, req)
	if err != nil {
		return nil, err
	}

	existing, err := s.evaluationStore.GetByPRID(ctx, pr.ID)
	if err != nil {
		return nil, fmt.Errorf("load evaluation for %s: %w", pr.Label(), err)
	}
	if existing != nil {
		s.logger.Info("PR already evaluated", "pr", pr.Label(), "score", existing.FinalScore)
		return existing, nil
	}

	evaluation, err := s.score(ctx, *pr, req.PostComment)
	if err != nil {
		return nil, err
	}

	created, err := s.evaluationStore.Save(ctx, evaluation)
	if err != nil {
		return nil, fmt.Errorf("save evaluation for %s: %w", pr.Label(), err)
	}
	if !created {
		s.logger.Warn("evaluation already saved by a concurrent request", "pr", pr.Label())
	}

	stored, err := s.evaluationStore.GetByPRID(ctx, pr.ID)
	if err != nil {
		return nil, fmt.Errorf("reload evaluation for %s: %w", pr.Label(), err)
	}
	if stored == nil {
		return nil, fmt.Errorf("evaluation for %s missing after save", pr.Label())
	}

	s.logger.Info("PR evaluated",
		"pr", pr.Label(),
		"score", stored.FinalScore,
		"severity", stored.Severity,
		"component", stored.Component,
		"eligible", stored.Eligible,
	)

	if created && req.PostComment {
		s.postComment(ctx, *pr, *stored)
	}

	return stored, nil
}

func (s *EvaluationService) lookupPR(ctx context.Context, req model.EvaluationRequest) (*model.MergedPR, error) {
	var (
		pr  *model.MergedPR
		err error
	)
	if req.PRID != 0 {
		pr, err = s.prStore.GetByID(ctx, req.PRID)
	} else {
		pr, err = s.prStore.GetByNumber(ctx, req.Repo, req.Number)
	}
	if err != nil {
		return nil, fmt.Errorf("load merged PR: %w", err)
	}
	if pr == nil {
		return nil, fmt.Errorf("PR %d (%s#%d): %w", req.PRID, req.Repo, req.Number, ErrPRNotFound)
	}
	return pr, nil
}

func (s *EvaluationService) score(ctx context.Context, pr model.MergedPR, postComment bool) (model.Evaluation, error) {
	evaluation := model.Evaluation{
		PRID:        pr.ID,
		EvaluatedAt: time.Now().UTC(),
	}

	if eligible, reason := s.rules.CheckEligibility(pr.Author, pr.ChangedLines()); !eligible {
		evaluation.Summary = notEligiblePrefix + reason
		return evaluation, nil
	}

	classification, err := s.scorer.Classify(ctx, model.NewEvaluationRequest(pr, postComment), s.rules.Guide())
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("classify %s: %w", pr.Label(), err)
	}

	evaluation.Severity = s.rules.NormalizeSeverity(classification.Severity)
	evaluation.Component = s.rules.NormalizeComponent(classification.Component)
	evaluation.FinalScore = s.rules.Score(evaluation.Severity, evaluation.Component)
	evaluation.Eligible = true
	evaluation.Summary = strings.TrimSpace(classification.Summary)
	evaluation.Model = classification.Model

	return evaluation, nil
}

func (s *EvaluationService) postComment(ctx context.Context, pr model.MergedPR, e model.Evaluation) {
	if s.commenter == nil {
		s.logger.Debug("comment requested but no GitHub client configured", "pr", pr.Label())
		return
	}

	if err := s.commenter.CreateIssueComment(ctx, pr.RepoFullName, pr.Number, FormatEvaluationComment(e)); err != nil {
		s.logger.Error("post evaluation comment failed", "pr", pr.Label(), "error", err)
	}
}

// FormatEvaluationComment renders the GitHub comment body for an evaluation.
func FormatEvaluationComment(e model.Evaluation) string {
	var b strings.Builder
	b.WriteString("### MergeMint evaluation\n\n")

	if !e.Eligible {
		b.WriteString("**Not scored.** ")
		b.WriteString(strings.TrimPrefix(e.Summary, notEligiblePrefix))
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, "**Score:** %d (%s, %s)\n", e.FinalScore, e.Severity, e.Component)
	if e.Summary != "" {
		b.WriteString("\n")
		b.WriteString(e.Summary)
		b.WriteString("\n")
	}

	return b.String()
}
