package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/ericfisherdev/mergemint/internal/domain/port/driven"
)

// DrainObserver receives drain instrumentation. *metrics.Metrics implements it.
type DrainObserver interface {
	ObserveOutcome(outcome model.Outcome)
	ObserveDispatch(outcome model.Outcome, elapsed time.Duration)
	InfrastructureError()
}

type noopObserver struct{}

func (noopObserver) ObserveOutcome(model.Outcome)                 {}
func (noopObserver) ObserveDispatch(model.Outcome, time.Duration) {}
func (noopObserver) InfrastructureError()                         {}

// DrainConfig bounds one drain invocation.
type DrainConfig struct {
	PageSize     int
	Window       driven.BacklogWindow
	FetchTimeout time.Duration
	// MaxAttempts dead-letters PRs whose failed plus timed-out dispatch count
	// reached it. Zero retries forever.
	MaxAttempts int
}

// Defaults applied by NewDrainService to unset DrainConfig fields.
const (
	DefaultBacklogPageSize = 100
	DefaultFetchTimeout    = 5 * time.Second
)

// DrainOptions are the per-invocation knobs exposed by the triggers.
type DrainOptions struct {
	PostComment bool
}

// DrainService evaluates at most one pending merged PR per invocation. It keeps
// no state between invocations; overlapping invocations are not serialized.
type DrainService struct {
	prStore         driven.PRStore
	evaluationStore driven.EvaluationStore
	attemptStore    driven.AttemptStore
	dispatcher      *Dispatcher
	observer        DrainObserver
	cfg             DrainConfig
	logger          *slog.Logger
}

// NewDrainService creates a DrainService. observer and logger may be nil.
func NewDrainService(
	prStore driven.PRStore,
	evaluationStore driven.EvaluationStore,
	attemptStore driven.AttemptStore,
	dispatcher *Dispatcher,
	observer DrainObserver,
	cfg DrainConfig,
	logger *slog.Logger,
) *DrainService {
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultBacklogPageSize
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Window == "" {
		cfg.Window = driven.BacklogWindowOldest
	}

	return &DrainService{
		prStore:         prStore,
		evaluationStore: evaluationStore,
		attemptStore:    attemptStore,
		dispatcher:      dispatcher,
		observer:        observer,
		cfg:             cfg,
		logger:          logger,
	}
}

// Drain runs one invocation: fetch the backlog page, pick the next PR, dispatch
// it once and classify the result. A non-nil error means the backlog could not
// be read; no outcome applies in that case.
func (s *DrainService) Drain(ctx context.Context, opts DrainOptions) (model.DrainReport, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)

	resolution, err := s.Resolve(ctx)
	if err != nil {
		s.observer.InfrastructureError()
		logger.Error("drain aborted", "error", err, "duration", time.Since(start).Round(time.Millisecond))
		return model.DrainReport{RunID: runID, Duration: time.Since(start)}, err
	}

	var dispatch *DispatchResult
	if resolution.State == BacklogPending {
		logger.Info("dispatching merged PR",
			"pr", resolution.Item.Label(),
			"pr_id", resolution.Item.ID,
			"remaining", resolution.Remaining,
		)
		result := s.dispatcher.Dispatch(ctx, *resolution.Item, opts.PostComment)
		dispatch = &result
	}

	report := Classify(resolution, dispatch, s.dispatcher.Timeout())
	report.RunID = runID
	report.Duration = time.Since(start)

	if dispatch != nil {
		s.observer.ObserveDispatch(report.Outcome, dispatch.Elapsed)
		s.recordAttempt(ctx, logger, report, dispatch.Elapsed)
	}
	s.observer.ObserveOutcome(report.Outcome)

	attrs := []any{"outcome", report.Outcome, "duration", report.Duration.Round(time.Millisecond)}
	if report.PR != nil {
		attrs = append(attrs, "repo", report.PR.Repo, "pr", report.PR.Number)
	}
	switch report.Outcome {
	case model.OutcomeDispatchFailed, model.OutcomeDispatchTimeout:
		logger.Warn("drain finished", append(attrs, "error", report.Error)...)
	case model.OutcomeProcessed:
		logger.Info("drain finished", append(attrs, "score", report.Score, "remaining_estimate", report.RemainingEstimate)...)
	default:
		logger.Info("drain finished", attrs...)
	}

	return report, nil
}

// PageSize returns the configured backlog page size.
func (s *DrainService) PageSize() int {
	return s.cfg.PageSize
}

// Resolve reads the backlog page and resolves it without dispatching. Each
// store read is bounded by the fetch timeout.
func (s *DrainService) Resolve(ctx context.Context) (BacklogResolution, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	page, err := s.prStore.ListBacklogPage(fetchCtx, driven.BacklogQuery{
		Limit:  s.cfg.PageSize,
		Window: s.cfg.Window,
	})
	if err != nil {
		return BacklogResolution{}, fmt.Errorf("fetch backlog page: %w", err)
	}

	if len(page) == 0 {
		return ResolveBacklog(page, nil), nil
	}

	ids := make([]int64, 0, len(page))
	for _, pr := range page {
		ids = append(ids, pr.ID)
	}

	evaluated, err := s.evaluationStore.EvaluatedAmong(fetchCtx, ids)
	if err != nil {
		return BacklogResolution{}, fmt.Errorf("fetch evaluated PRs: %w", err)
	}

	covered := make(map[int64]bool, len(evaluated))
	for id, ok := range evaluated {
		covered[id] = ok
	}

	if s.cfg.MaxAttempts > 0 {
		if err := s.excludeDeadLetters(fetchCtx, ids, covered); err != nil {
			return BacklogResolution{}, err
		}
	}

	return ResolveBacklog(page, covered), nil
}

// excludeDeadLetters marks PRs that exhausted their dispatch attempts as covered.
func (s *DrainService) excludeDeadLetters(ctx context.Context, ids []int64, covered map[int64]bool) error {
	pending := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !covered[id] {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	failures, err := s.attemptStore.FailureCounts(ctx, pending)
	if err != nil {
		return fmt.Errorf("fetch dispatch failure counts: %w", err)
	}

	for id, n := range failures {
		if n >= s.cfg.MaxAttempts {
			covered[id] = true
			s.logger.Debug("skipping dead-lettered PR", "pr_id", id, "failures", n)
		}
	}

	return nil
}

// recordAttempt appends the dispatch to the attempt log. Failures are logged
// and never change the reported outcome.
func (s *DrainService) recordAttempt(ctx context.Context, logger *slog.Logger, report model.DrainReport, elapsed time.Duration) {
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
	defer cancel()

	err := s.attemptStore.Record(recordCtx, model.DispatchAttempt{
		PRID:        report.PR.ID,
		RunID:       report.RunID,
		Outcome:     report.Outcome,
		Error:       report.Error,
		Duration:    elapsed,
		AttemptedAt: time.Now(),
	})
	if err != nil {
		logger.Error("record dispatch attempt failed", "pr_id", report.PR.ID, "error", err)
	}
}
