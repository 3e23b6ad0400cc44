package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/ericfisherdev/mergemint/internal/domain/port/driven"
)

// DispatchKind classifies a single evaluator call.
type DispatchKind int

const (
	DispatchSucceeded DispatchKind = iota
	DispatchFailed
	DispatchTimedOut
)

// DispatchResult is what the dispatcher observed for one call.
type DispatchResult struct {
	Kind    DispatchKind
	Score   int
	Err     error
	Elapsed time.Duration
}

// Dispatcher sends one merged PR to the evaluator under a hard deadline.
// It never retries and never writes evaluations itself.
type Dispatcher struct {
	evaluator driven.Evaluator
	timeout   time.Duration
}

// NewDispatcher creates a Dispatcher. timeout must stay below the budget of
// whatever triggers the drain.
func NewDispatcher(evaluator driven.Evaluator, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		evaluator: evaluator,
		timeout:   timeout,
	}
}

// Timeout returns the per-dispatch deadline.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// Dispatch makes exactly one evaluator call for item. The call is abandoned
// and its context canceled as soon as the deadline elapses, even if the
// evaluator does not return.
func (d *Dispatcher) Dispatch(ctx context.Context, item model.MergedPR, postComment bool) DispatchResult {
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type reply struct {
		result model.EvaluationResult
		err    error
	}

	// Buffered so an abandoned call can still deliver and exit.
	replies := make(chan reply, 1)
	req := model.NewEvaluationRequest(item, postComment)

	go func() {
		result, err := d.evaluator.Evaluate(callCtx, req)
		replies <- reply{result: result, err: err}
	}()

	select {
	case r := <-replies:
		elapsed := time.Since(start)
		if r.err == nil {
			return DispatchResult{Kind: DispatchSucceeded, Score: r.result.FinalScore, Elapsed: elapsed}
		}
		if errors.Is(r.err, context.DeadlineExceeded) && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return DispatchResult{Kind: DispatchTimedOut, Err: r.err, Elapsed: elapsed}
		}
		return DispatchResult{Kind: DispatchFailed, Err: r.err, Elapsed: elapsed}

	case <-callCtx.Done():
		elapsed := time.Since(start)
		err := callCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("evaluation call abandoned at deadline", "pr", item.Label(), "timeout", d.timeout)
			return DispatchResult{Kind: DispatchTimedOut, Err: err, Elapsed: elapsed}
		}
		return DispatchResult{Kind: DispatchFailed, Err: err, Elapsed: elapsed}
	}
}
