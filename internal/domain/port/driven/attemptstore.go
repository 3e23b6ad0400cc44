package driven

import (
	"context"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
)

// AttemptStore is the append-only log of evaluator dispatches.
type AttemptStore interface {
	Record(ctx context.Context, attempt model.DispatchAttempt) error
	// FailureCounts returns failed plus timed-out attempt counts for the given
	// PRs. PRs without failures are absent from the map.
	FailureCounts(ctx context.Context, prIDs []int64) (map[int64]int, error)
	// ListByPR returns attempts for a PR, most recent first.
	ListByPR(ctx context.Context, prID int64) ([]model.DispatchAttempt, error)
}
