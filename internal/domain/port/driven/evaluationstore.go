package driven

import (
	"context"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
)

// EvaluationStore defines the driven port for evaluation (result marker) persistence.
type EvaluationStore interface {
	// Save stores the evaluation unless one already exists for the PR. The first
	// write wins; created reports whether this call wrote the row.
	Save(ctx context.Context, e model.Evaluation) (created bool, err error)
	// EvaluatedAmong returns the subset of prIDs that already have an evaluation.
	EvaluatedAmong(ctx context.Context, prIDs []int64) (map[int64]bool, error)
	// GetByPRID returns nil, nil if the PR has not been evaluated.
	GetByPRID(ctx context.Context, prID int64) (*model.Evaluation, error)
	ListRecent(ctx context.Context, limit int) ([]model.Evaluation, error)
	// Leaderboard ranks authors by total eligible score. An empty orgID spans all tenants.
	Leaderboard(ctx context.Context, orgID string, limit int) ([]model.LeaderboardEntry, error)
}
