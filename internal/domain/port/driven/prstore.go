// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
)

// BacklogWindow selects which end of the merged PR table the backlog page is
// read from.
type BacklogWindow string

const (
	// BacklogWindowOldest reads the N oldest merged PRs.
	BacklogWindowOldest BacklogWindow = "oldest"
	// BacklogWindowNewest reads the N most recently merged PRs.
	BacklogWindowNewest BacklogWindow = "newest"
)

// BacklogQuery bounds the page of merged PRs considered by one drain invocation.
type BacklogQuery struct {
	Limit  int
	Window BacklogWindow
}

// PRStore defines the driven port for merged pull request persistence.
type PRStore interface {
	// Insert stores a merged PR if no row exists for (repo, number) yet. It
	// returns true when a row was created. Existing rows are never modified.
	Insert(ctx context.Context, pr model.MergedPR) (bool, error)
	// GetByID returns nil, nil if the PR does not exist.
	GetByID(ctx context.Context, id int64) (*model.MergedPR, error)
	// GetByNumber returns nil, nil if the PR does not exist.
	GetByNumber(ctx context.Context, repoFullName string, number int) (*model.MergedPR, error)
	// ListBacklogPage returns at most q.Limit merged PRs from the configured
	// window, always ordered by merged_at ascending.
	ListBacklogPage(ctx context.Context, q BacklogQuery) ([]model.MergedPR, error)
	// ListRecent returns the most recently merged PRs, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.MergedPR, error)
}
