package application

import "github.com/ericfisherdev/mergemint/internal/domain/model"

// BacklogState describes what a resolved page of merged PRs contains.
type BacklogState int

const (
	// BacklogEmpty means the page held no merged PRs at all.
	BacklogEmpty BacklogState = iota
	// BacklogDrained means every PR in the page already has an evaluation.
	BacklogDrained
	// BacklogPending means at least one PR in the page still needs evaluating.
	BacklogPending
)

// String returns the state name used in logs and the dry-run API.
func (s BacklogState) String() string {
	switch s {
	case BacklogEmpty:
		return "empty"
	case BacklogDrained:
		return "drained"
	case BacklogPending:
		return "pending"
	default:
		return "unknown"
	}
}

// BacklogResolution is the outcome of ResolveBacklog.
type BacklogResolution struct {
	State BacklogState
	// Item is the next PR to evaluate. Set only when State is BacklogPending.
	Item *model.MergedPR
	// Remaining counts unprocessed PRs in the page other than Item. It is only
	// an estimate of the backlog because the page is bounded.
	Remaining int
}

// ResolveBacklog picks the unprocessed PR with the earliest merge time, ties
// broken by the smallest ID. The order of page does not matter. processed may
// be nil.
func ResolveBacklog(page []model.MergedPR, processed map[int64]bool) BacklogResolution {
	if len(page) == 0 {
		return BacklogResolution{State: BacklogEmpty}
	}

	var next *model.MergedPR
	unprocessed := 0

	for i := range page {
		pr := &page[i]
		if processed[pr.ID] {
			continue
		}

		unprocessed++
		if next == nil || earlier(pr, next) {
			next = pr
		}
	}

	if next == nil {
		return BacklogResolution{State: BacklogDrained}
	}

	item := *next
	return BacklogResolution{
		State:     BacklogPending,
		Item:      &item,
		Remaining: unprocessed - 1,
	}
}

func earlier(a, b *model.MergedPR) bool {
	if !a.MergedAt.Equal(b.MergedAt) {
		return a.MergedAt.Before(b.MergedAt)
	}
	return a.ID < b.ID
}
