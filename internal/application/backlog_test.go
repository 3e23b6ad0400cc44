package application_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/mergemint/internal/application"
	"github.com/ericfisherdev/mergemint/internal/domain/model"
)

func TestResolveBacklog(t *testing.T) {
	tests := []struct {
		name      string
		page      []model.MergedPR
		processed map[int64]bool
		state     application.BacklogState
		number    int
		remaining int
	}{
		{
			name:  "empty page",
			page:  nil,
			state: application.BacklogEmpty,
		},
		{
			name:      "oldest unprocessed is chosen",
			page:      []model.MergedPR{mergedPR(1, 1, 0), mergedPR(2, 2, 5)},
			processed: map[int64]bool{2: true},
			state:     application.BacklogPending,
			number:    1,
		},
		{
			name:      "all processed",
			page:      []model.MergedPR{mergedPR(1, 1, 0), mergedPR(2, 2, 5)},
			processed: map[int64]bool{1: true, 2: true},
			state:     application.BacklogDrained,
		},
		{
			name:      "processed head is skipped",
			page:      []model.MergedPR{mergedPR(1, 1, 0), mergedPR(2, 2, 5), mergedPR(3, 3, 10)},
			processed: map[int64]bool{1: true},
			state:     application.BacklogPending,
			number:    2,
			remaining: 1,
		},
		{
			name:      "page order does not matter",
			page:      []model.MergedPR{mergedPR(3, 3, 10), mergedPR(1, 1, 0), mergedPR(2, 2, 5)},
			state:     application.BacklogPending,
			number:    1,
			remaining: 2,
		},
		{
			name:      "equal merge times break on smallest id",
			page:      []model.MergedPR{mergedPR(8, 80, 0), mergedPR(4, 40, 0)},
			state:     application.BacklogPending,
			number:    40,
			remaining: 1,
		},
		{
			name:      "nil processed set",
			page:      []model.MergedPR{mergedPR(5, 5, 0)},
			processed: nil,
			state:     application.BacklogPending,
			number:    5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := application.ResolveBacklog(tt.page, tt.processed)

			assert.Equal(t, tt.state, got.State)
			if tt.state != application.BacklogPending {
				assert.Nil(t, got.Item)
				return
			}
			require.NotNil(t, got.Item)
			assert.Equal(t, tt.number, got.Item.Number)
			assert.Equal(t, tt.remaining, got.Remaining)
		})
	}
}

func TestResolveBacklog_Deterministic(t *testing.T) {
	page := []model.MergedPR{mergedPR(4, 4, 30), mergedPR(2, 2, 10), mergedPR(3, 3, 20), mergedPR(1, 1, 0)}
	processed := map[int64]bool{1: true, 3: true}

	first := application.ResolveBacklog(page, processed)
	for range 50 {
		again := application.ResolveBacklog(page, processed)
		assert.Equal(t, first, again)
	}

	require.NotNil(t, first.Item)
	assert.Equal(t, 2, first.Item.Number)
}

func TestResolveBacklog_PicksSmallestUnprocessedKey(t *testing.T) {
	// Every subset of a five-item page: the chosen item must be the earliest
	// unprocessed one.
	page := []model.MergedPR{
		mergedPR(10, 1, 40), mergedPR(11, 2, 10), mergedPR(12, 3, 30), mergedPR(13, 4, 0), mergedPR(14, 5, 20),
	}

	for mask := range 1 << len(page) {
		processed := make(map[int64]bool)
		for i, pr := range page {
			if mask&(1<<i) != 0 {
				processed[pr.ID] = true
			}
		}

		var want *model.MergedPR
		for i := range page {
			if processed[page[i].ID] {
				continue
			}
			if want == nil || page[i].MergedAt.Before(want.MergedAt) {
				want = &page[i]
			}
		}

		got := application.ResolveBacklog(page, processed)
		if want == nil {
			assert.Equal(t, application.BacklogDrained, got.State, "mask %05b", mask)
			continue
		}
		require.NotNil(t, got.Item, "mask %05b", mask)
		assert.Equal(t, want.ID, got.Item.ID, "mask %05b", mask)
	}
}

func TestResolveBacklog_DoesNotAliasPage(t *testing.T) {
	page := []model.MergedPR{mergedPR(1, 1, 0)}

	got := application.ResolveBacklog(page, nil)
	require.NotNil(t, got.Item)

	page[0].Title = "mutated"
	assert.Equal(t, "Change", got.Item.Title)
}

func TestBacklogState_String(t *testing.T) {
	assert.Equal(t, "empty", application.BacklogEmpty.String())
	assert.Equal(t, "drained", application.BacklogDrained.String())
	assert.Equal(t, "pending", application.BacklogPending.String())
}
