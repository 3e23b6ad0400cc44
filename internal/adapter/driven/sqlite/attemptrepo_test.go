package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptRepo_RecordAndList(t *testing.T) {
	db := setupTestDB(t)
	pr := insertPR(t, db, makeMergedPR("octocat/hello-world", 1, baseMergedAt))
	repo := NewAttemptRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, model.DispatchAttempt{
		PRID:        pr.ID,
		RunID:       "run-1",
		Outcome:     model.OutcomeDispatchTimeout,
		Error:       "Request timed out after 28s",
		Duration:    28 * time.Second,
		AttemptedAt: baseMergedAt,
	}))
	require.NoError(t, repo.Record(ctx, model.DispatchAttempt{
		PRID:        pr.ID,
		RunID:       "run-2",
		Outcome:     model.OutcomeProcessed,
		Duration:    1500 * time.Millisecond,
		AttemptedAt: baseMergedAt.Add(time.Minute),
	}))

	attempts, err := repo.ListByPR(ctx, pr.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	assert.Equal(t, "run-2", attempts[0].RunID)
	assert.Equal(t, model.OutcomeProcessed, attempts[0].Outcome)
	assert.Equal(t, 1500*time.Millisecond, attempts[0].Duration)

	assert.Equal(t, "run-1", attempts[1].RunID)
	assert.Equal(t, model.OutcomeDispatchTimeout, attempts[1].Outcome)
	assert.Equal(t, "Request timed out after 28s", attempts[1].Error)
	assert.True(t, baseMergedAt.Equal(attempts[1].AttemptedAt))
}

func TestAttemptRepo_ListByPR_Empty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAttemptRepo(db)

	attempts, err := repo.ListByPR(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, attempts)
	assert.Empty(t, attempts)
}

func TestAttemptRepo_FailureCounts(t *testing.T) {
	db := setupTestDB(t)
	a := insertPR(t, db, makeMergedPR("octocat/hello-world", 1, baseMergedAt))
	b := insertPR(t, db, makeMergedPR("octocat/hello-world", 2, baseMergedAt))
	c := insertPR(t, db, makeMergedPR("octocat/hello-world", 3, baseMergedAt))
	repo := NewAttemptRepo(db)
	ctx := context.Background()

	record := func(prID int64, outcome model.Outcome) {
		t.Helper()
		require.NoError(t, repo.Record(ctx, model.DispatchAttempt{PRID: prID, RunID: "r", Outcome: outcome}))
	}

	record(a.ID, model.OutcomeDispatchFailed)
	record(a.ID, model.OutcomeDispatchTimeout)
	record(a.ID, model.OutcomeProcessed)
	record(b.ID, model.OutcomeProcessed)
	record(c.ID, model.OutcomeDispatchFailed)

	counts, err := repo.FailureCounts(ctx, []int64{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{a.ID: 2}, counts)

	none, err := repo.FailureCounts(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
