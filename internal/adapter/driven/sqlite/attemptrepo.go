package sqlite

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/ericfisherdev/mergemint/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AttemptStore = (*AttemptRepo)(nil)

// AttemptRepo is the SQLite implementation of the AttemptStore port interface.
type AttemptRepo struct {
	db *DB
}

// NewAttemptRepo creates a new AttemptRepo backed by the given DB.
func NewAttemptRepo(db *DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

// Record appends a dispatch attempt.
func (r *AttemptRepo) Record(ctx context.Context, a model.DispatchAttempt) error {
	const query = `
		INSERT INTO dispatch_attempts (pr_id, run_id, outcome, error, duration_ms, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	attemptedAt := a.AttemptedAt
	if attemptedAt.IsZero() {
		attemptedAt = time.Now()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		a.PRID, a.RunID, string(a.Outcome), a.Error, a.Duration.Milliseconds(), attemptedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record dispatch attempt for PR %d: %w", a.PRID, err)
	}

	return nil
}

// FailureCounts counts failed and timed-out attempts per PR.
func (r *AttemptRepo) FailureCounts(ctx context.Context, prIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int)
	if len(prIDs) == 0 {
		return counts, nil
	}

	query, args, err := sq.Select("pr_id", "COUNT(*)").
		From("dispatch_attempts").
		Where(sq.Eq{
			"pr_id":   prIDs,
			"outcome": []string{string(model.OutcomeDispatchFailed), string(model.OutcomeDispatchTimeout)},
		}).
		GroupBy("pr_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failure counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan failure count: %w", err)
		}
		counts[id] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure counts: %w", err)
	}

	return counts, nil
}

// ListByPR returns the attempts recorded for a PR, most recent first.
func (r *AttemptRepo) ListByPR(ctx context.Context, prID int64) ([]model.DispatchAttempt, error) {
	const query = `
		SELECT id, pr_id, run_id, outcome, error, duration_ms, attempted_at
		FROM dispatch_attempts
		WHERE pr_id = ?
		ORDER BY attempted_at DESC, id DESC
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, prID)
	if err != nil {
		return nil, fmt.Errorf("query dispatch attempts: %w", err)
	}
	defer rows.Close()

	attempts := []model.DispatchAttempt{}
	for rows.Next() {
		var a model.DispatchAttempt
		var outcome, attemptedAt string
		var durationMs int64

		if err := rows.Scan(&a.ID, &a.PRID, &a.RunID, &outcome, &a.Error, &durationMs, &attemptedAt); err != nil {
			return nil, fmt.Errorf("scan dispatch attempt: %w", err)
		}

		a.Outcome = model.Outcome(outcome)
		a.Duration = time.Duration(durationMs) * time.Millisecond
		a.AttemptedAt, err = parseTime(attemptedAt)
		if err != nil {
			return nil, fmt.Errorf("parse attempted_at: %w", err)
		}

		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch attempts: %w", err)
	}

	return attempts, nil
}
