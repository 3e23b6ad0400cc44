package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/ericfisherdev/mergemint/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.EvaluationStore = (*EvaluationRepo)(nil)

var evaluationColumns = []string{
	"id", "pr_id", "final_score", "severity", "component", "eligible", "summary", "model", "evaluated_at",
}

// EvaluationRepo is the SQLite implementation of the EvaluationStore port interface.
type EvaluationRepo struct {
	db *DB
}

// NewEvaluationRepo creates a new EvaluationRepo backed by the given DB.
func NewEvaluationRepo(db *DB) *EvaluationRepo {
	return &EvaluationRepo{db: db}
}

// Save inserts the evaluation if the PR has none yet. A second save for the
// same PR is a no-op and reports created=false.
func (r *EvaluationRepo) Save(ctx context.Context, e model.Evaluation) (bool, error) {
	const query = `
		INSERT INTO evaluations (pr_id, final_score, severity, component, eligible, summary, model, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pr_id) DO NOTHING
	`

	evaluatedAt := e.EvaluatedAt
	if evaluatedAt.IsZero() {
		evaluatedAt = time.Now()
	}

	eligible := 0
	if e.Eligible {
		eligible = 1
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		e.PRID, e.FinalScore, e.Severity, e.Component, eligible, e.Summary, e.Model, evaluatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("save evaluation for PR %d: %w", e.PRID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

// EvaluatedAmong returns the IDs from prIDs that already have an evaluation.
func (r *EvaluationRepo) EvaluatedAmong(ctx context.Context, prIDs []int64) (map[int64]bool, error) {
	result := make(map[int64]bool, len(prIDs))
	if len(prIDs) == 0 {
		return result, nil
	}

	query, args, err := sq.Select("pr_id").From("evaluations").Where(sq.Eq{"pr_id": prIDs}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evaluated PRs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan evaluated PR id: %w", err)
		}
		result[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluated PRs: %w", err)
	}

	return result, nil
}

// GetByPRID returns the evaluation for a PR, or nil, nil if there is none.
func (r *EvaluationRepo) GetByPRID(ctx context.Context, prID int64) (*model.Evaluation, error) {
	query, args, err := sq.Select(evaluationColumns...).From("evaluations").Where(sq.Eq{"pr_id": prID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	e, err := scanEvaluation(r.db.Reader.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get evaluation for PR %d: %w", prID, err)
	}

	return e, nil
}

// ListRecent returns the most recent evaluations, newest first.
func (r *EvaluationRepo) ListRecent(ctx context.Context, limit int) ([]model.Evaluation, error) {
	query, args, err := sq.Select(evaluationColumns...).
		From("evaluations").
		OrderBy("evaluated_at DESC", "id DESC").
		Limit(uint64(max(limit, 0))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	evaluations := []model.Evaluation{}
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		evaluations = append(evaluations, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}

	return evaluations, nil
}

// Leaderboard ranks authors by the sum of their eligible evaluation scores.
// Ties are ordered by PR count, then author name.
func (r *EvaluationRepo) Leaderboard(ctx context.Context, orgID string, limit int) ([]model.LeaderboardEntry, error) {
	builder := sq.Select("p.author", "SUM(e.final_score) AS total_score", "COUNT(*) AS pr_count").
		From("evaluations e").
		Join("merged_prs p ON p.id = e.pr_id").
		Where(sq.Eq{"e.eligible": 1}).
		GroupBy("p.author").
		OrderBy("total_score DESC", "pr_count DESC", "p.author ASC").
		Limit(uint64(max(limit, 0)))
	if orgID != "" {
		builder = builder.Where(sq.Eq{"p.org_id": orgID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build leaderboard query: %w", err)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []model.LeaderboardEntry{}
	for rows.Next() {
		var entry model.LeaderboardEntry
		if err := rows.Scan(&entry.Author, &entry.TotalScore, &entry.PRCount); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}

	return entries, nil
}

func scanEvaluation(s scanner) (*model.Evaluation, error) {
	var e model.Evaluation
	var eligible int
	var evaluatedAt string

	err := s.Scan(&e.ID, &e.PRID, &e.FinalScore, &e.Severity, &e.Component, &eligible, &e.Summary, &e.Model, &evaluatedAt)
	if err != nil {
		return nil, err
	}

	e.Eligible = eligible != 0

	e.EvaluatedAt, err = parseTime(evaluatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse evaluated_at: %w", err)
	}

	return &e, nil
}
