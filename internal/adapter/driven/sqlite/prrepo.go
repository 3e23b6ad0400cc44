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
var _ driven.PRStore = (*PRRepo)(nil)

var prColumns = []string{
	"id", "org_id", "repo_full_name", "number", "title", "body", "author",
	"additions", "deletions", "changed_files", "head_sha", "merge_commit_sha",
	"url", "merged_at", "ingested_at",
}

// PRRepo is the SQLite implementation of the PRStore port interface.
type PRRepo struct {
	db *DB
}

// NewPRRepo creates a new PRRepo backed by the given DB.
func NewPRRepo(db *DB) *PRRepo {
	return &PRRepo{db: db}
}

// Insert stores a merged pull request unless one already exists for the same
// repository and number. Existing rows are left untouched.
func (r *PRRepo) Insert(ctx context.Context, pr model.MergedPR) (bool, error) {
	const query = `
		INSERT INTO merged_prs (
			org_id, repo_full_name, number, title, body, author, additions, deletions,
			changed_files, head_sha, merge_commit_sha, url, merged_at, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_full_name, number) DO NOTHING
	`

	ingestedAt := pr.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now()
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		pr.OrgID, pr.RepoFullName, pr.Number, pr.Title, pr.Body, pr.Author,
		pr.Additions, pr.Deletions, pr.ChangedFiles, pr.HeadSHA, pr.MergeCommitSHA,
		pr.URL, pr.MergedAt.UTC(), ingestedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert merged PR %s: %w", pr.Label(), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

// GetByID retrieves a merged pull request by its database ID.
// Returns nil, nil if the pull request does not exist.
func (r *PRRepo) GetByID(ctx context.Context, id int64) (*model.MergedPR, error) {
	query, args, err := sq.Select(prColumns...).From("merged_prs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	pr, err := scanPR(r.db.Reader.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get PR %d: %w", id, err)
	}

	return pr, nil
}

// GetByNumber retrieves a single merged pull request by repository and number.
// Returns nil, nil if the pull request does not exist.
func (r *PRRepo) GetByNumber(ctx context.Context, repoFullName string, number int) (*model.MergedPR, error) {
	query, args, err := sq.Select(prColumns...).
		From("merged_prs").
		Where(sq.Eq{"repo_full_name": repoFullName, "number": number}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	pr, err := scanPR(r.db.Reader.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get PR %s#%d: %w", repoFullName, number, err)
	}

	return pr, nil
}

// ListBacklogPage returns at most q.Limit merged pull requests taken from the
// oldest or newest end of the table. The page is always returned in ascending
// merge order regardless of the window.
func (r *PRRepo) ListBacklogPage(ctx context.Context, q driven.BacklogQuery) ([]model.MergedPR, error) {
	if q.Limit <= 0 {
		return []model.MergedPR{}, nil
	}

	window := sq.Select(prColumns...).From("merged_prs").Limit(uint64(q.Limit))
	switch q.Window {
	case driven.BacklogWindowNewest:
		window = window.OrderBy("merged_at DESC", "id DESC")
	default:
		window = window.OrderBy("merged_at ASC", "id ASC")
	}

	query, args, err := sq.Select(prColumns...).
		FromSelect(window, "page").
		OrderBy("merged_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build backlog query: %w", err)
	}

	return r.queryPRs(ctx, query, args...)
}

// ListRecent returns the most recently merged pull requests, newest first.
func (r *PRRepo) ListRecent(ctx context.Context, limit int) ([]model.MergedPR, error) {
	query, args, err := sq.Select(prColumns...).
		From("merged_prs").
		OrderBy("merged_at DESC", "id DESC").
		Limit(uint64(max(limit, 0))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	return r.queryPRs(ctx, query, args...)
}

func (r *PRRepo) queryPRs(ctx context.Context, query string, args ...any) ([]model.MergedPR, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query merged PRs: %w", err)
	}
	defer rows.Close()

	prs := []model.MergedPR{}
	for rows.Next() {
		pr, err := scanPR(rows)
		if err != nil {
			return nil, fmt.Errorf("scan merged PR: %w", err)
		}
		prs = append(prs, *pr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merged PRs: %w", err)
	}

	return prs, nil
}

func scanPR(s scanner) (*model.MergedPR, error) {
	var pr model.MergedPR
	var mergedAt, ingestedAt string

	err := s.Scan(
		&pr.ID, &pr.OrgID, &pr.RepoFullName, &pr.Number, &pr.Title, &pr.Body, &pr.Author,
		&pr.Additions, &pr.Deletions, &pr.ChangedFiles, &pr.HeadSHA, &pr.MergeCommitSHA,
		&pr.URL, &mergedAt, &ingestedAt,
	)
	if err != nil {
		return nil, err
	}

	pr.MergedAt, err = parseTime(mergedAt)
	if err != nil {
		return nil, fmt.Errorf("parse merged_at: %w", err)
	}

	pr.IngestedAt, err = parseTime(ingestedAt)
	if err != nil {
		return nil, fmt.Errorf("parse ingested_at: %w", err)
	}

	return &pr, nil
}
