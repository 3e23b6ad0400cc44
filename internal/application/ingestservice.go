// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/ericfisherdev/mergemint/internal/domain/port/driven"
)

// DefaultIngestConcurrency bounds how many repositories are polled at once.
const DefaultIngestConcurrency = 4

// IngestObserver receives ingest instrumentation. *metrics.Metrics implements it.
type IngestObserver interface {
	IngestedPRs(repo string, n int)
}

// refreshRequest represents a manual refresh trigger.
type refreshRequest struct {
	repoFullName string
	done         chan error
}

// IngestService periodically polls watched repositories for merged pull
// requests and stores the ones not seen before. It is the only writer of
// merged PRs; the drain path only reads them.
type IngestService struct {
	ghClient    driven.GitHubClient
	prStore     driven.PRStore
	repoStore   driven.RepoStore
	observer    IngestObserver
	interval    time.Duration
	concurrency int
	refreshCh   chan refreshRequest
	logger      *slog.Logger
}

// NewIngestService creates a new IngestService with all required dependencies.
// observer and logger may be nil.
func NewIngestService(
	ghClient driven.GitHubClient,
	prStore driven.PRStore,
	repoStore driven.RepoStore,
	observer IngestObserver,
	interval time.Duration,
	logger *slog.Logger,
) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}

	return &IngestService{
		ghClient:    ghClient,
		prStore:     prStore,
		repoStore:   repoStore,
		observer:    observer,
		interval:    interval,
		concurrency: DefaultIngestConcurrency,
		refreshCh:   make(chan refreshRequest),
		logger:      logger,
	}
}

// Start begins the polling loop. It runs an immediate poll, then polls on the
// configured interval. It also listens for manual refresh requests. Start blocks
// until the context is canceled.
func (s *IngestService) Start(ctx context.Context) {
	if err := s.ingestAll(ctx); err != nil {
		s.logger.Error("initial ingest failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ingest service stopped")
			return
		case <-ticker.C:
			if err := s.ingestAll(ctx); err != nil {
				s.logger.Error("ingest cycle failed", "error", err)
			}
		case req := <-s.refreshCh:
			req.done <- s.handleRefresh(ctx, req)
		}
	}
}

// RefreshRepo triggers an immediate ingest of one repository, bypassing the
// polling interval. An empty name refreshes every repository. It blocks until
// the refresh completes or the context is canceled.
func (s *IngestService) RefreshRepo(ctx context.Context, repoFullName string) error {
	done := make(chan error, 1)
	req := refreshRequest{
		repoFullName: repoFullName,
		done:         done,
	}

	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ingestAll polls all watched repositories, a bounded number at a time.
// Per-repository failures are logged and do not fail the cycle.
func (s *IngestService) ingestAll(ctx context.Context) error {
	start := time.Now()

	repos, err := s.repoStore.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list repositories: %w", err)
	}

	var failed, stored atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, repo := range repos {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			n, err := s.ingestRepo(gctx, repo)
			stored.Add(int64(n))
			if err != nil {
				s.logger.Error("repo ingest failed", "repo", repo.FullName, "error", err)
				failed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("ingest cycle complete",
		"repos", len(repos),
		"stored", stored.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return nil
}

// ingestRepo stores merged PRs updated since the repository's watermark and
// returns how many were new. The watermark only advances when every new PR
// was stored, so a PR whose detail fetch failed is picked up next cycle.
func (s *IngestService) ingestRepo(ctx context.Context, repo model.Repository) (int, error) {
	started := time.Now()

	prs, err := s.ghClient.FetchMergedPullRequests(ctx, repo.FullName, repo.LastIngestedAt)
	if err != nil {
		return 0, fmt.Errorf("fetch merged PRs: %w", err)
	}

	var stored, skipped, failures int
	for _, pr := range prs {
		existing, err := s.prStore.GetByNumber(ctx, repo.FullName, pr.Number)
		if err != nil {
			s.logger.Error("lookup PR failed", "repo", repo.FullName, "pr", pr.Number, "error", err)
			failures++
			continue
		}
		if existing != nil {
			skipped++
			continue
		}

		detail, err := s.ghClient.FetchPRDetail(ctx, repo.FullName, pr.Number)
		if err != nil {
			s.logger.Error("fetch PR detail failed", "repo", repo.FullName, "pr", pr.Number, "error", err)
			failures++
			continue
		}
		if detail != nil {
			if detail.Body != "" {
				pr.Body = detail.Body
			}
			pr.Additions = detail.Additions
			pr.Deletions = detail.Deletions
			pr.ChangedFiles = detail.ChangedFiles
			if detail.MergeCommitSHA != "" {
				pr.MergeCommitSHA = detail.MergeCommitSHA
			}
		}

		pr.OrgID = repo.OrgID
		pr.RepoFullName = repo.FullName

		created, err := s.prStore.Insert(ctx, pr)
		if err != nil {
			s.logger.Error("store PR failed", "repo", repo.FullName, "pr", pr.Number, "error", err)
			failures++
			continue
		}
		if created {
			stored++
		} else {
			skipped++
		}
	}

	if s.observer != nil {
		s.observer.IngestedPRs(repo.FullName, stored)
	}

	s.logger.Info("repo ingested",
		"repo", repo.FullName,
		"fetched", len(prs),
		"stored", stored,
		"skipped_existing", skipped,
		"failed", failures,
	)

	if failures > 0 {
		return stored, fmt.Errorf("%d of %d PRs not stored", failures, len(prs))
	}

	if err := s.repoStore.MarkIngested(ctx, repo.FullName, started); err != nil {
		return stored, fmt.Errorf("advance ingest watermark: %w", err)
	}

	return stored, nil
}

// handleRefresh dispatches a manual refresh request.
func (s *IngestService) handleRefresh(ctx context.Context, req refreshRequest) error {
	if req.repoFullName == "" {
		return s.ingestAll(ctx)
	}

	repo, err := s.repoStore.GetByFullName(ctx, req.repoFullName)
	if err != nil {
		return fmt.Errorf("load repository %s: %w", req.repoFullName, err)
	}
	if repo == nil {
		return fmt.Errorf("refresh %s: %w", req.repoFullName, driven.ErrRepoNotFound)
	}

	_, err = s.ingestRepo(ctx, *repo)
	return err
}
