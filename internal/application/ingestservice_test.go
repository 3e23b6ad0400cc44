package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/mergemint/internal/application"
	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/ericfisherdev/mergemint/internal/domain/port/driven"
)

type fakeRepoStore struct {
	mu      sync.Mutex
	repos   []model.Repository
	marked  map[string]time.Time
	listErr error
	markErr error
}

func (s *fakeRepoStore) Add(_ context.Context, repo model.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos = append(s.repos, repo)
	return nil
}

func (s *fakeRepoStore) Remove(_ context.Context, _ string) error {
	return nil
}

func (s *fakeRepoStore) GetByFullName(_ context.Context, fullName string) (*model.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.repos {
		if r.FullName == fullName {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

func (s *fakeRepoStore) ListAll(_ context.Context) ([]model.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]model.Repository(nil), s.repos...), nil
}

func (s *fakeRepoStore) MarkIngested(_ context.Context, fullName string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	if s.marked == nil {
		s.marked = make(map[string]time.Time)
	}
	s.marked[fullName] = at
	for i := range s.repos {
		if s.repos[i].FullName == fullName {
			s.repos[i].LastIngestedAt = at
		}
	}
	return nil
}

func (s *fakeRepoStore) markedAt(fullName string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.marked[fullName]
	return at, ok
}

type recordingIngestObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *recordingIngestObserver) IngestedPRs(repo string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[repo] += n
}

// runIngest starts the service, waits for the initial cycle by issuing a
// refresh of refreshRepo, then stops it.
func runIngest(t *testing.T, svc *application.IngestService, refreshRepo string) error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	// The loop only accepts refreshes after the initial cycle has finished.
	err := svc.RefreshRepo(ctx, refreshRepo)

	cancel()
	<-done
	return err
}

func remotePR(number int, author string) model.MergedPR {
	return model.MergedPR{
		RepoFullName: "octocat/hello-world",
		Number:       number,
		Title:        "Remote change",
		Author:       author,
		HeadSHA:      "head",
		URL:          "https://github.com/octocat/hello-world/pull/1",
		MergedAt:     testMergedAt,
	}
}

func TestIngestService_StoresNewMergedPRs(t *testing.T) {
	gh := &fakeGitHubClient{
		merged: map[string][]model.MergedPR{
			"octocat/hello-world": {remotePR(1, "alice"), remotePR(2, "bob")},
		},
		details: map[int]*model.PRDetail{
			1: {Body: "Body one", Additions: 10, Deletions: 2, ChangedFiles: 3, MergeCommitSHA: "m1"},
			2: {Additions: 1, Deletions: 1, ChangedFiles: 1, MergeCommitSHA: "m2"},
		},
	}
	prs := newFakePRStore()
	repos := &fakeRepoStore{repos: []model.Repository{{FullName: "octocat/hello-world", OrgID: "acme"}}}
	observer := &recordingIngestObserver{}
	svc := application.NewIngestService(gh, prs, repos, observer, time.Hour, nil)

	require.NoError(t, runIngest(t, svc, "octocat/hello-world"))

	stored, err := prs.GetByNumber(context.Background(), "octocat/hello-world", 1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "acme", stored.OrgID)
	assert.Equal(t, "Body one", stored.Body)
	assert.Equal(t, 10, stored.Additions)
	assert.Equal(t, 2, stored.Deletions)
	assert.Equal(t, 3, stored.ChangedFiles)
	assert.Equal(t, "m1", stored.MergeCommitSHA)

	assert.Len(t, prs.prs, 2, "second cycle must not duplicate rows")
	assert.Equal(t, 2, observer.counts["octocat/hello-world"])

	_, marked := repos.markedAt("octocat/hello-world")
	assert.True(t, marked)
}

func TestIngestService_UsesWatermark(t *testing.T) {
	watermark := time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)
	gh := &fakeGitHubClient{}
	repos := &fakeRepoStore{repos: []model.Repository{{FullName: "octocat/hello-world", LastIngestedAt: watermark}}}
	svc := application.NewIngestService(gh, newFakePRStore(), repos, nil, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()
	require.NoError(t, svc.RefreshRepo(ctx, ""))
	cancel()
	<-done

	gh.mu.Lock()
	defer gh.mu.Unlock()
	// The refresh ran after the initial cycle advanced the watermark.
	assert.True(t, gh.sinces["octocat/hello-world"].After(watermark))
}

func TestIngestService_DetailFailureKeepsWatermark(t *testing.T) {
	gh := &fakeGitHubClient{
		merged:    map[string][]model.MergedPR{"octocat/hello-world": {remotePR(1, "alice")}},
		detailErr: errors.New("secondary rate limit"),
	}
	prs := newFakePRStore()
	repos := &fakeRepoStore{repos: []model.Repository{{FullName: "octocat/hello-world"}}}
	svc := application.NewIngestService(gh, prs, repos, nil, time.Hour, nil)

	err := runIngest(t, svc, "octocat/hello-world")
	assert.Error(t, err)

	assert.Empty(t, prs.prs)
	_, marked := repos.markedAt("octocat/hello-world")
	assert.False(t, marked, "watermark must not advance past unstored PRs")
}

func TestIngestService_SkipsKnownPRs(t *testing.T) {
	gh := &fakeGitHubClient{
		merged: map[string][]model.MergedPR{"octocat/hello-world": {remotePR(1, "alice")}},
		// A detail fetch for a known PR would fail the cycle.
		detailErr: errors.New("unexpected detail fetch"),
	}
	existing := mergedPR(1, 1, 0)
	existing.Title = "Stored"
	prs := newFakePRStore(existing)
	repos := &fakeRepoStore{repos: []model.Repository{{FullName: "octocat/hello-world"}}}
	svc := application.NewIngestService(gh, prs, repos, nil, time.Hour, nil)

	require.NoError(t, runIngest(t, svc, "octocat/hello-world"))

	require.Len(t, prs.prs, 1)
	assert.Equal(t, "Stored", prs.prs[0].Title)
}

func TestIngestService_RepoFailureDoesNotStopOthers(t *testing.T) {
	gh := &fakeGitHubClient{
		merged:   map[string][]model.MergedPR{"octocat/good": {remotePR(1, "alice")}},
		fetchErr: map[string]error{"octocat/bad": errors.New("404 Not Found")},
	}
	prs := newFakePRStore()
	repos := &fakeRepoStore{repos: []model.Repository{{FullName: "octocat/bad"}, {FullName: "octocat/good"}}}
	svc := application.NewIngestService(gh, prs, repos, nil, time.Hour, nil)

	require.NoError(t, runIngest(t, svc, ""))

	got, err := prs.GetByNumber(context.Background(), "octocat/good", 1)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestIngestService_RefreshUnknownRepo(t *testing.T) {
	svc := application.NewIngestService(&fakeGitHubClient{}, newFakePRStore(), &fakeRepoStore{}, nil, time.Hour, nil)

	err := runIngest(t, svc, "nobody/nothing")
	assert.ErrorIs(t, err, driven.ErrRepoNotFound)
}

func TestIngestService_RefreshCanceled(t *testing.T) {
	svc := application.NewIngestService(&fakeGitHubClient{}, newFakePRStore(), &fakeRepoStore{}, nil, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// No loop is running, so only cancellation can end the call.
	err := svc.RefreshRepo(ctx, "octocat/hello-world")
	assert.ErrorIs(t, err, context.Canceled)
}
