package application_test

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
	"github.com/ericfisherdev/mergemint/internal/domain/port/driven"
)

// --- In-memory fakes shared by the drain, evaluation and ingest tests ---

type fakePRStore struct {
	mu        sync.Mutex
	prs       []model.MergedPR
	nextID    int64
	pageErr   error
	lastQuery driven.BacklogQuery
	pageCalls int
}

func newFakePRStore(prs ...model.MergedPR) *fakePRStore {
	s := &fakePRStore{}
	for _, pr := range prs {
		s.prs = append(s.prs, pr)
		if pr.ID > s.nextID {
			s.nextID = pr.ID
		}
	}
	return s
}

func (s *fakePRStore) Insert(_ context.Context, pr model.MergedPR) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.prs {
		if existing.RepoFullName == pr.RepoFullName && existing.Number == pr.Number {
			return false, nil
		}
	}
	s.nextID++
	pr.ID = s.nextID
	s.prs = append(s.prs, pr)
	return true, nil
}

func (s *fakePRStore) GetByID(_ context.Context, id int64) (*model.MergedPR, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pr := range s.prs {
		if pr.ID == id {
			found := pr
			return &found, nil
		}
	}
	return nil, nil
}

func (s *fakePRStore) GetByNumber(_ context.Context, repo string, number int) (*model.MergedPR, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pr := range s.prs {
		if pr.RepoFullName == repo && pr.Number == number {
			found := pr
			return &found, nil
		}
	}
	return nil, nil
}

func (s *fakePRStore) ListBacklogPage(_ context.Context, q driven.BacklogQuery) ([]model.MergedPR, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCalls++
	s.lastQuery = q
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	page := append([]model.MergedPR(nil), s.prs...)
	if q.Limit < len(page) {
		page = page[:q.Limit]
	}
	return page, nil
}

func (s *fakePRStore) ListRecent(_ context.Context, limit int) ([]model.MergedPR, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recent := append([]model.MergedPR(nil), s.prs...)
	sort.Slice(recent, func(i, j int) bool { return recent[i].MergedAt.After(recent[j].MergedAt) })
	if limit < len(recent) {
		recent = recent[:limit]
	}
	return recent, nil
}

type fakeEvaluationStore struct {
	mu          sync.Mutex
	evaluations map[int64]model.Evaluation
	amongErr    error
	saveErr     error
	saves       int
}

func newFakeEvaluationStore(evaluatedIDs ...int64) *fakeEvaluationStore {
	s := &fakeEvaluationStore{evaluations: make(map[int64]model.Evaluation)}
	for _, id := range evaluatedIDs {
		s.evaluations[id] = model.Evaluation{PRID: id}
	}
	return s
}

func (s *fakeEvaluationStore) Save(_ context.Context, e model.Evaluation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return false, s.saveErr
	}
	if _, ok := s.evaluations[e.PRID]; ok {
		return false, nil
	}
	e.ID = int64(len(s.evaluations) + 1)
	s.evaluations[e.PRID] = e
	return true, nil
}

func (s *fakeEvaluationStore) EvaluatedAmong(_ context.Context, ids []int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.amongErr != nil {
		return nil, s.amongErr
	}
	result := make(map[int64]bool)
	for _, id := range ids {
		if _, ok := s.evaluations[id]; ok {
			result[id] = true
		}
	}
	return result, nil
}

func (s *fakeEvaluationStore) GetByPRID(_ context.Context, prID int64) (*model.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.evaluations[prID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *fakeEvaluationStore) ListRecent(_ context.Context, _ int) ([]model.Evaluation, error) {
	return nil, nil
}

func (s *fakeEvaluationStore) Leaderboard(_ context.Context, _ string, _ int) ([]model.LeaderboardEntry, error) {
	return nil, nil
}

type fakeAttemptStore struct {
	mu        sync.Mutex
	attempts  []model.DispatchAttempt
	failures  map[int64]int
	recordErr error
	countErr  error
}

func (s *fakeAttemptStore) Record(_ context.Context, a model.DispatchAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.attempts = append(s.attempts, a)
	return nil
}

func (s *fakeAttemptStore) FailureCounts(_ context.Context, ids []int64) (map[int64]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return nil, s.countErr
	}
	result := make(map[int64]int)
	for _, id := range ids {
		if n := s.failures[id]; n > 0 {
			result[id] = n
		}
	}
	return result, nil
}

func (s *fakeAttemptStore) ListByPR(_ context.Context, prID int64) ([]model.DispatchAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DispatchAttempt
	for _, a := range s.attempts {
		if a.PRID == prID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeAttemptStore) recorded() []model.DispatchAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DispatchAttempt(nil), s.attempts...)
}

// funcEvaluator adapts a function to driven.Evaluator and counts calls.
type funcEvaluator struct {
	fn    func(ctx context.Context, req model.EvaluationRequest) (model.EvaluationResult, error)
	calls atomic.Int32
}

func (e *funcEvaluator) Evaluate(ctx context.Context, req model.EvaluationRequest) (model.EvaluationResult, error) {
	e.calls.Add(1)
	return e.fn(ctx, req)
}

func scoreEvaluator(score int) *funcEvaluator {
	return &funcEvaluator{fn: func(context.Context, model.EvaluationRequest) (model.EvaluationResult, error) {
		return model.EvaluationResult{FinalScore: score, Eligible: true}, nil
	}}
}

var testMergedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// mergedPR builds a PR merged minutesAfter minutes past testMergedAt.
func mergedPR(id int64, number int, minutesAfter int) model.MergedPR {
	return model.MergedPR{
		ID:           id,
		OrgID:        "acme",
		RepoFullName: "octocat/hello-world",
		Number:       number,
		Title:        "Change",
		Author:       "octocat",
		Additions:    10,
		Deletions:    2,
		MergedAt:     testMergedAt.Add(time.Duration(minutesAfter) * time.Minute),
	}
}

type commentCall struct {
	Repo   string
	Number int
	Body   string
}

type fakeGitHubClient struct {
	mu         sync.Mutex
	merged     map[string][]model.MergedPR
	details    map[int]*model.PRDetail
	fetchErr   map[string]error
	detailErr  error
	commentErr error
	comments   []commentCall
	sinces     map[string]time.Time
}

func (c *fakeGitHubClient) FetchMergedPullRequests(_ context.Context, repo string, since time.Time) ([]model.MergedPR, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sinces == nil {
		c.sinces = make(map[string]time.Time)
	}
	c.sinces[repo] = since
	if err := c.fetchErr[repo]; err != nil {
		return nil, err
	}
	return c.merged[repo], nil
}

func (c *fakeGitHubClient) FetchPRDetail(_ context.Context, _ string, number int) (*model.PRDetail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detailErr != nil {
		return nil, c.detailErr
	}
	return c.details[number], nil
}

func (c *fakeGitHubClient) CreateIssueComment(_ context.Context, repo string, number int, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commentErr != nil {
		return c.commentErr
	}
	c.comments = append(c.comments, commentCall{Repo: repo, Number: number, Body: body})
	return nil
}

type fakeScorer struct {
	classification model.Classification
	err            error
	calls          atomic.Int32
	lastGuide      driven.ScoringGuide
}

func (s *fakeScorer) Classify(_ context.Context, _ model.EvaluationRequest, guide driven.ScoringGuide) (model.Classification, error) {
	s.calls.Add(1)
	s.lastGuide = guide
	return s.classification, s.err
}
