package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
)

// GitHubClient defines the driven port for interacting with the GitHub API.
type GitHubClient interface {
	// FetchMergedPullRequests returns PRs merged into the repository whose last
	// update is at or after since. A zero since returns all merged PRs. The
	// returned PRs lack the detail fields (body aside) only FetchPRDetail provides.
	FetchMergedPullRequests(ctx context.Context, repoFullName string, since time.Time) ([]model.MergedPR, error)
	// FetchPRDetail returns diff stats and the merge commit for a single PR.
	FetchPRDetail(ctx context.Context, repoFullName string, prNumber int) (*model.PRDetail, error)
	// CreateIssueComment adds a PR-level comment (via the Issues API).
	CreateIssueComment(ctx context.Context, repoFullName string, prNumber int, body string) error
}
