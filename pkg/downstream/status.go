package downstream

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-github/v66/github"
)

// Status is the ternary answer of the compare API mapped to build inclusion.
type Status string

const (
	// StatusInBuild means the published commit is at or ahead of the PR's
	// merge commit.
	StatusInBuild Status = "IN BUILD"
	// StatusNotInBuild means the published commit is behind the PR's merge
	// commit.
	StatusNotInBuild Status = "NOT IN BUILD"
	// StatusDiverged means the two commits are on different histories.
	StatusDiverged Status = "DIVERGED"
)

// PullRequest identifies a PR by its coordinates.
type PullRequest struct {
	Org    string
	Repo   string
	Number int
}

func (p PullRequest) String() string {
	return fmt.Sprintf("%s/%s#%d", p.Org, p.Repo, p.Number)
}

// ParsePullRequestURL extracts the coordinates from a PR URL like
// https://github.com/stolostron/console/pull/3456.
func ParsePullRequestURL(url string) (PullRequest, error) {
	parts := strings.Split(strings.TrimSuffix(url, "/"), "/")
	if len(parts) < 4 || parts[len(parts)-2] != "pull" {
		return PullRequest{}, fmt.Errorf("%q is not a pull request URL", url)
	}
	number, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return PullRequest{}, fmt.Errorf("%q does not end in a pull request number: %w", url, err)
	}
	return PullRequest{Org: parts[len(parts)-4], Repo: parts[len(parts)-3], Number: number}, nil
}

type githubClient interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, *github.Response, error)
	ListCommits(ctx context.Context, owner, repo string, opts *github.CommitsListOptions) ([]*github.RepositoryCommit, *github.Response, error)
	CompareCommits(ctx context.Context, owner, repo, base, head string, opts *github.ListOptions) (*github.CommitsComparison, *github.Response, error)
}

// Checker resolves PRs to merge commits and classifies them against
// published shas. Recent commit listings are memoized per repository for the
// lifetime of one checker, matching the one-shot nature of an invocation.
type Checker struct {
	client  githubClient
	commits map[string][]*github.RepositoryCommit
}

func NewChecker(client githubClient) *Checker {
	return &Checker{client: client, commits: map[string][]*github.RepositoryCommit{}}
}

// clientAdapter flattens the go-github service split into the narrow client
// the checker needs.
type clientAdapter struct {
	delegate *github.Client
}

func (a *clientAdapter) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, *github.Response, error) {
	return a.delegate.PullRequests.Get(ctx, owner, repo, number)
}

func (a *clientAdapter) ListCommits(ctx context.Context, owner, repo string, opts *github.CommitsListOptions) ([]*github.RepositoryCommit, *github.Response, error) {
	return a.delegate.Repositories.ListCommits(ctx, owner, repo, opts)
}

func (a *clientAdapter) CompareCommits(ctx context.Context, owner, repo, base, head string, opts *github.ListOptions) (*github.CommitsComparison, *github.Response, error) {
	return a.delegate.Repositories.CompareCommits(ctx, owner, repo, base, head, opts)
}

// NewCheckerFromGitHub wraps a full go-github client.
func NewCheckerFromGitHub(client *github.Client) *Checker {
	return NewChecker(&clientAdapter{delegate: client})
}

// ResolveMergeSHA finds the commit that landed a PR on its base branch: the
// merge commit recorded on the PR when it reports as merged, otherwise the
// newest commit whose message references the PR number.
func (c *Checker) ResolveMergeSHA(ctx context.Context, pr PullRequest) (string, error) {
	pullRequest, _, err := c.client.GetPullRequest(ctx, pr.Org, pr.Repo, pr.Number)
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", pr, err)
	}
	if pullRequest.GetMerged() && pullRequest.GetMergeCommitSHA() != "" {
		return pullRequest.GetMergeCommitSHA(), nil
	}

	repoKey := pr.Org + "/" + pr.Repo
	commits, ok := c.commits[repoKey]
	if !ok {
		commits, _, err = c.client.ListCommits(ctx, pr.Org, pr.Repo, &github.CommitsListOptions{ListOptions: github.ListOptions{PerPage: 100}})
		if err != nil {
			return "", fmt.Errorf("failed to list commits of %s: %w", repoKey, err)
		}
		c.commits[repoKey] = commits
	}
	reference := fmt.Sprintf("#%d", pr.Number)
	for _, commit := range commits {
		if strings.Contains(commit.GetCommit().GetMessage(), reference) {
			return commit.GetSHA(), nil
		}
	}
	return "", fmt.Errorf("no commit referencing %s found among the %d most recent commits of %s", reference, len(commits), repoKey)
}

// Classify asks the compare API how the published sha relates to the PR's
// merge sha and maps its ternary answer. No ancestry computation happens
// here.
func (c *Checker) Classify(ctx context.Context, pr PullRequest, mergeSHA, publishedSHA string) (Status, error) {
	comparison, _, err := c.client.CompareCommits(ctx, pr.Org, pr.Repo, mergeSHA, publishedSHA, &github.ListOptions{PerPage: 1})
	if err != nil {
		return "", fmt.Errorf("failed to compare %s..%s in %s/%s: %w", mergeSHA, publishedSHA, pr.Org, pr.Repo, err)
	}
	switch status := comparison.GetStatus(); status {
	case "ahead", "identical":
		return StatusInBuild, nil
	case "behind":
		return StatusNotInBuild, nil
	case "diverged":
		return StatusDiverged, nil
	default:
		return "", fmt.Errorf("compare API returned unexpected status %q for %s", status, pr)
	}
}

// Check is the full path for one PR against a repository-to-sha association.
func (c *Checker) Check(ctx context.Context, pr PullRequest, published map[string]string) (Status, error) {
	publishedSHA, ok := published[pr.Org+"/"+pr.Repo]
	if !ok {
		return "", fmt.Errorf("no published sha recorded for %s/%s", pr.Org, pr.Repo)
	}
	mergeSHA, err := c.ResolveMergeSHA(ctx, pr)
	if err != nil {
		return "", err
	}
	return c.Classify(ctx, pr, mergeSHA, publishedSHA)
}
