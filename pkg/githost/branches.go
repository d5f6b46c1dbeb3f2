package githost

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/sirupsen/logrus"
)

// nudgeBranchPattern matches the branches the build service pushes to nudge
// catalog component updates. They are deleted automatically once the update
// merges, so an old one signals a stuck update.
var nudgeBranchPattern = regexp.MustCompile(`^konflux/component-updates/.*-dev-catalog-component-update-.*-operator-bundle-.*$`)

// staleNudgeAge is how long a nudge branch may exist before it is reported.
const staleNudgeAge = 2 * time.Hour

// NudgeBranch is one stale component-update branch.
type NudgeBranch struct {
	Name      string    `json:"name"`
	SHA       string    `json:"sha"`
	Committed time.Time `json:"committed"`
	Age       string    `json:"age"`
}

type branchClient interface {
	ListBranches(ctx context.Context, owner, repo string, opts *github.BranchListOptions) ([]*github.Branch, *github.Response, error)
	GetBranch(ctx context.Context, owner, repo, branch string, maxRedirects int) (*github.Branch, *github.Response, error)
}

// StaleNudgeBranches lists the nudge branches of a repository older than two
// hours. The branch listing carries no commit dates, so each matching branch
// costs one extra lookup.
func StaleNudgeBranches(ctx context.Context, client branchClient, owner, repo string, now time.Time, logger *logrus.Entry) ([]NudgeBranch, error) {
	var stale []NudgeBranch
	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		branches, resp, err := client.ListBranches(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list branches of %s/%s: %w", owner, repo, err)
		}
		for _, branch := range branches {
			name := branch.GetName()
			if !nudgeBranchPattern.MatchString(name) {
				continue
			}
			detail, _, err := client.GetBranch(ctx, owner, repo, name, 0)
			if err != nil {
				logger.WithError(err).WithField("branch", name).Warn("Failed to get branch details.")
				continue
			}
			committed := detail.GetCommit().GetCommit().GetCommitter().GetDate().Time
			if committed.IsZero() {
				logger.WithField("branch", name).Warn("Branch has no commit date.")
				continue
			}
			if age := now.Sub(committed); age > staleNudgeAge {
				stale = append(stale, NudgeBranch{
					Name:      name,
					SHA:       detail.GetCommit().GetSHA(),
					Committed: committed,
					Age:       age.Round(time.Minute).String(),
				})
			}
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Committed.Before(stale[j].Committed) })
	return stale, nil
}
