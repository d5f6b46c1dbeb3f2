package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/sirupsen/logrus"
)

// Commit is one git commit between two snapshot states of a repository.
type Commit struct {
	SHA     string
	Message string
	Author  string
	Date    time.Time
}

type compareClient interface {
	CompareCommits(ctx context.Context, owner, repo, base, head string, opts *github.ListOptions) (*github.CommitsComparison, *github.Response, error)
}

// GroupCommits collects, per repository, the commits between the old and new
// snapshot state of every changed component that carries git provenance. The
// ancestry walk is the code host's; this only groups its answer. A repository
// whose comparison fails is reported with an error marker commit rather than
// failing the whole grouping.
func GroupCommits(ctx context.Context, client compareClient, changes []Change, logger *logrus.Entry) map[string][]Commit {
	grouped := map[string][]Commit{}
	seen := map[string]bool{}
	for _, change := range changes {
		if change.GitRepository == "" || change.OldSHA == "" || change.NewSHA == "" || change.OldSHA == change.NewSHA {
			continue
		}
		// Several image keys may share one repository and sha pair.
		rangeKey := fmt.Sprintf("%s@%s..%s", change.GitRepository, change.OldSHA, change.NewSHA)
		if seen[rangeKey] {
			continue
		}
		seen[rangeKey] = true

		org, repo, ok := strings.Cut(change.GitRepository, "/")
		if !ok {
			logger.WithField("repository", change.GitRepository).Warn("Malformed repository in manifest, skipping.")
			continue
		}
		comparison, _, err := client.CompareCommits(ctx, org, repo, change.OldSHA, change.NewSHA, &github.ListOptions{PerPage: 100})
		if err != nil {
			logger.WithError(err).WithField("repository", change.GitRepository).Warn("Failed to compare commits.")
			grouped[change.GitRepository] = append(grouped[change.GitRepository], Commit{Message: fmt.Sprintf("comparison failed: %v", err)})
			continue
		}
		for _, commit := range comparison.Commits {
			grouped[change.GitRepository] = append(grouped[change.GitRepository], Commit{
				SHA:     commit.GetSHA(),
				Message: firstLine(commit.GetCommit().GetMessage()),
				Author:  commit.GetCommit().GetAuthor().GetName(),
				Date:    commit.GetCommit().GetAuthor().GetDate().Time,
			})
		}
	}
	for repository := range grouped {
		commits := grouped[repository]
		sort.Slice(commits, func(i, j int) bool { return commits[i].Date.Before(commits[j].Date) })
	}
	return grouped
}

func firstLine(message string) string {
	if idx := strings.IndexByte(message, '\n'); idx != -1 {
		return message[:idx]
	}
	return message
}
