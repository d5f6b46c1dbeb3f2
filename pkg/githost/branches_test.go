package githost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v66/github"
	"github.com/sirupsen/logrus"
)

type fakeBranches struct {
	branches map[string]time.Time
	order    []string
}

func (f *fakeBranches) ListBranches(_ context.Context, _, _ string, _ *github.BranchListOptions) ([]*github.Branch, *github.Response, error) {
	var branches []*github.Branch
	for _, name := range f.order {
		branches = append(branches, &github.Branch{Name: github.String(name)})
	}
	return branches, &github.Response{}, nil
}

func (f *fakeBranches) GetBranch(_ context.Context, _, _, branch string, _ int) (*github.Branch, *github.Response, error) {
	committed, ok := f.branches[branch]
	if !ok {
		return nil, nil, errors.New("404 not found")
	}
	detail := &github.Branch{
		Name: github.String(branch),
		Commit: &github.RepositoryCommit{
			SHA: github.String("sha-" + branch[len(branch)-1:]),
			Commit: &github.Commit{
				Committer: &github.CommitAuthor{Date: &github.Timestamp{Time: committed}},
			},
		},
	}
	return detail, nil, nil
}

func TestStaleNudgeBranches(t *testing.T) {
	now := time.Date(2025, 8, 25, 12, 0, 0, 0, time.UTC)
	staleName := "konflux/component-updates/acm-dev-catalog-component-update-acm-operator-bundle-1"
	freshName := "konflux/component-updates/mce-dev-catalog-component-update-mce-operator-bundle-2"
	client := &fakeBranches{
		order: []string{"main", staleName, freshName, "release-2.14"},
		branches: map[string]time.Time{
			staleName: now.Add(-5 * time.Hour),
			freshName: now.Add(-30 * time.Minute),
		},
	}
	stale, err := StaleNudgeBranches(context.Background(), client, "stolostron", "acm-mce-operator-catalogs", now, logrus.WithField("test", t.Name()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []NudgeBranch{{
		Name:      staleName,
		SHA:       "sha-1",
		Committed: now.Add(-5 * time.Hour),
		Age:       "5h0m0s",
	}}
	if diff := cmp.Diff(expected, stale); diff != "" {
		t.Errorf("stale branches differ from expected:\n%s", diff)
	}
}

func TestStaleNudgeBranchesBoundary(t *testing.T) {
	now := time.Date(2025, 8, 25, 12, 0, 0, 0, time.UTC)
	name := "konflux/component-updates/acm-dev-catalog-component-update-acm-operator-bundle-3"
	// Exactly two hours old is not yet stale.
	client := &fakeBranches{order: []string{name}, branches: map[string]time.Time{name: now.Add(-staleNudgeAge)}}
	stale, err := StaleNudgeBranches(context.Background(), client, "stolostron", "acm-mce-operator-catalogs", now, logrus.WithField("test", t.Name()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("expected no stale branches at the boundary, got %v", stale)
	}
}
