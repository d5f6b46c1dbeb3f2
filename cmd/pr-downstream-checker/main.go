package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	gogithub "github.com/google/go-github/v66/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"sigs.k8s.io/prow/pkg/config/secret"
	prowflagutil "sigs.k8s.io/prow/pkg/flagutil"
	"sigs.k8s.io/prow/pkg/interrupts"
	"sigs.k8s.io/prow/pkg/logrusutil"

	"github.com/stolostron/release-tools/pkg/downstream"
	"github.com/stolostron/release-tools/pkg/snapshot"
)

const shaListFile = "down-sha.log"

type options struct {
	pullRequests prowflagutil.Strings
	branches     prowflagutil.Strings

	org             string
	repo            string
	githubTokenPath string
}

func (o *options) Validate() error {
	if len(o.pullRequests.Strings()) == 0 {
		return fmt.Errorf("at least one --pr is required")
	}
	if len(o.branches.Strings()) == 0 {
		return fmt.Errorf("at least one --branch is required")
	}
	return nil
}

func gatherOptions() options {
	o := options{}
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	fs.Var(&o.pullRequests, "pr", "Pull request URL to check. Can be passed multiple times.")
	fs.Var(&o.branches, "branch", "Pipeline repository branch to read published shas from, e.g. 2.14-integration. Can be passed multiple times.")
	fs.StringVar(&o.org, "org", "stolostron", "Organization of the pipeline repository.")
	fs.StringVar(&o.repo, "repo", "pipeline", "Name of the pipeline repository.")
	fs.StringVar(&o.githubTokenPath, "github-token-path", "", "Path to the file containing the GitHub token to use.")

	if err := fs.Parse(os.Args[1:]); err != nil {
		logrus.WithError(err).Fatal("could not parse input")
	}
	return o
}

func githubClient(tokenPath string) (*gogithub.Client, error) {
	if tokenPath == "" {
		return gogithub.NewClient(nil), nil
	}
	if err := secret.Add(tokenPath); err != nil {
		return nil, fmt.Errorf("failed to start the secrets agent: %w", err)
	}
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: string(secret.GetSecret(tokenPath))})
	return gogithub.NewClient(oauth2.NewClient(context.Background(), tokenSource)), nil
}

// publishedShas merges the sha lists of the latest snapshot of every branch.
// A branch whose sha list has not been generated yet is skipped with a
// warning, matching how the snapshots trail the builds.
func publishedShas(ctx context.Context, client *gogithub.Client, o options) map[string]string {
	merged := map[string]string{}
	for _, branch := range o.branches.Strings() {
		logger := logrus.WithField("branch", branch)
		source := snapshot.NewSource(client.Repositories, o.org, o.repo, branch, logger)
		latest, err := source.Latest(ctx, "snapshots", "")
		if err != nil {
			logger.WithError(err).Warn("Failed to find the latest snapshot.")
			continue
		}
		logger.Infof("Latest snapshot: %s", latest)
		data, err := source.Fetch(ctx, fmt.Sprintf("snapshots/%s/%s", latest, shaListFile))
		if err != nil {
			logger.WithError(err).Warnf("The %s of the latest snapshot has not been generated yet.", shaListFile)
			continue
		}
		for repo, sha := range downstream.ParseShaList(string(data), logger) {
			merged[repo] = sha
		}
	}
	return merged
}

func main() {
	logrusutil.ComponentInit()

	o := gatherOptions()
	if err := o.Validate(); err != nil {
		logrus.WithError(err).Fatal("failed to validate options")
	}

	client, err := githubClient(o.githubTokenPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create the GitHub client.")
	}

	ctx := interrupts.Context()
	published := publishedShas(ctx, client, o)
	if len(published) == 0 {
		logrus.Fatal("No published shas found for any branch.")
	}

	checker := downstream.NewCheckerFromGitHub(client)
	failed := false
	for _, url := range o.pullRequests.Strings() {
		pr, err := downstream.ParsePullRequestURL(url)
		if err != nil {
			logrus.WithError(err).Errorf("Skipping %s.", url)
			failed = true
			continue
		}
		status, err := checker.Check(ctx, pr, published)
		if err != nil {
			logrus.WithError(err).Errorf("Failed to check %s.", pr)
			failed = true
			continue
		}
		fmt.Printf("%s: %s\n", pr, status)
	}
	if failed {
		os.Exit(1)
	}
}
