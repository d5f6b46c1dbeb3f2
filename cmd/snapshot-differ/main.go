package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	gogithub "github.com/google/go-github/v66/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"sigs.k8s.io/prow/pkg/config/secret"
	"sigs.k8s.io/prow/pkg/interrupts"
	"sigs.k8s.io/prow/pkg/logrusutil"

	"github.com/stolostron/release-tools/pkg/snapshot"
)

const manifestPrefix = "manifest-"

type options struct {
	org    string
	repo   string
	branch string

	oldSnapshot string
	newSnapshot string

	cacheDir     string
	forceRefresh bool
	jsonOutput   bool

	githubTokenPath string
}

func (o *options) Validate() error {
	if o.branch == "" {
		return fmt.Errorf("--branch is required")
	}
	if (o.oldSnapshot == "") != (o.newSnapshot == "") {
		return fmt.Errorf("--old and --new must be passed together")
	}
	return nil
}

func gatherOptions() options {
	o := options{}
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	fs.StringVar(&o.org, "org", "stolostron", "Organization of the pipeline repository.")
	fs.StringVar(&o.repo, "repo", "pipeline", "Name of the pipeline repository.")
	fs.StringVar(&o.branch, "branch", "", "Pipeline repository branch to read snapshots from, e.g. 2.14-integration.")
	fs.StringVar(&o.oldSnapshot, "old", "", "Older snapshot manifest name. Defaults to the second newest.")
	fs.StringVar(&o.newSnapshot, "new", "", "Newer snapshot manifest name. Defaults to the newest.")
	fs.StringVar(&o.cacheDir, "cache-dir", filepath.Join(os.TempDir(), "snapshot-differ"), "Directory to cache fetched snapshots in. Empty disables caching.")
	fs.BoolVar(&o.forceRefresh, "force-refresh", false, "Fetch snapshots from the repository even when cached.")
	fs.BoolVar(&o.jsonOutput, "json", false, "Emit the diff as JSON instead of text.")
	fs.StringVar(&o.githubTokenPath, "github-token-path", "", "Path to the file containing the GitHub token to use.")

	if err := fs.Parse(os.Args[1:]); err != nil {
		logrus.WithError(err).Fatal("could not parse input")
	}
	return o
}

type report struct {
	Old     string                       `json:"old"`
	New     string                       `json:"new"`
	Diff    snapshot.Diff                `json:"diff"`
	Commits map[string][]snapshot.Commit `json:"commits,omitempty"`
}

func main() {
	logrusutil.ComponentInit()

	o := gatherOptions()
	if err := o.Validate(); err != nil {
		logrus.WithError(err).Fatal("failed to validate options")
	}

	client := gogithub.NewClient(nil)
	if o.githubTokenPath != "" {
		if err := secret.Add(o.githubTokenPath); err != nil {
			logrus.WithError(err).Fatal("Error starting secrets agent.")
		}
		tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: string(secret.GetSecret(o.githubTokenPath))})
		client = gogithub.NewClient(oauth2.NewClient(context.Background(), tokenSource))
	}

	sourceOpts := []snapshot.SourceOption{}
	if o.cacheDir != "" {
		cache, err := snapshot.NewCache(o.cacheDir)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to set up the snapshot cache.")
		}
		sourceOpts = append(sourceOpts, snapshot.WithCache(cache, o.forceRefresh))
	}
	source := snapshot.NewSource(client.Repositories, o.org, o.repo, o.branch, logrus.WithField("branch", o.branch), sourceOpts...)

	ctx := interrupts.Context()
	oldName, newName := o.oldSnapshot, o.newSnapshot
	if oldName == "" {
		var err error
		oldName, newName, err = latestPair(ctx, source)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to determine the snapshots to compare.")
		}
	}
	logrus.Infof("Comparing %s to %s.", oldName, newName)

	oldEntries, err := fetchManifest(ctx, source, oldName)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load the old snapshot.")
	}
	newEntries, err := fetchManifest(ctx, source, newName)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load the new snapshot.")
	}

	diff := snapshot.Compare(oldEntries, newEntries)
	commits := snapshot.GroupCommits(ctx, client.Repositories, diff.Changed, logrus.WithField("component", "commits"))

	if o.jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report{Old: oldName, New: newName, Diff: diff, Commits: commits}); err != nil {
			logrus.WithError(err).Fatal("Failed to write the JSON report.")
		}
		return
	}
	printText(oldName, newName, diff, commits)
}

// latestPair returns the two newest manifest names of the branch.
func latestPair(ctx context.Context, source *snapshot.Source) (string, string, error) {
	names, err := source.List(ctx, "snapshots")
	if err != nil {
		return "", "", err
	}
	var manifests []string
	for _, name := range names {
		if len(name) > len(manifestPrefix) && name[:len(manifestPrefix)] == manifestPrefix {
			manifests = append(manifests, name)
		}
	}
	if len(manifests) < 2 {
		return "", "", fmt.Errorf("need at least two manifests to compare, found %d", len(manifests))
	}
	return manifests[len(manifests)-2], manifests[len(manifests)-1], nil
}

func fetchManifest(ctx context.Context, source *snapshot.Source, name string) ([]snapshot.Entry, error) {
	data, err := source.Fetch(ctx, "snapshots/"+name)
	if err != nil {
		return nil, err
	}
	return snapshot.ParseManifest(data)
}

func printText(oldName, newName string, diff snapshot.Diff, commits map[string][]snapshot.Commit) {
	fmt.Printf("Snapshot diff %s -> %s\n\n", oldName, newName)
	if diff.Empty() {
		fmt.Println("The snapshots reference identical images.")
		return
	}
	for _, entry := range diff.Added {
		fmt.Printf("added   %s (%s)\n", entry.ImageKey, entry.Image())
	}
	for _, entry := range diff.Removed {
		fmt.Printf("removed %s\n", entry.ImageKey)
	}
	for _, change := range diff.Changed {
		fmt.Printf("changed %s\n", change.ImageKey)
		for _, commit := range commits[change.GitRepository] {
			if commit.SHA == "" {
				fmt.Printf("    %s\n", commit.Message)
				continue
			}
			fmt.Printf("    %.9s %s (%s)\n", commit.SHA, commit.Message, commit.Author)
		}
	}
}
