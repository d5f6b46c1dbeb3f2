package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	prowflagutil "sigs.k8s.io/prow/pkg/flagutil"
	"sigs.k8s.io/prow/pkg/github"
	"sigs.k8s.io/prow/pkg/logrusutil"

	"github.com/stolostron/release-tools/pkg/policy"
)

type githubClient interface {
	GetPullRequest(org, repo string, number int) (*github.PullRequest, error)
	GetPullRequestChanges(org, repo string, number int) ([]github.PullRequestChange, error)
	CreateComment(org, repo string, number int, comment string) error
}

type options struct {
	github prowflagutil.GitHubOptions

	org        string
	repo       string
	number     int
	mode       string
	commitType string
	comment    bool
	dryRun     bool
}

func (o *options) Validate() error {
	if o.org == "" || o.repo == "" || o.number == 0 {
		return fmt.Errorf("--org, --repo and --pr are required")
	}
	switch policy.Mode(o.mode) {
	case policy.ModeCodeLockdown, policy.ModeFeatureComplete:
	default:
		return fmt.Errorf("--mode must be %s or %s", policy.ModeCodeLockdown, policy.ModeFeatureComplete)
	}
	switch policy.CommitType(o.commitType) {
	case policy.CommitTypeBugfix, policy.CommitTypeFeature, "":
	default:
		return fmt.Errorf("--commit-type must be %s or %s", policy.CommitTypeBugfix, policy.CommitTypeFeature)
	}
	return o.github.Validate(o.dryRun)
}

func gatherOptions() options {
	o := options{}
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	fs.StringVar(&o.org, "org", "", "Organization of the pull request's repository.")
	fs.StringVar(&o.repo, "repo", "", "Name of the pull request's repository.")
	fs.IntVar(&o.number, "pr", 0, "Number of the pull request to verify.")
	fs.StringVar(&o.mode, "mode", string(policy.ModeFeatureComplete), "Release phase the repository is in.")
	fs.StringVar(&o.commitType, "commit-type", "", "Declared intent of the change. Derived from the pull request title if not set.")
	fs.BoolVar(&o.comment, "comment", false, "Comment the verdict on the pull request.")
	fs.BoolVar(&o.dryRun, "dry-run", true, "Dry run for testing. Uses API tokens but does not mutate.")

	o.github.AddFlags(fs)

	if err := fs.Parse(os.Args[1:]); err != nil {
		logrus.WithError(err).Fatal("could not parse input")
	}
	return o
}

// commitTypeFromTitle falls back to the conventional-commit prefix of the PR
// title: fix-prefixed changes are bug fixes, everything else counts as a
// feature.
func commitTypeFromTitle(title string) policy.CommitType {
	lowered := strings.ToLower(strings.TrimSpace(title))
	if strings.HasPrefix(lowered, "fix") || strings.HasPrefix(lowered, ":bug:") {
		return policy.CommitTypeBugfix
	}
	return policy.CommitTypeFeature
}

type fileVerdict struct {
	path    string
	class   policy.Class
	verdict policy.Verdict
}

func verify(client githubClient, o options) ([]fileVerdict, policy.CommitType, error) {
	commitType := policy.CommitType(o.commitType)
	if commitType == "" {
		pr, err := client.GetPullRequest(o.org, o.repo, o.number)
		if err != nil {
			return nil, "", fmt.Errorf("failed to get PR %s/%s#%d: %w", o.org, o.repo, o.number, err)
		}
		commitType = commitTypeFromTitle(pr.Title)
	}

	changes, err := client.GetPullRequestChanges(o.org, o.repo, o.number)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get changes of PR %s/%s#%d: %w", o.org, o.repo, o.number, err)
	}
	var verdicts []fileVerdict
	for _, change := range changes {
		class := policy.Classify(change.Filename)
		verdict, err := policy.Decide(policy.Mode(o.mode), class, commitType)
		if err != nil {
			return nil, "", err
		}
		verdicts = append(verdicts, fileVerdict{path: change.Filename, class: class, verdict: verdict})
	}
	return verdicts, commitType, nil
}

func renderComment(verdicts []fileVerdict, mode string, commitType policy.CommitType, violations int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Merge policy verification (mode `%s`, change type `%s`):\n\n", mode, commitType)
	fmt.Fprintf(&b, "| File | Class | Verdict |\n|---|---|---|\n")
	for _, v := range verdicts {
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n", v.path, v.class, v.verdict)
	}
	if violations > 0 {
		fmt.Fprintf(&b, "\n%d file(s) violate the current merge policy.\n", violations)
	} else {
		fmt.Fprintf(&b, "\nAll files conform to the current merge policy.\n")
	}
	return b.String()
}

func main() {
	logrusutil.ComponentInit()

	o := gatherOptions()
	if err := o.Validate(); err != nil {
		logrus.WithError(err).Fatal("failed to validate options")
	}

	client, err := o.github.GitHubClient(o.dryRun)
	if err != nil {
		logrus.WithError(err).Fatal("Error creating github client")
	}

	verdicts, commitType, err := verify(client, o)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to verify the pull request.")
	}

	violations := 0
	for _, v := range verdicts {
		fmt.Printf("%-10s %-13s %s\n", v.verdict, v.class, v.path)
		if v.verdict == policy.VerdictViolation {
			violations++
		}
	}

	if o.comment {
		comment := renderComment(verdicts, o.mode, commitType, violations)
		if o.dryRun {
			logrus.Info("[dry-run] Would comment the verdict on the pull request.")
		} else if err := client.CreateComment(o.org, o.repo, o.number, comment); err != nil {
			logrus.WithError(err).Error("Failed to comment on the pull request.")
		}
	}

	if violations > 0 {
		logrus.Errorf("%d file(s) violate the %s merge policy.", violations, o.mode)
		os.Exit(1)
	}
	logrus.Infof("All %d changed file(s) conform to the %s merge policy.", len(verdicts), o.mode)
}
