package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v66/github"
	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"golang.org/x/oauth2"

	prowConfig "sigs.k8s.io/prow/pkg/config"
	"sigs.k8s.io/prow/pkg/config/secret"
	prowflagutil "sigs.k8s.io/prow/pkg/flagutil"
	"sigs.k8s.io/prow/pkg/interrupts"
	"sigs.k8s.io/prow/pkg/logrusutil"
	"sigs.k8s.io/prow/pkg/metrics"

	"github.com/stolostron/release-tools/pkg/api"
	"github.com/stolostron/release-tools/pkg/githost"
	"github.com/stolostron/release-tools/pkg/konfluxclient"
	"github.com/stolostron/release-tools/pkg/notify"
	"github.com/stolostron/release-tools/pkg/registry"
)

type options struct {
	configFile string
	kubeconfig string
	namespace  string

	slackTokenPath string
	slackChannel   string

	githubTokenPath string
	nudgeRepo       string

	jsonOutput        bool
	skipImageAge      bool
	retriggerFailures bool
	dryRun            bool
	runOnce           bool
	intervalRaw       string
	interval          time.Duration
	quayUsername      string
	quayPasswordPath  string
}

func (o *options) Validate() error {
	if o.slackChannel != "" && o.slackTokenPath == "" {
		return fmt.Errorf("--slack-token-path is required when --slack-channel is set")
	}
	if o.nudgeRepo != "" && !strings.Contains(o.nudgeRepo, "/") {
		return fmt.Errorf("--nudge-repo must be of the form org/repo")
	}
	return nil
}

func (o *options) complete() error {
	var err error
	o.interval, err = time.ParseDuration(o.intervalRaw)
	if err != nil {
		return fmt.Errorf("invalid --interval: %w", err)
	}
	return nil
}

func gatherOptions() options {
	o := options{}
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	fs.StringVar(&o.configFile, "config-file", "", "Path to the release config YAML. The built-in release list is used if not set.")
	fs.StringVar(&o.kubeconfig, "kubeconfig", "", "Path to the kubeconfig for the Konflux cluster.")
	fs.StringVar(&o.namespace, "namespace", konfluxclient.DefaultNamespace, "Tenant namespace holding the Konflux resources.")
	fs.StringVar(&o.slackTokenPath, "slack-token-path", "", "Path to the file containing the Slack token to use.")
	fs.StringVar(&o.slackChannel, "slack-channel", "", "Slack channel ID to post the report to. No posting if not set.")
	fs.StringVar(&o.githubTokenPath, "github-token-path", "", "Path to the file containing the GitHub token to use for nudge branch checks.")
	fs.StringVar(&o.nudgeRepo, "nudge-repo", "stolostron/acm-mce-operator-catalogs", "Repository to check for stale nudge branches. Empty disables the check.")
	fs.BoolVar(&o.jsonOutput, "json", false, "Emit the report as JSON instead of text.")
	fs.BoolVar(&o.skipImageAge, "skip-image-age", false, "Skip the per-component registry inspections.")
	fs.BoolVar(&o.retriggerFailures, "retrigger-failures", false, "Retrigger builds of components whose latest push pipeline failed.")
	fs.BoolVar(&o.dryRun, "dry-run", true, "Dry run for testing. Uses API tokens but does not mutate.")
	fs.BoolVar(&o.runOnce, "run-once", true, "If true, run only once then quit.")
	fs.StringVar(&o.intervalRaw, "interval", "30m", "Parseable duration string that specifies the scan period")
	fs.StringVar(&o.quayUsername, "quay-username", "", "Quay username for the bundle repository API.")
	fs.StringVar(&o.quayPasswordPath, "quay-password-path", "", "Path to the file containing the Quay password.")

	if err := fs.Parse(os.Args[1:]); err != nil {
		logrus.WithError(err).Fatal("could not parse input")
	}
	return o
}

func main() {
	logrusutil.ComponentInit()

	o := gatherOptions()
	if err := o.complete(); err != nil {
		logrus.WithError(err).Fatal("failed to complete options")
	}
	if err := o.Validate(); err != nil {
		logrus.WithError(err).Fatal("failed to validate options")
	}

	var tokens []string
	for _, path := range []string{o.slackTokenPath, o.githubTokenPath, o.quayPasswordPath} {
		if path != "" {
			tokens = append(tokens, path)
		}
	}
	if len(tokens) > 0 {
		if err := secret.Add(tokens...); err != nil {
			logrus.WithError(err).Fatal("Error starting secrets agent.")
		}
	}

	config := api.DefaultConfig()
	if o.configFile != "" {
		var err error
		config, err = api.LoadConfig(o.configFile)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to load the release config.")
		}
	}

	kubeConfig, err := konfluxclient.LoadKubeConfig(o.kubeconfig)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load the kubeconfig.")
	}
	cluster, err := konfluxclient.NewClient(kubeConfig, o.namespace, logrus.WithField("component", "konfluxclient"))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create the cluster client.")
	}

	inspector, err := registry.NewInspector(logrus.WithField("component", "inspector"))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up skopeo.")
	}

	var quayOpts []registry.QuayClientOpt
	if o.quayUsername != "" && o.quayPasswordPath != "" {
		quayOpts = append(quayOpts, registry.WithBasicAuth(o.quayUsername, string(secret.GetSecret(o.quayPasswordPath))))
	}
	quay := registry.NewQuayClient(quayOpts...)

	scanOpts := []notify.ScanOption{notify.WithDryRun(o.dryRun)}
	if o.skipImageAge {
		scanOpts = append(scanOpts, notify.WithSkipImageAge())
	}
	if o.nudgeRepo != "" {
		org, repo, _ := strings.Cut(o.nudgeRepo, "/")
		client := gogithub.NewClient(nil)
		if o.githubTokenPath != "" {
			tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: string(secret.GetSecret(o.githubTokenPath))})
			client = gogithub.NewClient(oauth2.NewClient(context.Background(), tokenSource))
		}
		logger := logrus.WithField("repository", o.nudgeRepo)
		scanOpts = append(scanOpts, notify.WithBranchChecker(func(ctx context.Context, now time.Time) ([]githost.NudgeBranch, error) {
			return githost.StaleNudgeBranches(ctx, client.Repositories, org, repo, now, logger)
		}))
	}
	scanner := notify.NewScanner(cluster, quay, inspector, logrus.WithField("component", "scanner"), scanOpts...)

	var slackClient *slack.Client
	if o.slackChannel != "" {
		slackClient = slack.New(string(secret.GetSecret(o.slackTokenPath)))
	}

	ctx := interrupts.Context()
	run := func() { scan(ctx, scanner, config.Releases, slackClient, o) }

	if o.runOnce {
		run()
		return
	}
	if err := notify.RegisterMetrics(); err != nil {
		logrus.WithError(err).Fatal("Failed to register metrics.")
	}
	metrics.ExposeMetrics("build-notifier", prowConfig.PushGateway{}, prowflagutil.DefaultMetricsPort)
	// Tick runs the first scan immediately.
	interrupts.Tick(run, func() time.Duration { return o.interval })
	interrupts.WaitForGracefulShutdown()
}

func scan(ctx context.Context, scanner *notify.Scanner, releases []api.Release, slackClient *slack.Client, o options) {
	started := time.Now()
	report := scanner.Scan(ctx, releases)
	notify.ObserveScanDuration(time.Since(started).Seconds())
	notify.RecordReportHealth(report)

	if o.retriggerFailures {
		retriggered, err := scanner.RetriggerFailures(ctx, report)
		if err != nil {
			logrus.WithError(err).Error("Failed to retrigger failing builds.")
		}
		if len(retriggered) > 0 {
			logrus.Infof("Retriggered builds: %s", strings.Join(retriggered, ", "))
		}
	}

	if o.jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			logrus.WithError(err).Error("Failed to write the JSON report.")
		}
	} else {
		if err := notify.WriteText(os.Stdout, report); err != nil {
			logrus.WithError(err).Error("Failed to write the report.")
		}
	}

	if slackClient != nil {
		if o.dryRun {
			logrus.Info("[dry-run] Would post the report to Slack.")
			return
		}
		if err := notify.Post(slackClient, o.slackChannel, report, logrus.WithField("component", "slack")); err != nil {
			logrus.WithError(err).Error("Failed to post the report to Slack.")
		}
	}
}
