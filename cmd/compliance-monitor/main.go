package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"sigs.k8s.io/prow/pkg/flagutil"
	"sigs.k8s.io/prow/pkg/interrupts"
	"sigs.k8s.io/prow/pkg/logrusutil"

	"github.com/stolostron/release-tools/pkg/api"
	"github.com/stolostron/release-tools/pkg/compliance"
	"github.com/stolostron/release-tools/pkg/konfluxclient"
	"github.com/stolostron/release-tools/pkg/registry"
)

type options struct {
	github flagutil.GitHubOptions

	configFile      string
	kubeconfig      string
	namespace       string
	outputDir       string
	componentFilter string
	ecCheckName     string
	maxConcurrency  int
}

func (o *options) Validate() error {
	if o.outputDir == "" {
		return fmt.Errorf("--output-dir is required")
	}
	if o.maxConcurrency < 1 {
		return fmt.Errorf("--max-concurrency must be positive")
	}
	return o.github.Validate(false)
}

func gatherOptions() options {
	o := options{}
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	fs.StringVar(&o.configFile, "config-file", "", "Path to the release config YAML. The built-in release list is used if not set.")
	fs.StringVar(&o.kubeconfig, "kubeconfig", "", "Path to the kubeconfig for the Konflux cluster.")
	fs.StringVar(&o.namespace, "namespace", konfluxclient.DefaultNamespace, "Tenant namespace holding the Konflux resources.")
	fs.StringVar(&o.outputDir, "output-dir", "", "Directory to write the per-release compliance CSVs into.")
	fs.StringVar(&o.componentFilter, "component-filter", "", "Only scan components whose name contains this string.")
	fs.StringVar(&o.ecCheckName, "ec-check-name", "", "Substring identifying the Enterprise Contract check run.")
	fs.IntVar(&o.maxConcurrency, "max-concurrency", 4, "Maximum number of releases scanned in parallel.")

	o.github.AddFlags(fs)

	if err := fs.Parse(os.Args[1:]); err != nil {
		logrus.WithError(err).Fatal("could not parse input")
	}
	return o
}

func main() {
	logrusutil.ComponentInit()

	o := gatherOptions()
	if err := o.Validate(); err != nil {
		logrus.WithError(err).Fatal("failed to validate options")
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

	scannerOpts := []compliance.ScannerOption{compliance.WithComponentFilter(o.componentFilter)}
	if o.github.TokenPath != "" || o.github.AppID != "" {
		githubClient, err := o.github.GitHubClient(false)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to create the GitHub client.")
		}
		scannerOpts = append(scannerOpts, compliance.WithCheckRunClient(githubClient, o.ecCheckName))
	} else {
		logrus.Warn("No GitHub credentials, Enterprise Contract compliance will be recorded as unfavorable.")
	}
	scanner := compliance.NewScanner(cluster, inspector, logrus.WithField("component", "scanner"), scannerOpts...)

	ctx := interrupts.Context()
	if err := compliance.ScanReleases(ctx, scanner, config.Releases, o.outputDir, o.maxConcurrency, logrus.NewEntry(logrus.StandardLogger())); err != nil {
		logrus.WithError(err).Fatal("Compliance scan failed.")
	}
	logrus.Infof("Scanned %d releases into %s.", len(config.Releases), o.outputDir)
}
