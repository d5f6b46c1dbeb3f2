package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	prowflagutil "sigs.k8s.io/prow/pkg/flagutil"
	"sigs.k8s.io/prow/pkg/logrusutil"

	"github.com/stolostron/release-tools/pkg/api"
	"github.com/stolostron/release-tools/pkg/compliance"
	"github.com/stolostron/release-tools/pkg/jiraissues"
)

const reportPrefix = "compliance-"

type options struct {
	jira prowflagutil.JiraOptions

	inputDir string
	project  string
	dryRun   bool
}

func (o *options) Validate() error {
	if o.inputDir == "" {
		return fmt.Errorf("--input-dir is required")
	}
	if o.project == "" {
		return fmt.Errorf("--project is required")
	}
	return o.jira.Validate(o.dryRun)
}

func gatherOptions() options {
	o := options{}
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	fs.StringVar(&o.inputDir, "input-dir", "", "Directory holding the per-release compliance CSVs.")
	fs.StringVar(&o.project, "project", "ACM", "JIRA project to file placeholder issues in.")
	fs.BoolVar(&o.dryRun, "dry-run", true, "Dry run for testing. Uses API tokens but does not mutate.")

	o.jira.AddFlags(fs)

	if err := fs.Parse(os.Args[1:]); err != nil {
		logrus.WithError(err).Fatal("could not parse input")
	}
	return o
}

// applicationFromReport recovers the application name from a report file name
// like compliance-release-acm-214.csv.
func applicationFromReport(name string) string {
	return strings.TrimSuffix(strings.TrimPrefix(name, reportPrefix), ".csv")
}

func issueText(application string, record api.ComplianceRecord) (summary, description string) {
	summary = fmt.Sprintf("Konflux build of %s is out of compliance", record.Component)
	description = fmt.Sprintf(
		"The compliance scan of %s found %s out of compliance.\n\n"+
			"Promotion: %s\nHermetic: %t\nEnterprise Contract: %t\nMulti-arch: %t\nPush pipeline: %s\n\n"+
			"Pipeline logs: %s",
		application, record.Component,
		record.PromotionStatus, record.Hermetic, record.ContractCompliant, record.MultiArch, record.PushPipelineStatus,
		record.LogsURL)
	return summary, description
}

func main() {
	logrusutil.ComponentInit()

	o := gatherOptions()
	if err := o.Validate(); err != nil {
		logrus.WithError(err).Fatal("failed to validate options")
	}

	prowJiraClient, err := o.jira.Client()
	if err != nil {
		logrus.WithError(err).Fatal("Could not initialize JIRA client.")
	}
	tracker := jiraissues.NewTracker(jiraissues.NewClient(prowJiraClient.JiraClient()), o.project, o.dryRun, logrus.WithField("project", o.project))

	reports, err := filepath.Glob(filepath.Join(o.inputDir, reportPrefix+"*.csv"))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to list compliance reports.")
	}
	if len(reports) == 0 {
		logrus.Fatalf("No %s*.csv reports found in %s.", reportPrefix, o.inputDir)
	}

	failed := false
	for _, report := range reports {
		application := applicationFromReport(filepath.Base(report))
		logger := logrus.WithField("application", application)
		records, err := readReport(report)
		if err != nil {
			logger.WithError(err).Error("Failed to read the compliance report.")
			failed = true
			continue
		}
		for _, record := range records {
			if record.NonCompliant() {
				summary, description := issueText(application, record)
				if _, _, err := tracker.Ensure(record.Component, application, summary, description); err != nil {
					logger.WithError(err).WithField("component", record.Component).Error("Failed to reconcile the placeholder issue.")
					failed = true
				}
				continue
			}
			comment := fmt.Sprintf("The latest compliance scan of %s found %s fully compliant.", application, record.Component)
			if _, err := tracker.CloseResolved(record.Component, application, comment); err != nil {
				logger.WithError(err).WithField("component", record.Component).Error("Failed to close resolved issues.")
				failed = true
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}

func readReport(path string) ([]api.ComplianceRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	return compliance.ReadCSV(file)
}
