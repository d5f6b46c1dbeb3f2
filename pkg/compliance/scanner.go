// Package compliance scans Konflux components for conformance with the
// build policy: hermetic builds, Enterprise Contract, multi-arch support and
// a healthy push pipeline backed by a fresh promoted image.
package compliance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sigs.k8s.io/prow/pkg/github"

	"github.com/stolostron/release-tools/pkg/api"
	"github.com/stolostron/release-tools/pkg/githost"
	"github.com/stolostron/release-tools/pkg/konfluxclient"
	"github.com/stolostron/release-tools/pkg/registry"
)

// Promotion status cells. The status and freshness halves share one report
// column, separated by a comma.
const (
	PromotionCurrent          = api.StatusSucceeded + ",Current"
	PromotionStale            = api.StatusSucceeded + ",Stale"
	PromotionInspectionFailed = api.SentinelInspectionFailure + "," + api.StatusFailed
)

// Image labels carrying the git provenance of a build.
const (
	labelVCSURL = "vcs-url"
	labelVCSRef = "vcs-ref"
)

type clusterClient interface {
	ComponentsForApplication(ctx context.Context, application string) ([]konfluxclient.Component, error)
	PushPipelineRuns(ctx context.Context, component string) ([]konfluxclient.PipelineRun, error)
}

type checkRunClient interface {
	ListCheckRuns(org, repo, ref string) (*github.CheckRunList, error)
}

// Scanner produces one ComplianceRecord per component. Every external lookup
// degrades to a sentinel or an unfavorable value instead of aborting: a scan
// records what it saw and moves on.
type Scanner struct {
	cluster   clusterClient
	inspector registry.Inspector
	// checkRuns may be nil, in which case Enterprise Contract compliance is
	// recorded as unfavorable for every component.
	checkRuns checkRunClient
	// fileGetterFactory returns a getter for a repository's pipeline
	// definitions, overridable for testing.
	fileGetterFactory func(org, repo, branch string) githost.FileGetter
	// ecCheckName is matched as a substring of check run names.
	ecCheckName     string
	defaultBranch   string
	componentFilter string
	now             func() time.Time
	logger          *logrus.Entry
}

// ScannerOption customizes a Scanner.
type ScannerOption func(*Scanner)

func WithComponentFilter(filter string) ScannerOption {
	return func(s *Scanner) { s.componentFilter = filter }
}

func WithCheckRunClient(client checkRunClient, ecCheckName string) ScannerOption {
	return func(s *Scanner) {
		s.checkRuns = client
		if ecCheckName != "" {
			s.ecCheckName = ecCheckName
		}
	}
}

func WithFileGetterFactory(factory func(org, repo, branch string) githost.FileGetter) ScannerOption {
	return func(s *Scanner) { s.fileGetterFactory = factory }
}

func withNow(now func() time.Time) ScannerOption {
	return func(s *Scanner) { s.now = now }
}

// NewScanner builds a Scanner over a cluster and a registry inspector.
func NewScanner(cluster clusterClient, inspector registry.Inspector, logger *logrus.Entry, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		cluster:   cluster,
		inspector: inspector,
		fileGetterFactory: func(org, repo, branch string) githost.FileGetter {
			return githost.FileGetterFactory(org, repo, branch)
		},
		ecCheckName:   "enterprise-contract",
		defaultBranch: "main",
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan checks every component of an application whose name matches the
// component filter.
func (s *Scanner) Scan(ctx context.Context, application string) ([]api.ComplianceRecord, error) {
	components, err := s.cluster.ComponentsForApplication(ctx, application)
	if err != nil {
		return nil, fmt.Errorf("failed to list components of %s: %w", application, err)
	}
	var records []api.ComplianceRecord
	for _, component := range components {
		if s.componentFilter != "" && !strings.Contains(component.Name, s.componentFilter) {
			continue
		}
		records = append(records, s.Check(ctx, component))
	}
	return records, nil
}

// Check produces the compliance record of a single component.
func (s *Scanner) Check(ctx context.Context, component konfluxclient.Component) api.ComplianceRecord {
	logger := s.logger.WithField("component", component.Name)
	record := api.ComplianceRecord{
		Component: component.Name,
		LogsURL:   consoleURL(component.Application, component.Name),
	}
	record.PushPipelineStatus = s.pushPipelineStatus(ctx, component.Name, logger)

	if component.LastPromotedImage == "" {
		record.PromotionStatus = api.StatusNoImage
		return record
	}

	info, err := s.inspector.Inspect(component.LastPromotedImage)
	if err != nil || len(info.Labels) == 0 {
		if err != nil {
			logger.WithError(err).Warn("Image inspection failed.")
		} else {
			logger.Warn("Image carries no labels.")
		}
		record.PromotionStatus = PromotionInspectionFailed
		return record
	}

	created, err := info.CreatedTime()
	if err != nil {
		logger.WithError(err).Warn("Could not determine image creation time.")
	}
	record.BuildTimestamp = created
	if registry.IsStale(created, s.now()) {
		record.PromotionStatus = PromotionStale
	} else {
		record.PromotionStatus = PromotionCurrent
	}

	org, repo, err := parseVCSURL(info.Labels[labelVCSURL])
	if err != nil {
		logger.WithError(err).Warn("Image carries no usable git provenance, skipping pipeline definition checks.")
		return record
	}

	s.checkPipelineDefinition(org, repo, component.Name, &record, logger)
	record.ContractCompliant = s.contractCompliant(org, repo, info.Labels[labelVCSRef], logger)
	return record
}

// checkPipelineDefinition fetches the component's push pipeline definition
// and records the hermetic and multi-arch parameters. The push variant is
// authoritative; the pull-request variant is only consulted when no push
// definition exists.
func (s *Scanner) checkPipelineDefinition(org, repo, component string, record *api.ComplianceRecord, logger *logrus.Entry) {
	getter := s.fileGetterFactory(org, repo, s.defaultBranch)
	for _, suffix := range []string{"push", "pull-request"} {
		path := fmt.Sprintf(".tekton/%s-%s.yaml", component, suffix)
		data, err := getter(path)
		if err != nil {
			logger.WithError(err).WithField("path", path).Warn("Failed to fetch pipeline definition.")
			return
		}
		if data == nil {
			continue
		}
		definition, err := ParsePipelineDefinition(data)
		if err != nil {
			logger.WithError(err).WithField("path", path).Warn("Failed to parse pipeline definition.")
			return
		}
		record.Hermetic = definition.Hermetic()
		record.MultiArch = definition.MultiArch()
		record.DefinitionURL = fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", org, repo, s.defaultBranch, path)
		return
	}
	logger.Warn("No pipeline definition found under .tekton.")
}

func (s *Scanner) contractCompliant(org, repo, ref string, logger *logrus.Entry) bool {
	if s.checkRuns == nil || ref == "" {
		return false
	}
	checkRuns, err := s.checkRuns.ListCheckRuns(org, repo, ref)
	if err != nil {
		logger.WithError(err).Warn("Failed to list check runs.")
		return false
	}
	for _, run := range checkRuns.CheckRuns {
		if strings.Contains(run.Name, s.ecCheckName) {
			return run.Conclusion == "success"
		}
	}
	return false
}

func (s *Scanner) pushPipelineStatus(ctx context.Context, component string, logger *logrus.Entry) string {
	runs, err := s.cluster.PushPipelineRuns(ctx, component)
	if err != nil {
		logger.WithError(err).Warn("Failed to list push pipeline runs.")
		return api.StatusUnknown
	}
	if len(runs) == 0 {
		return api.StatusUnknown
	}
	latest := runs[len(runs)-1]
	switch {
	case latest.Succeeded == nil:
		return api.StatusProgressing
	case *latest.Succeeded:
		return api.StatusSucceeded
	default:
		return api.StatusFailed
	}
}

// parseVCSURL reduces a vcs-url label like https://github.com/stolostron/foo
// to its org and repo.
func parseVCSURL(url string) (string, string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(url, "/"), ".git")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 || parts[len(parts)-1] == "" || parts[len(parts)-2] == "" {
		return "", "", fmt.Errorf("cannot determine org/repo from vcs-url %q", url)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

func consoleURL(application, component string) string {
	return fmt.Sprintf("https://console.redhat.com/application-pipeline/workspaces/crt-redhat-acm/applications/%s/components/%s", application, component)
}
