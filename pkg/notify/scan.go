package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stolostron/release-tools/pkg/api"
	"github.com/stolostron/release-tools/pkg/githost"
	"github.com/stolostron/release-tools/pkg/konfluxclient"
	"github.com/stolostron/release-tools/pkg/registry"
)

// releaseHistoryDepth is how many releases per stage are examined: the
// current one and enough history to report the previous outcome while the
// current one progresses.
const releaseHistoryDepth = 3

type clusterClient interface {
	ComponentsForApplication(ctx context.Context, application string) ([]konfluxclient.Component, error)
	Releases(ctx context.Context, application, stage string, limit int) ([]konfluxclient.ReleaseOutcome, error)
	PushPipelineRuns(ctx context.Context, component string) ([]konfluxclient.PipelineRun, error)
	RetriggerBuild(ctx context.Context, component string) error
}

type tagLister interface {
	ListTags(repo string) ([]registry.Tag, error)
}

// branchChecker yields the stale nudge branches of the catalog repository,
// overridable for testing.
type branchChecker func(ctx context.Context, now time.Time) ([]githost.NudgeBranch, error)

// Scanner builds build-health reports for the watched releases.
type Scanner struct {
	cluster   clusterClient
	quay      tagLister
	inspector registry.Inspector
	branches  branchChecker
	// skipImageAge disables the per-component registry round trips; a
	// component then only needs a promoted image to count as ready.
	skipImageAge bool
	dryRun       bool
	now          func() time.Time
	logger       *logrus.Entry
}

type ScanOption func(*Scanner)

func WithBranchChecker(checker branchChecker) ScanOption {
	return func(s *Scanner) { s.branches = checker }
}

func WithSkipImageAge() ScanOption {
	return func(s *Scanner) { s.skipImageAge = true }
}

func WithDryRun(dryRun bool) ScanOption {
	return func(s *Scanner) { s.dryRun = dryRun }
}

func withNow(now func() time.Time) ScanOption {
	return func(s *Scanner) { s.now = now }
}

func NewScanner(cluster clusterClient, quay tagLister, inspector registry.Inspector, logger *logrus.Entry, opts ...ScanOption) *Scanner {
	s := &Scanner{
		cluster:   cluster,
		quay:      quay,
		inspector: inspector,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan examines every given release plus the shared catalog repository
// branches.
func (s *Scanner) Scan(ctx context.Context, releases []api.Release) *Report {
	report := &Report{Timestamp: s.now()}
	if s.branches != nil {
		stale, err := s.branches(ctx, s.now())
		if err != nil {
			s.logger.WithError(err).Warn("Failed to check for stale nudge branches.")
		} else {
			report.StaleNudgeBranches = stale
		}
	}
	for _, release := range releases {
		report.Releases = append(report.Releases, s.scanRelease(ctx, release))
	}
	return report
}

func (s *Scanner) scanRelease(ctx context.Context, release api.Release) ReleaseReport {
	logger := s.logger.WithField("application", release.Application)
	report := ReleaseReport{Release: release}

	components, err := s.cluster.ComponentsForApplication(ctx, release.Application)
	if err != nil {
		logger.WithError(err).Error("Failed to list components.")
		report.Error = err.Error()
		report.Health = HealthFailed
		return report
	}
	for _, component := range components {
		report.Components = append(report.Components, s.componentState(ctx, component, logger))
	}

	report.Development = s.pipelineState(ctx, release.Application, "dev", logger)
	report.Stage = s.pipelineState(ctx, release.Application, "stage", logger)
	report.Bundle = s.bundleState(release, report.Development.Completed, logger)
	report.Catalog = s.catalogState(release, logger)
	report.Health = DetermineHealth(&report)
	return report
}

func (s *Scanner) componentState(ctx context.Context, component konfluxclient.Component, logger *logrus.Entry) ComponentState {
	state := ComponentState{Name: component.Name, LastPromotedImage: component.LastPromotedImage}

	if runs, err := s.cluster.PushPipelineRuns(ctx, component.Name); err != nil {
		logger.WithError(err).WithField("component", component.Name).Warn("Failed to list push pipeline runs.")
	} else {
		if last := konfluxclient.LastSuccessfulPush(runs); last != nil {
			completed := last.Completed
			state.LastSuccessfulPush = &completed
		}
		if failure := konfluxclient.LatestPushFailure(runs); failure != nil {
			state.PushFailureMessage = failure.Message
		}
	}

	if component.LastPromotedImage == "" || s.skipImageAge {
		return state
	}
	info, err := s.inspector.Inspect(component.LastPromotedImage)
	if err != nil {
		logger.WithError(err).WithField("component", component.Name).Warn("Failed to inspect promoted image.")
		return state
	}
	created, err := info.CreatedTime()
	if err != nil || created.IsZero() {
		logger.WithField("component", component.Name).Warn("Promoted image has no usable creation time.")
		return state
	}
	state.StaleKnown = true
	state.Stale = registry.IsStale(created, s.now())
	return state
}

func (s *Scanner) pipelineState(ctx context.Context, application, stage string, logger *logrus.Entry) PipelineState {
	state := PipelineState{Current: api.StatusUnknown}
	outcomes, err := s.cluster.Releases(ctx, application, stage, releaseHistoryDepth)
	if err != nil {
		logger.WithError(err).WithField("stage", stage).Warn("Failed to list releases.")
		state.Message = err.Error()
		return state
	}
	if len(outcomes) == 0 {
		logger.WithField("stage", stage).Warn("No releases found.")
		state.Message = "no releases found"
		return state
	}
	latest := outcomes[0]
	state.Current = latest.Status
	state.Progressing = latest.Progressing
	state.Message = latest.Message
	if latest.Status == api.StatusSucceeded {
		state.Completed = latest.Completed
		if state.Completed.IsZero() {
			state.Completed = latest.Created
		}
	}
	if latest.Progressing && len(outcomes) > 1 {
		previous := outcomes[1]
		state.Previous = &previous
	}
	return state
}

// bundleState checks that the bundle repository serves a version tag newer
// than the latest successful dev release: the bundle build trails the dev
// pipeline, so an older tag means the bundle has not caught up.
func (s *Scanner) bundleState(release api.Release, devCompleted time.Time, logger *logrus.Entry) BundleState {
	state := BundleState{}
	tags, err := s.quay.ListTags(release.BundleRepository)
	if err != nil {
		logger.WithError(err).WithField("repository", release.BundleRepository).Warn("Failed to list bundle tags.")
		state.Error = err.Error()
		return state
	}
	state.Accessible = true
	state.HasRecentVersionTag = registry.HasVersionTagNewerThan(tags, release.Version, devCompleted)
	if newest := registry.NewestTagMatching(tags, func(name string) bool {
		return len(name) >= len(release.Version) && name[:len(release.Version)] == release.Version
	}); newest != nil {
		state.NewestVersionTag = newest.Name
	}
	return state
}

func (s *Scanner) catalogState(release api.Release, logger *logrus.Entry) CatalogState {
	state := CatalogState{}
	ref := fmt.Sprintf("quay.io/%s:latest-%s", release.CatalogRepository, release.Version)
	info, err := s.inspector.Inspect(ref)
	if err != nil {
		logger.WithError(err).WithField("catalog", ref).Warn("Failed to inspect catalog image.")
		state.Error = err.Error()
		return state
	}
	state.DownstreamTags = registry.DownstreamCatalogTags(info, release.Version)
	state.HasDownstream = len(state.DownstreamTags) > 0
	return state
}

// RetriggerFailures asks the build service for a fresh build of every
// component whose latest push pipeline failed. It returns the component
// names that were (or in dry-run mode would have been) retriggered.
func (s *Scanner) RetriggerFailures(ctx context.Context, report *Report) ([]string, error) {
	var retriggered []string
	for _, release := range report.Releases {
		for _, component := range release.Components {
			if component.PushFailureMessage == "" {
				continue
			}
			logger := s.logger.WithField("component", component.Name)
			if s.dryRun {
				logger.Info("[dry-run] Would retrigger the component build.")
				retriggered = append(retriggered, component.Name)
				continue
			}
			if err := s.cluster.RetriggerBuild(ctx, component.Name); err != nil {
				return retriggered, fmt.Errorf("failed to retrigger %s: %w", component.Name, err)
			}
			retriggered = append(retriggered, component.Name)
		}
	}
	return retriggered, nil
}
