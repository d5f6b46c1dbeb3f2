// Package notify scans the watched releases for build health and renders the
// result as text, JSON or a Slack message.
package notify

import (
	"time"

	"github.com/stolostron/release-tools/pkg/api"
	"github.com/stolostron/release-tools/pkg/githost"
	"github.com/stolostron/release-tools/pkg/konfluxclient"
)

// Health is the rolled-up state of one release application.
type Health string

const (
	// HealthHealthy means components, both release pipelines and the bundle
	// repository all check out.
	HealthHealthy Health = "healthy"
	// HealthPartial means the development side works but stage publication
	// or the bundle repository lags.
	HealthPartial Health = "partial"
	HealthFailed  Health = "failed"
)

// ComponentState is one component's contribution to release health.
type ComponentState struct {
	Name               string     `json:"name"`
	LastPromotedImage  string     `json:"lastPromotedImage,omitempty"`
	Stale              bool       `json:"stale"`
	StaleKnown         bool       `json:"staleKnown"`
	LastSuccessfulPush *time.Time `json:"lastSuccessfulPush,omitempty"`
	PushFailureMessage string     `json:"pushFailureMessage,omitempty"`
}

// Ready reports whether the component has a promoted image that is not known
// to be stale.
func (c ComponentState) Ready() bool {
	return c.LastPromotedImage != "" && !c.Stale
}

// PipelineState is the latest release pipeline outcome of one stage, with
// the previous outcome attached while the latest is still progressing.
type PipelineState struct {
	Current     string                        `json:"current"`
	Progressing bool                          `json:"progressing"`
	Message     string                        `json:"message,omitempty"`
	Completed   time.Time                     `json:"completed,omitempty"`
	Previous    *konfluxclient.ReleaseOutcome `json:"previous,omitempty"`
}

// BundleState is the Quay posture of the release's bundle repository.
type BundleState struct {
	Accessible          bool   `json:"accessible"`
	HasRecentVersionTag bool   `json:"hasRecentVersionTag"`
	NewestVersionTag    string `json:"newestVersionTag,omitempty"`
	Error               string `json:"error,omitempty"`
}

// CatalogState is the downstream posture of the release's dev catalog.
type CatalogState struct {
	HasDownstream  bool     `json:"hasDownstream"`
	DownstreamTags []string `json:"downstreamTags,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// ReleaseReport is the scanned state of one release application.
type ReleaseReport struct {
	Release     api.Release      `json:"release"`
	Components  []ComponentState `json:"components"`
	Development PipelineState    `json:"development"`
	Stage       PipelineState    `json:"stage"`
	Bundle      BundleState      `json:"bundle"`
	Catalog     CatalogState     `json:"catalog"`
	Health      Health           `json:"health"`
	Error       string           `json:"error,omitempty"`
}

// Report is one full scan over the watched releases.
type Report struct {
	Timestamp          time.Time             `json:"timestamp"`
	Releases           []ReleaseReport       `json:"releases"`
	StaleNudgeBranches []githost.NudgeBranch `json:"staleNudgeBranches,omitempty"`
}

// Healthy returns how many releases are fully healthy.
func (r *Report) Healthy() int {
	healthy := 0
	for _, release := range r.Releases {
		if release.Health == HealthHealthy {
			healthy++
		}
	}
	return healthy
}

// DetermineHealth rolls a release report up to one health value: healthy
// needs the bundle, both pipelines and every component in order; partial
// needs the development pipeline and the components; anything less failed.
func DetermineHealth(report *ReleaseReport) Health {
	componentsOK := len(report.Components) > 0
	for _, component := range report.Components {
		if !component.Ready() {
			componentsOK = false
			break
		}
	}
	devOK := report.Development.Current == api.StatusSucceeded
	stageOK := report.Stage.Current == api.StatusSucceeded
	bundleOK := report.Bundle.Accessible && report.Bundle.HasRecentVersionTag

	switch {
	case bundleOK && devOK && stageOK && componentsOK:
		return HealthHealthy
	case devOK && componentsOK:
		return HealthPartial
	default:
		return HealthFailed
	}
}
