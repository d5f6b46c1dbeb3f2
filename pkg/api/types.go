package api

import (
	"fmt"
	"time"
)

// Product identifies which operator family a Konflux application builds.
type Product string

const (
	ProductACM Product = "acm"
	ProductMCE Product = "mce"
)

// Release describes one Konflux application under watch: the application
// itself, its bundle counterpart, and the Quay repositories its artifacts
// land in.
type Release struct {
	// Application is the Konflux application name, e.g. release-acm-214.
	Application string `json:"application"`
	// Product is the operator family the application belongs to.
	Product Product `json:"product"`
	// Version is the product version the application builds, e.g. 2.14.
	Version string `json:"version"`
	// BundleApplication is the companion application producing the operator bundle.
	BundleApplication string `json:"bundleApplication"`
	// BundleRepository and CatalogRepository are Quay repositories without
	// the registry host, e.g. acm-d/acm-operator-bundle.
	BundleRepository  string `json:"bundleRepository"`
	CatalogRepository string `json:"catalogRepository"`
}

// Config is the full set of releases the tools operate on.
type Config struct {
	Releases []Release `json:"releases"`
}

// Promotion and pipeline statuses as they appear in reports.
const (
	StatusSucceeded   = "Succeeded"
	StatusFailed      = "Failed"
	StatusProgressing = "Progressing"
	StatusUnknown     = "Unknown"
	StatusNoImage     = "NO_IMAGE"
)

// Sentinels recorded when an external lookup degrades. They are report cell
// contents, not errors: a scan records them and moves on to the next
// component.
const (
	SentinelInspectionFailure = "INSPECTION_FAILURE"
	SentinelImagePullFailure  = "IMAGE_PULL_FAILURE"
	SentinelDigestFailure     = "DIGEST_FAILURE"
	SentinelCSVError          = "CSV_ERROR"
)

// ComplianceRecord is one scanned component's build-policy posture, computed
// fresh on every scan and never persisted.
type ComplianceRecord struct {
	Component          string
	BuildTimestamp     time.Time
	PromotionStatus    string
	Hermetic           bool
	ContractCompliant  bool
	MultiArch          bool
	PushPipelineStatus string
	DefinitionURL      string
	LogsURL            string
}

// NonCompliant reports whether any of the four policy conditions carries an
// unfavorable value. A record is compliant only when hermetic, contract
// compliance and multi-arch all hold and the push pipeline succeeded.
func (r *ComplianceRecord) NonCompliant() bool {
	return !r.Hermetic || !r.ContractCompliant || !r.MultiArch || r.PushPipelineStatus != StatusSucceeded
}

func (r *ComplianceRecord) String() string {
	return fmt.Sprintf("%s: promotion=%s hermetic=%t contract=%t multiarch=%t push=%s",
		r.Component, r.PromotionStatus, r.Hermetic, r.ContractCompliant, r.MultiArch, r.PushPipelineStatus)
}
