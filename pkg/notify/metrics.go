package notify

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	scanHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: "buildnotifier",
			Name:      "scan_duration_seconds",
			Help:      "Release scan duration in seconds.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
		[]string{},
	)

	unhealthyReleases = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: "buildnotifier",
			Name:      "unhealthy_releases",
			Help:      "Number of releases not fully healthy in the latest scan.",
		},
		[]string{"health"},
	)
)

// RegisterMetrics registers metrics
func RegisterMetrics() error {
	if err := prometheus.Register(scanHistogram); err != nil {
		return fmt.Errorf("failed to register scanHistogram metric: %w", err)
	}
	if err := prometheus.Register(unhealthyReleases); err != nil {
		return fmt.Errorf("failed to register unhealthyReleases metric: %w", err)
	}
	return nil
}

// ObserveScanDuration observes the duration of one full scan
func ObserveScanDuration(value float64) {
	scanHistogram.WithLabelValues().Observe(value)
}

// RecordReportHealth sets the per-health release counts from a scan report.
func RecordReportHealth(report *Report) {
	counts := map[Health]float64{HealthPartial: 0, HealthFailed: 0}
	for _, release := range report.Releases {
		if release.Health != HealthHealthy {
			counts[release.Health]++
		}
	}
	for health, count := range counts {
		unhealthyReleases.WithLabelValues(string(health)).Set(count)
	}
}
