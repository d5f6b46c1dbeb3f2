package api

import (
	"fmt"
	"testing"
)

func TestNonCompliant(t *testing.T) {
	// A record is compliant only when all four conditions are favorable, so
	// enumerate every combination rather than sampling.
	for _, hermetic := range []bool{true, false} {
		for _, contract := range []bool{true, false} {
			for _, multiArch := range []bool{true, false} {
				for _, pushStatus := range []string{StatusSucceeded, StatusFailed} {
					record := &ComplianceRecord{
						Component:          "cluster-curator",
						Hermetic:           hermetic,
						ContractCompliant:  contract,
						MultiArch:          multiArch,
						PushPipelineStatus: pushStatus,
					}
					expected := !hermetic || !contract || !multiArch || pushStatus != StatusSucceeded
					name := fmt.Sprintf("hermetic=%t contract=%t multiarch=%t push=%s", hermetic, contract, multiArch, pushStatus)
					t.Run(name, func(t *testing.T) {
						if actual := record.NonCompliant(); actual != expected {
							t.Errorf("%s: expected non-compliant %t, got %t", name, expected, actual)
						}
					})
				}
			}
		}
	}
}

func TestNonCompliantSentinelPushStatus(t *testing.T) {
	// Degraded lookups leave sentinel strings in the pipeline status column
	// and those must count as unfavorable.
	for _, status := range []string{SentinelInspectionFailure, SentinelImagePullFailure, StatusUnknown, ""} {
		record := &ComplianceRecord{Hermetic: true, ContractCompliant: true, MultiArch: true, PushPipelineStatus: status}
		if !record.NonCompliant() {
			t.Errorf("push status %q: expected non-compliant", status)
		}
	}
}
