package compliance

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/stolostron/release-tools/pkg/api"
)

func TestWriteAndReadCSV(t *testing.T) {
	records := []api.ComplianceRecord{
		{
			Component:          "cluster-curator-acm-214",
			BuildTimestamp:     time.Date(2025, 8, 20, 3, 1, 22, 0, time.UTC),
			PromotionStatus:    PromotionCurrent,
			Hermetic:           true,
			ContractCompliant:  true,
			MultiArch:          true,
			PushPipelineStatus: api.StatusSucceeded,
			DefinitionURL:      "https://github.com/stolostron/cluster-curator-controller/blob/main/.tekton/cluster-curator-acm-214-push.yaml",
			LogsURL:            consoleURL("release-acm-214", "cluster-curator-acm-214"),
		},
		{
			Component:          "volsync-acm-214",
			PromotionStatus:    PromotionInspectionFailed,
			PushPipelineStatus: api.StatusFailed,
			LogsURL:            consoleURL("release-acm-214", "volsync-acm-214"),
		},
	}
	buf := &bytes.Buffer{}
	if err := WriteCSV(buf, records); err != nil {
		t.Fatalf("failed to write report: %v", err)
	}
	// The comma inside the promotion status cell must not split the column.
	if !strings.Contains(buf.String(), `"INSPECTION_FAILURE,Failed"`) {
		t.Errorf("expected the sentinel cell to be quoted, got:\n%s", buf.String())
	}
	parsed, err := ReadCSV(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("failed to read report back: %v", err)
	}
	if diff := cmp.Diff(records, parsed); diff != "" {
		t.Errorf("parsed records differ from written ones:\n%s", diff)
	}
}

func TestReadCSVErrors(t *testing.T) {
	var testCases = []struct {
		name string
		raw  string
	}{
		{name: "empty report", raw: ""},
		{name: "wrong column count", raw: "a,b,c\n1,2,3\n"},
		{name: "ragged rows", raw: "a,b\n1,2,3\n"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(testCase.raw)); err == nil {
				t.Errorf("%s: expected an error, got none", testCase.name)
			} else if !strings.Contains(err.Error(), api.SentinelCSVError) {
				t.Errorf("%s: expected the %s sentinel in the error, got: %v", testCase.name, api.SentinelCSVError, err)
			}
		})
	}
}
