package compliance

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"sigs.k8s.io/prow/pkg/github"

	"github.com/stolostron/release-tools/pkg/api"
	"github.com/stolostron/release-tools/pkg/githost"
	"github.com/stolostron/release-tools/pkg/konfluxclient"
	"github.com/stolostron/release-tools/pkg/registry"
)

type fakeCluster struct {
	components map[string][]konfluxclient.Component
	runs       map[string][]konfluxclient.PipelineRun
	runErrs    map[string]error
}

func (f *fakeCluster) ComponentsForApplication(_ context.Context, application string) ([]konfluxclient.Component, error) {
	components, ok := f.components[application]
	if !ok {
		return nil, errors.New("no such application")
	}
	return components, nil
}

func (f *fakeCluster) PushPipelineRuns(_ context.Context, component string) ([]konfluxclient.PipelineRun, error) {
	if err := f.runErrs[component]; err != nil {
		return nil, err
	}
	return f.runs[component], nil
}

type fakeInspector struct {
	infos map[string]registry.ImageInfo
	errs  map[string]error
}

func (f *fakeInspector) Inspect(ref string) (registry.ImageInfo, error) {
	if err := f.errs[ref]; err != nil {
		return registry.ImageInfo{}, err
	}
	return f.infos[ref], nil
}

type fakeCheckRuns struct {
	runs map[string]*github.CheckRunList
	err  error
}

func (f *fakeCheckRuns) ListCheckRuns(org, repo, ref string) (*github.CheckRunList, error) {
	if f.err != nil {
		return nil, f.err
	}
	if list, ok := f.runs[org+"/"+repo+"@"+ref]; ok {
		return list, nil
	}
	return &github.CheckRunList{}, nil
}

func fakeFiles(files map[string][]byte) func(org, repo, branch string) githost.FileGetter {
	return func(org, repo, branch string) githost.FileGetter {
		return func(path string) ([]byte, error) {
			return files[org+"/"+repo+"/"+branch+"/"+path], nil
		}
	}
}

func succeeded(b bool) *bool { return &b }

func TestCheck(t *testing.T) {
	now := time.Date(2025, 8, 25, 12, 0, 0, 0, time.UTC)
	image := "quay.io/redhat-user-workloads/crt-redhat-acm-tenant/release-acm-214/cluster-curator-acm-214@sha256:abc"
	labels := map[string]string{
		labelVCSURL: "https://github.com/stolostron/cluster-curator-controller",
		labelVCSRef: "deadbeef",
	}
	definition := []byte(`spec:
  params:
  - name: hermetic
    value: "true"
  - name: build-platforms
    value:
    - linux/x86_64
    - linux/arm64
`)

	var testCases = []struct {
		name      string
		component konfluxclient.Component
		cluster   *fakeCluster
		inspector *fakeInspector
		checkRuns *fakeCheckRuns
		files     map[string][]byte
		expected  api.ComplianceRecord
	}{
		{
			name:      "fully compliant component",
			component: konfluxclient.Component{Name: "cluster-curator-acm-214", Application: "release-acm-214", LastPromotedImage: image},
			cluster: &fakeCluster{runs: map[string][]konfluxclient.PipelineRun{
				"cluster-curator-acm-214": {{Name: "run-1", Succeeded: succeeded(true)}},
			}},
			inspector: &fakeInspector{infos: map[string]registry.ImageInfo{
				image: {Created: now.Add(-48 * time.Hour).Format(time.RFC3339), Labels: labels},
			}},
			checkRuns: &fakeCheckRuns{runs: map[string]*github.CheckRunList{
				"stolostron/cluster-curator-controller@deadbeef": {CheckRuns: []github.CheckRun{
					{Name: "Red Hat Konflux / enterprise-contract", Conclusion: "success"},
				}},
			}},
			files: map[string][]byte{
				"stolostron/cluster-curator-controller/main/.tekton/cluster-curator-acm-214-push.yaml": definition,
			},
			expected: api.ComplianceRecord{
				Component:          "cluster-curator-acm-214",
				BuildTimestamp:     now.Add(-48 * time.Hour),
				PromotionStatus:    "Succeeded,Current",
				Hermetic:           true,
				ContractCompliant:  true,
				MultiArch:          true,
				PushPipelineStatus: api.StatusSucceeded,
				DefinitionURL:      "https://github.com/stolostron/cluster-curator-controller/blob/main/.tekton/cluster-curator-acm-214-push.yaml",
				LogsURL:            consoleURL("release-acm-214", "cluster-curator-acm-214"),
			},
		},
		{
			name:      "inspection failure degrades to the sentinel status",
			component: konfluxclient.Component{Name: "search-v2-operator-acm-214", Application: "release-acm-214", LastPromotedImage: image},
			cluster:   &fakeCluster{},
			inspector: &fakeInspector{errs: map[string]error{image: errors.New("pinging container registry: timeout")}},
			expected: api.ComplianceRecord{
				Component:          "search-v2-operator-acm-214",
				PromotionStatus:    "INSPECTION_FAILURE,Failed",
				PushPipelineStatus: api.StatusUnknown,
				LogsURL:            consoleURL("release-acm-214", "search-v2-operator-acm-214"),
			},
		},
		{
			name:      "inspection without labels degrades to the sentinel status",
			component: konfluxclient.Component{Name: "search-v2-operator-acm-214", Application: "release-acm-214", LastPromotedImage: image},
			cluster:   &fakeCluster{},
			inspector: &fakeInspector{infos: map[string]registry.ImageInfo{image: {Created: now.Format(time.RFC3339)}}},
			expected: api.ComplianceRecord{
				Component:          "search-v2-operator-acm-214",
				PromotionStatus:    "INSPECTION_FAILURE,Failed",
				PushPipelineStatus: api.StatusUnknown,
				LogsURL:            consoleURL("release-acm-214", "search-v2-operator-acm-214"),
			},
		},
		{
			name:      "unpromoted component",
			component: konfluxclient.Component{Name: "volsync-acm-214", Application: "release-acm-214"},
			cluster: &fakeCluster{runs: map[string][]konfluxclient.PipelineRun{
				"volsync-acm-214": {{Name: "run-1", Succeeded: succeeded(false), Message: "task build-container failed"}},
			}},
			inspector: &fakeInspector{},
			expected: api.ComplianceRecord{
				Component:          "volsync-acm-214",
				PromotionStatus:    api.StatusNoImage,
				PushPipelineStatus: api.StatusFailed,
				LogsURL:            consoleURL("release-acm-214", "volsync-acm-214"),
			},
		},
		{
			name:      "stale image with failing contract check",
			component: konfluxclient.Component{Name: "cluster-curator-acm-214", Application: "release-acm-214", LastPromotedImage: image},
			cluster: &fakeCluster{runs: map[string][]konfluxclient.PipelineRun{
				"cluster-curator-acm-214": {{Name: "run-1", Succeeded: succeeded(true)}, {Name: "run-2", Created: now, Succeeded: nil}},
			}},
			inspector: &fakeInspector{infos: map[string]registry.ImageInfo{
				image: {Created: now.Add(-(14*24*time.Hour + time.Second)).Format(time.RFC3339), Labels: labels},
			}},
			checkRuns: &fakeCheckRuns{runs: map[string]*github.CheckRunList{
				"stolostron/cluster-curator-controller@deadbeef": {CheckRuns: []github.CheckRun{
					{Name: "Red Hat Konflux / enterprise-contract", Conclusion: "failure"},
				}},
			}},
			files: map[string][]byte{
				"stolostron/cluster-curator-controller/main/.tekton/cluster-curator-acm-214-push.yaml": definition,
			},
			expected: api.ComplianceRecord{
				Component:          "cluster-curator-acm-214",
				BuildTimestamp:     now.Add(-(14*24*time.Hour + time.Second)),
				PromotionStatus:    "Succeeded,Stale",
				Hermetic:           true,
				MultiArch:          true,
				PushPipelineStatus: api.StatusProgressing,
				DefinitionURL:      "https://github.com/stolostron/cluster-curator-controller/blob/main/.tekton/cluster-curator-acm-214-push.yaml",
				LogsURL:            consoleURL("release-acm-214", "cluster-curator-acm-214"),
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			opts := []ScannerOption{
				WithFileGetterFactory(fakeFiles(testCase.files)),
				withNow(func() time.Time { return now }),
			}
			if testCase.checkRuns != nil {
				opts = append(opts, WithCheckRunClient(testCase.checkRuns, "enterprise-contract"))
			}
			scanner := NewScanner(testCase.cluster, testCase.inspector, logrus.WithField("test", testCase.name), opts...)
			actual := scanner.Check(context.Background(), testCase.component)
			if diff := cmp.Diff(testCase.expected, actual); diff != "" {
				t.Errorf("%s: record differs from expected:\n%s", testCase.name, diff)
			}
		})
	}
}

// The end-to-end degradation path: a promoted image whose inspection yields
// no labels must surface as exactly INSPECTION_FAILURE,Failed in the
// PromotionStatus column of the CSV report.
func TestInspectionFailureReachesReport(t *testing.T) {
	image := "quay.io/redhat-user-workloads/crt-redhat-acm-tenant/release-mce-29/hypershift-mce-29@sha256:def"
	cluster := &fakeCluster{components: map[string][]konfluxclient.Component{
		"release-mce-29": {{Name: "hypershift-mce-29", Application: "release-mce-29", LastPromotedImage: image}},
	}}
	inspector := &fakeInspector{infos: map[string]registry.ImageInfo{image: {}}}
	scanner := NewScanner(cluster, inspector, logrus.WithField("test", t.Name()), WithFileGetterFactory(fakeFiles(nil)))

	records, err := scanner.Scan(context.Background(), "release-mce-29")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf := &bytes.Buffer{}
	if err := WriteCSV(buf, records); err != nil {
		t.Fatalf("failed to write report: %v", err)
	}

	parsed, err := ReadCSV(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("failed to read report back: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected one record, got %d", len(parsed))
	}
	if parsed[0].PromotionStatus != "INSPECTION_FAILURE,Failed" {
		t.Errorf("expected PromotionStatus cell to read %q, got %q", "INSPECTION_FAILURE,Failed", parsed[0].PromotionStatus)
	}
}

func TestScanAppliesComponentFilter(t *testing.T) {
	cluster := &fakeCluster{components: map[string][]konfluxclient.Component{
		"release-acm-214": {
			{Name: "cluster-curator-acm-214", Application: "release-acm-214"},
			{Name: "volsync-acm-214", Application: "release-acm-214"},
		},
	}}
	scanner := NewScanner(cluster, &fakeInspector{}, logrus.WithField("test", t.Name()),
		WithComponentFilter("curator"), WithFileGetterFactory(fakeFiles(nil)))
	records, err := scanner.Scan(context.Background(), "release-acm-214")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].Component != "cluster-curator-acm-214" {
		t.Errorf("expected only the curator component, got %v", records)
	}
}

func TestParseVCSURL(t *testing.T) {
	var testCases = []struct {
		url          string
		expectedOrg  string
		expectedRepo string
		expectedErr  bool
	}{
		{url: "https://github.com/stolostron/cluster-curator-controller", expectedOrg: "stolostron", expectedRepo: "cluster-curator-controller"},
		{url: "https://github.com/stolostron/multiclusterhub-operator.git", expectedOrg: "stolostron", expectedRepo: "multiclusterhub-operator"},
		{url: "https://github.com/stolostron/volsync/", expectedOrg: "stolostron", expectedRepo: "volsync"},
		{url: "", expectedErr: true},
		{url: "not-a-url", expectedErr: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.url, func(t *testing.T) {
			org, repo, err := parseVCSURL(testCase.url)
			if testCase.expectedErr {
				if err == nil {
					t.Errorf("%s: expected an error, got none", testCase.url)
				}
				return
			}
			if err != nil {
				t.Errorf("%s: unexpected error: %v", testCase.url, err)
				return
			}
			if org != testCase.expectedOrg || repo != testCase.expectedRepo {
				t.Errorf("%s: expected %s/%s, got %s/%s", testCase.url, testCase.expectedOrg, testCase.expectedRepo, org, repo)
			}
		})
	}
}
