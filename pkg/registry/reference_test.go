package registry

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	var testCases = []struct {
		name        string
		ref         string
		expected    Reference
		expectedErr bool
	}{
		{
			name: "repository with digest",
			ref:  "quay.io/acm-d/acm-operator-bundle@sha256:0b42a5c6ef0ea28f84396b6d159d9a07b54f58b2f517b1bd799e4e0e3fd0f5b2",
			expected: Reference{
				Repository: "quay.io/acm-d/acm-operator-bundle",
				Digest:     "sha256:0b42a5c6ef0ea28f84396b6d159d9a07b54f58b2f517b1bd799e4e0e3fd0f5b2",
			},
		},
		{
			name: "repository with tag",
			ref:  "quay.io/acm-d/acm-dev-catalog:latest-2.14",
			expected: Reference{
				Repository: "quay.io/acm-d/acm-dev-catalog",
				Tag:        "latest-2.14",
			},
		},
		{
			name: "repository with tag and digest",
			ref:  "quay.io/acm-d/mce-operator-bundle:2.9.0@sha256:abc",
			expected: Reference{
				Repository: "quay.io/acm-d/mce-operator-bundle",
				Tag:        "2.9.0",
				Digest:     "sha256:abc",
			},
		},
		{
			name: "registry with port keeps the port in the repository",
			ref:  "registry.example.com:5000/acm-d/foo:2.14.0",
			expected: Reference{
				Repository: "registry.example.com:5000/acm-d/foo",
				Tag:        "2.14.0",
			},
		},
		{
			name: "bare repository",
			ref:  "quay.io/acm-d/foo",
			expected: Reference{
				Repository: "quay.io/acm-d/foo",
			},
		},
		{
			name:        "empty reference errors",
			ref:         "",
			expectedErr: true,
		},
		{
			name:        "empty digest errors",
			ref:         "quay.io/acm-d/foo@",
			expectedErr: true,
		},
		{
			name:        "empty tag errors",
			ref:         "quay.io/acm-d/foo:",
			expectedErr: true,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			actual, err := Parse(testCase.ref)
			if testCase.expectedErr {
				if err == nil {
					t.Errorf("%s: expected an error, got none", testCase.name)
				}
				return
			}
			if err != nil {
				t.Errorf("%s: unexpected error: %v", testCase.name, err)
				return
			}
			if diff := cmp.Diff(testCase.expected, actual); diff != "" {
				t.Errorf("%s: got incorrect reference: %s", testCase.name, diff)
			}
			if roundTrip := actual.String(); roundTrip != testCase.ref {
				t.Errorf("%s: expected %q round-tripped, got %q", testCase.name, testCase.ref, roundTrip)
			}
		})
	}
}

func TestParseDownstreamTag(t *testing.T) {
	var testCases = []struct {
		name        string
		tag         string
		expected    DownstreamTag
		expectedErr bool
	}{
		{
			name: "downstream catalog tag",
			tag:  "2.14.0-DOWNSTREAM-2025-08-12-03-01-22",
			expected: DownstreamTag{
				Version: "2.14.0",
				Stamp:   time.Date(2025, 8, 12, 3, 1, 22, 0, time.UTC),
			},
		},
		{
			name:        "plain version tag errors",
			tag:         "2.14.0",
			expectedErr: true,
		},
		{
			name:        "malformed timestamp errors",
			tag:         "2.14.0-DOWNSTREAM-not-a-stamp",
			expectedErr: true,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			actual, err := ParseDownstreamTag(testCase.tag)
			if testCase.expectedErr {
				if err == nil {
					t.Errorf("%s: expected an error, got none", testCase.name)
				}
				return
			}
			if err != nil {
				t.Errorf("%s: unexpected error: %v", testCase.name, err)
				return
			}
			if diff := cmp.Diff(testCase.expected, actual); diff != "" {
				t.Errorf("%s: got incorrect downstream tag: %s", testCase.name, diff)
			}
		})
	}
}

func TestIsDownstreamTagFor(t *testing.T) {
	var testCases = []struct {
		tag      string
		version  string
		expected bool
	}{
		{tag: "2.14.0-DOWNSTREAM-2025-08-12-03-01-22", version: "2.14", expected: true},
		{tag: "2.14.0-DOWNSTREAM-2025-08-12-03-01-22", version: "2.13", expected: false},
		{tag: "2.14.0", version: "2.14", expected: false},
		{tag: "latest-2.14", version: "2.14", expected: false},
	}
	for _, testCase := range testCases {
		if actual := IsDownstreamTagFor(testCase.tag, testCase.version); actual != testCase.expected {
			t.Errorf("IsDownstreamTagFor(%q, %q): expected %t, got %t", testCase.tag, testCase.version, testCase.expected, actual)
		}
	}
}
