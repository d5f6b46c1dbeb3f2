package registry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestListTags(t *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/repository/acm-d/acm-operator-bundle/tag/" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.Error(w, "404 Not Found", http.StatusNotFound)
			return
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "gopher" || pass != "hunter2" {
			t.Error("did not get basic auth credentials")
			http.Error(w, "401 Unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"tags":[{"name":"2.14.0-DOWNSTREAM-2025-08-12-03-01-22","last_modified":"Tue, 12 Aug 2025 03:05:00 -0000","start_ts":1754967900},{"name":"2.13.5","last_modified":"Mon, 04 Aug 2025 10:00:00 -0000"}]}`))
	}))
	defer testServer.Close()

	client := NewQuayClient(WithBaseURL(testServer.URL), WithBasicAuth("gopher", "hunter2"))
	tags, err := client.ListTags("acm-d/acm-operator-bundle")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []Tag{
		{Name: "2.14.0-DOWNSTREAM-2025-08-12-03-01-22", LastModified: "Tue, 12 Aug 2025 03:05:00 -0000", StartTS: 1754967900},
		{Name: "2.13.5", LastModified: "Mon, 04 Aug 2025 10:00:00 -0000"},
	}
	if diff := cmp.Diff(expected, tags); diff != "" {
		t.Errorf("got incorrect tags: %s", diff)
	}
}

func TestManifestExists(t *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Error("did not get bearer token")
			http.Error(w, "401 Unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v2/acm-d/foo/manifests/sha256:abc":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer testServer.Close()

	client := NewQuayClient(WithBaseURL(testServer.URL), WithBearerToken("token"))
	exists, err := client.ManifestExists("acm-d/foo", "sha256:abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected the manifest to exist")
	}
	exists, err = client.ManifestExists("acm-d/foo", "sha256:def")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected the manifest to be absent")
	}
}

func TestTagModified(t *testing.T) {
	var testCases = []struct {
		name        string
		tag         Tag
		expected    time.Time
		expectedErr bool
	}{
		{
			name:     "start_ts wins over last_modified",
			tag:      Tag{Name: "a", StartTS: 1754967900, LastModified: "Mon, 04 Aug 2025 10:00:00 -0000"},
			expected: time.Unix(1754967900, 0).UTC(),
		},
		{
			name:     "last_modified alone parses",
			tag:      Tag{Name: "a", LastModified: "Mon, 04 Aug 2025 10:00:00 -0000"},
			expected: time.Date(2025, 8, 4, 10, 0, 0, 0, time.UTC),
		},
		{
			name:        "no timestamps error",
			tag:         Tag{Name: "a"},
			expectedErr: true,
		},
		{
			name:        "malformed last_modified errors",
			tag:         Tag{Name: "a", LastModified: "yesterday"},
			expectedErr: true,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			actual, err := testCase.tag.Modified()
			if testCase.expectedErr {
				if err == nil {
					t.Errorf("%s: expected an error, got none", testCase.name)
				}
				return
			}
			if err != nil {
				t.Errorf("%s: unexpected error: %v", testCase.name, err)
			} else if !actual.Equal(testCase.expected) {
				t.Errorf("%s: expected %s, got %s", testCase.name, testCase.expected, actual)
			}
		})
	}
}

func TestNewestTagMatching(t *testing.T) {
	tags := []Tag{
		{Name: "2.14.0-DOWNSTREAM-2025-08-01-00-00-00", StartTS: 100},
		{Name: "2.14.0-DOWNSTREAM-2025-08-12-00-00-00", StartTS: 300},
		{Name: "2.13.0-DOWNSTREAM-2025-08-13-00-00-00", StartTS: 400},
		{Name: "latest-2.14", StartTS: 500},
	}
	newest := NewestTagMatching(tags, func(name string) bool { return IsDownstreamTagFor(name, "2.14") })
	if newest == nil {
		t.Fatal("expected a tag, got none")
	}
	if newest.Name != "2.14.0-DOWNSTREAM-2025-08-12-00-00-00" {
		t.Errorf("expected the newest 2.14 downstream tag, got %s", newest.Name)
	}
	if NewestTagMatching(tags, func(name string) bool { return false }) != nil {
		t.Error("expected no tag for a filter matching nothing")
	}
}

func TestHasVersionTagNewerThan(t *testing.T) {
	tags := []Tag{
		{Name: "2.14.0-101", StartTS: 1000},
		{Name: "2.14.0-102", StartTS: 2000},
		{Name: "2.13.9", StartTS: 9000},
	}
	var testCases = []struct {
		name     string
		version  string
		after    time.Time
		expected bool
	}{
		{
			name:     "tag newer than the release time",
			version:  "2.14",
			after:    time.Unix(1500, 0),
			expected: true,
		},
		{
			name:     "all tags older than the release time",
			version:  "2.14",
			after:    time.Unix(3000, 0),
			expected: false,
		},
		{
			name:     "zero time matches any version tag",
			version:  "2.14",
			expected: true,
		},
		{
			name:    "no tags for the version",
			version: "2.15",
			after:   time.Unix(0, 0),
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if actual := HasVersionTagNewerThan(tags, testCase.version, testCase.after); actual != testCase.expected {
				t.Errorf("%s: expected %t, got %t", testCase.name, testCase.expected, actual)
			}
		})
	}
}
