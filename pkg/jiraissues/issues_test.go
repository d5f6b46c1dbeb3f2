package jiraissues

import (
	"errors"
	"strings"
	"testing"

	"github.com/andygrunwald/go-jira"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
)

type fakeClient struct {
	searchResults map[string][]jira.Issue
	searchErr     error
	transitions   map[string][]jira.Transition

	created     []*jira.Issue
	updated     []*jira.Issue
	comments    map[string][]string
	transitioned map[string][]string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		searchResults: map[string][]jira.Issue{},
		transitions:   map[string][]jira.Transition{},
		comments:      map[string][]string{},
		transitioned:  map[string][]string{},
	}
}

func (f *fakeClient) SearchIssues(jql string) ([]jira.Issue, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	for fragment, issues := range f.searchResults {
		if strings.Contains(jql, fragment) {
			return issues, nil
		}
	}
	return nil, nil
}

func (f *fakeClient) CreateIssue(issue *jira.Issue) (*jira.Issue, error) {
	f.created = append(f.created, issue)
	return &jira.Issue{Key: "ACM-1000", Fields: issue.Fields}, nil
}

func (f *fakeClient) UpdateIssue(issue *jira.Issue) (*jira.Issue, error) {
	f.updated = append(f.updated, issue)
	return issue, nil
}

func (f *fakeClient) AddComment(issueID, body string) error {
	f.comments[issueID] = append(f.comments[issueID], body)
	return nil
}

func (f *fakeClient) GetTransitions(issueID string) ([]jira.Transition, error) {
	return f.transitions[issueID], nil
}

func (f *fakeClient) DoTransition(issueID, transitionID string) error {
	f.transitioned[issueID] = append(f.transitioned[issueID], transitionID)
	return nil
}

func openIssue(id, key, description string) jira.Issue {
	return jira.Issue{ID: id, Key: key, Fields: &jira.IssueFields{Description: description}}
}

func TestEnsureCreates(t *testing.T) {
	client := newFakeClient()
	tracker := NewTracker(client, "ACM", false, logrus.WithField("test", t.Name()))

	key, created, err := tracker.Ensure("volsync-acm-214", "release-acm-214", "volsync-acm-214 build keeps failing", "push pipeline failed three times")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || key != "ACM-1000" {
		t.Errorf("expected a new ACM-1000 issue, got key=%s created=%t", key, created)
	}
	if len(client.created) != 1 {
		t.Fatalf("expected one created issue, got %d", len(client.created))
	}
	expectedLabels := []string{LabelKonfluxBuild, "component:volsync-acm-214", "release:release-acm-214"}
	if diff := cmp.Diff(expectedLabels, client.created[0].Fields.Labels); diff != "" {
		t.Errorf("labels differ from expected:\n%s", diff)
	}
	if client.created[0].Fields.Project.Key != "ACM" {
		t.Errorf("expected project ACM, got %s", client.created[0].Fields.Project.Key)
	}
}

func TestEnsureFindsAndUpdates(t *testing.T) {
	var testCases = []struct {
		name            string
		existing        jira.Issue
		description     string
		expectedUpdates int
	}{
		{
			name:            "matching description leaves the issue alone",
			existing:        openIssue("10", "ACM-55", "push pipeline failed three times"),
			description:     "push pipeline failed three times",
			expectedUpdates: 0,
		},
		{
			name:            "drifted description is refreshed",
			existing:        openIssue("10", "ACM-55", "stale text"),
			description:     "push pipeline failed three times",
			expectedUpdates: 1,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			client := newFakeClient()
			client.searchResults[`labels = "component:volsync-acm-214"`] = []jira.Issue{testCase.existing}
			tracker := NewTracker(client, "ACM", false, logrus.WithField("test", testCase.name))

			key, created, err := tracker.Ensure("volsync-acm-214", "release-acm-214", "summary", testCase.description)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", testCase.name, err)
			}
			if created || key != "ACM-55" {
				t.Errorf("%s: expected to reconcile ACM-55, got key=%s created=%t", testCase.name, key, created)
			}
			if len(client.created) != 0 {
				t.Errorf("%s: expected no created issues, got %d", testCase.name, len(client.created))
			}
			if len(client.updated) != testCase.expectedUpdates {
				t.Errorf("%s: expected %d updates, got %d", testCase.name, testCase.expectedUpdates, len(client.updated))
			}
		})
	}
}

func TestEnsureDryRun(t *testing.T) {
	client := newFakeClient()
	tracker := NewTracker(client, "ACM", true, logrus.WithField("test", t.Name()))
	if _, created, err := tracker.Ensure("volsync-acm-214", "release-acm-214", "summary", "description"); err != nil || created {
		t.Errorf("expected a no-op dry run, got created=%t err=%v", created, err)
	}
	if len(client.created) != 0 || len(client.updated) != 0 {
		t.Error("dry run must not mutate the tracker")
	}
}

func TestEnsureSearchError(t *testing.T) {
	client := newFakeClient()
	client.searchErr = errors.New("401 unauthorized")
	tracker := NewTracker(client, "ACM", false, logrus.WithField("test", t.Name()))
	if _, _, err := tracker.Ensure("volsync-acm-214", "release-acm-214", "summary", "description"); err == nil {
		t.Error("expected an error, got none")
	}
}

func TestCloseResolved(t *testing.T) {
	client := newFakeClient()
	client.searchResults[`labels = "component:volsync-acm-214"`] = []jira.Issue{openIssue("10", "ACM-55", "text")}
	client.transitions["10"] = []jira.Transition{
		{ID: "2", Name: "In Progress"},
		{ID: "6", Name: "Closed"},
	}
	tracker := NewTracker(client, "ACM", false, logrus.WithField("test", t.Name()))

	closed, err := tracker.CloseResolved("volsync-acm-214", "release-acm-214", "component is healthy again")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"ACM-55"}, closed); diff != "" {
		t.Errorf("closed issues differ from expected:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"component is healthy again"}, client.comments["10"]); diff != "" {
		t.Errorf("comments differ from expected:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"6"}, client.transitioned["10"]); diff != "" {
		t.Errorf("transitions differ from expected:\n%s", diff)
	}
}

func TestCloseResolvedNoTransition(t *testing.T) {
	client := newFakeClient()
	client.searchResults[`labels = "component:volsync-acm-214"`] = []jira.Issue{openIssue("10", "ACM-55", "text")}
	client.transitions["10"] = []jira.Transition{{ID: "2", Name: "In Progress"}}
	tracker := NewTracker(client, "ACM", false, logrus.WithField("test", t.Name()))
	if _, err := tracker.CloseResolved("volsync-acm-214", "release-acm-214", "healthy"); err == nil {
		t.Error("expected an error when no closing transition exists")
	}
}

func TestCloseResolvedNothingOpen(t *testing.T) {
	client := newFakeClient()
	tracker := NewTracker(client, "ACM", false, logrus.WithField("test", t.Name()))
	closed, err := tracker.CloseResolved("volsync-acm-214", "release-acm-214", "healthy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closed) != 0 {
		t.Errorf("expected nothing to close, got %v", closed)
	}
}
