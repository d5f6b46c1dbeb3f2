// Package jiraissues maintains placeholder issues for persistently failing
// components. The issue tracker is the only store: every reconciliation
// searches anew, so state never drifts from what JIRA holds.
package jiraissues

import (
	"fmt"
	"strings"

	"github.com/andygrunwald/go-jira"
	"github.com/sirupsen/logrus"
)

const (
	// LabelKonfluxBuild marks every issue this tool manages.
	LabelKonfluxBuild = "konflux-build"

	issueType        = "Bug"
	closedTransition = "Closed"
)

// ComponentLabel is the per-component label of a placeholder issue.
func ComponentLabel(component string) string {
	return "component:" + component
}

// ReleaseLabel is the per-application label of a placeholder issue.
func ReleaseLabel(application string) string {
	return "release:" + application
}

// Client is the slice of the JIRA API the tracker needs.
type Client interface {
	SearchIssues(jql string) ([]jira.Issue, error)
	CreateIssue(issue *jira.Issue) (*jira.Issue, error)
	UpdateIssue(issue *jira.Issue) (*jira.Issue, error)
	AddComment(issueID, body string) error
	GetTransitions(issueID string) ([]jira.Transition, error)
	DoTransition(issueID, transitionID string) error
}

// this adapter is needed since none of the upstream types are interfaces
type jiraAdapter struct {
	delegate *jira.Client
}

func (a *jiraAdapter) SearchIssues(jql string) ([]jira.Issue, error) {
	issues, response, err := a.delegate.Issue.Search(jql, &jira.SearchOptions{MaxResults: 50})
	return issues, jiraError(response, err)
}

func (a *jiraAdapter) CreateIssue(issue *jira.Issue) (*jira.Issue, error) {
	created, response, err := a.delegate.Issue.Create(issue)
	return created, jiraError(response, err)
}

func (a *jiraAdapter) UpdateIssue(issue *jira.Issue) (*jira.Issue, error) {
	updated, response, err := a.delegate.Issue.Update(issue)
	return updated, jiraError(response, err)
}

func (a *jiraAdapter) AddComment(issueID, body string) error {
	_, response, err := a.delegate.Issue.AddComment(issueID, &jira.Comment{Body: body})
	return jiraError(response, err)
}

func (a *jiraAdapter) GetTransitions(issueID string) ([]jira.Transition, error) {
	transitions, response, err := a.delegate.Issue.GetTransitions(issueID)
	return transitions, jiraError(response, err)
}

func (a *jiraAdapter) DoTransition(issueID, transitionID string) error {
	response, err := a.delegate.Issue.DoTransition(issueID, transitionID)
	return jiraError(response, err)
}

// jiraError enriches go-jira errors with the response body, which is where
// JIRA puts the actual reason.
func jiraError(response *jira.Response, err error) error {
	if err == nil {
		return nil
	}
	if response == nil {
		return err
	}
	return fmt.Errorf("%w: %s", err, jira.NewJiraError(response, err))
}

// NewClient wraps a raw go-jira client.
func NewClient(client *jira.Client) Client {
	return &jiraAdapter{delegate: client}
}

// Tracker reconciles placeholder issues in one JIRA project.
type Tracker struct {
	client  Client
	project string
	dryRun  bool
	logger  *logrus.Entry
}

func NewTracker(client Client, project string, dryRun bool, logger *logrus.Entry) *Tracker {
	return &Tracker{client: client, project: project, dryRun: dryRun, logger: logger}
}

func (t *Tracker) searchOpen(component, application string) ([]jira.Issue, error) {
	jql := fmt.Sprintf(`project = %s AND labels = %q AND labels = %q AND labels = %q AND statusCategory != Done ORDER BY created ASC`,
		t.project, LabelKonfluxBuild, ComponentLabel(component), ReleaseLabel(application))
	return t.client.SearchIssues(jql)
}

// Ensure finds or creates the placeholder issue for a failing component and
// refreshes its description when it drifted. It returns the issue key and
// whether an issue was created.
func (t *Tracker) Ensure(component, application, summary, description string) (string, bool, error) {
	logger := t.logger.WithFields(logrus.Fields{"component": component, "application": application})
	existing, err := t.searchOpen(component, application)
	if err != nil {
		return "", false, fmt.Errorf("failed to search for the placeholder issue of %s: %w", component, err)
	}
	if len(existing) > 0 {
		issue := existing[0]
		if len(existing) > 1 {
			logger.Warnf("Found %d open placeholder issues, reconciling the oldest (%s).", len(existing), issue.Key)
		}
		if issue.Fields != nil && issue.Fields.Description == description {
			logger.WithField("issue", issue.Key).Debug("Placeholder issue is up to date.")
			return issue.Key, false, nil
		}
		if t.dryRun {
			logger.WithField("issue", issue.Key).Info("[dry-run] Would update the placeholder issue description.")
			return issue.Key, false, nil
		}
		update := &jira.Issue{Key: issue.Key, Fields: &jira.IssueFields{Description: description}}
		if _, err := t.client.UpdateIssue(update); err != nil {
			return issue.Key, false, fmt.Errorf("failed to update issue %s: %w", issue.Key, err)
		}
		logger.WithField("issue", issue.Key).Info("Updated the placeholder issue description.")
		return issue.Key, false, nil
	}

	if t.dryRun {
		logger.Info("[dry-run] Would create a placeholder issue.")
		return "", false, nil
	}
	toCreate := &jira.Issue{Fields: &jira.IssueFields{
		Project:     jira.Project{Key: t.project},
		Type:        jira.IssueType{Name: issueType},
		Summary:     summary,
		Description: description,
		Labels:      []string{LabelKonfluxBuild, ComponentLabel(component), ReleaseLabel(application)},
	}}
	created, err := t.client.CreateIssue(toCreate)
	if err != nil {
		return "", false, fmt.Errorf("failed to create a placeholder issue for %s: %w", component, err)
	}
	logger.WithField("issue", created.Key).Info("Created a placeholder issue.")
	return created.Key, true, nil
}

// CloseResolved closes the open placeholder issues of a component that is
// healthy again, commenting the reason before the transition. It returns the
// keys of the closed issues.
func (t *Tracker) CloseResolved(component, application, comment string) ([]string, error) {
	logger := t.logger.WithFields(logrus.Fields{"component": component, "application": application})
	existing, err := t.searchOpen(component, application)
	if err != nil {
		return nil, fmt.Errorf("failed to search for the placeholder issue of %s: %w", component, err)
	}
	var closed []string
	for _, issue := range existing {
		if t.dryRun {
			logger.WithField("issue", issue.Key).Info("[dry-run] Would close the placeholder issue.")
			continue
		}
		if err := t.client.AddComment(issue.ID, comment); err != nil {
			return closed, fmt.Errorf("failed to comment on issue %s: %w", issue.Key, err)
		}
		if err := t.transitionToClosed(issue); err != nil {
			return closed, err
		}
		logger.WithField("issue", issue.Key).Info("Closed the placeholder issue.")
		closed = append(closed, issue.Key)
	}
	return closed, nil
}

func (t *Tracker) transitionToClosed(issue jira.Issue) error {
	transitions, err := t.client.GetTransitions(issue.ID)
	if err != nil {
		return fmt.Errorf("failed to get transitions of issue %s: %w", issue.Key, err)
	}
	for _, transition := range transitions {
		if strings.EqualFold(transition.Name, closedTransition) || strings.EqualFold(transition.Name, "Done") {
			if err := t.client.DoTransition(issue.ID, transition.ID); err != nil {
				return fmt.Errorf("failed to transition issue %s to %s: %w", issue.Key, transition.Name, err)
			}
			return nil
		}
	}
	return fmt.Errorf("issue %s has no transition to %s", issue.Key, closedTransition)
}
