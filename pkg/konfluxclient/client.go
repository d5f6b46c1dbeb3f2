package konfluxclient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/rest"
	ctrlruntimeclient "sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/stolostron/release-tools/pkg/api"
)

// Konflux build-service labels and annotations.
const (
	componentLabel      = "appstudio.openshift.io/component"
	pipelineTypeLabel   = "pipelineruns.openshift.io/type"
	eventTypeLabel      = "pac.test.appstudio.openshift.io/event-type"
	retriggerAnnotation = "build.appstudio.openshift.io/request"
	retriggerValue      = "trigger-pac-build"
)

var (
	componentGVK       = schema.GroupVersionKind{Group: "appstudio.redhat.com", Version: "v1alpha1", Kind: "Component"}
	componentListGVK   = schema.GroupVersionKind{Group: "appstudio.redhat.com", Version: "v1alpha1", Kind: "ComponentList"}
	releaseListGVK     = schema.GroupVersionKind{Group: "appstudio.redhat.com", Version: "v1alpha1", Kind: "ReleaseList"}
	pipelineRunListGVK = schema.GroupVersionKind{Group: "tekton.dev", Version: "v1", Kind: "PipelineRunList"}
)

// Component is the slice of a Konflux Component these tools read.
type Component struct {
	Name              string
	Application       string
	LastPromotedImage string
}

// ReleaseOutcome is the analyzed state of one Release resource.
type ReleaseOutcome struct {
	Name        string
	Plan        string
	Status      string
	Progressing bool
	Message     string
	Created     time.Time
	Completed   time.Time
}

// PipelineRun is the slice of a Tekton PipelineRun these tools read.
// Succeeded is nil while the run has not concluded.
type PipelineRun struct {
	Name      string
	Created   time.Time
	Completed time.Time
	Succeeded *bool
	Message   string
}

// Client reads Konflux resources out of a tenant namespace.
type Client struct {
	client    ctrlruntimeclient.Client
	namespace string
	logger    *logrus.Entry
}

// NewClient builds a client for the given tenant namespace.
func NewClient(config *rest.Config, namespace string, logger *logrus.Entry) (*Client, error) {
	client, err := ctrlruntimeclient.New(config, ctrlruntimeclient.Options{})
	if err != nil {
		return nil, fmt.Errorf("could not get client for kube config: %w", err)
	}
	return &Client{client: client, namespace: namespace, logger: logger}, nil
}

// ComponentsForApplication lists the components belonging to an application.
// Components carry no application label, so the filter is on spec.application.
func (c *Client) ComponentsForApplication(ctx context.Context, application string) ([]Component, error) {
	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(componentListGVK)
	if err := c.client.List(ctx, list, ctrlruntimeclient.InNamespace(c.namespace)); err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}
	var components []Component
	for _, item := range list.Items {
		app, _, err := unstructured.NestedString(item.Object, "spec", "application")
		if err != nil || app != application {
			continue
		}
		image, _, _ := unstructured.NestedString(item.Object, "status", "lastPromotedImage")
		components = append(components, Component{
			Name:              item.GetName(),
			Application:       application,
			LastPromotedImage: image,
		})
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })
	c.logger.WithField("application", application).Debugf("Found %d components.", len(components))
	return components, nil
}

// Releases returns the newest analyzed releases of an application for a
// release plan stage, newest first, at most limit entries. The stage is dev
// or stage; the releases are matched by name prefix and by the stage-publish
// substring of their release plan.
func (c *Client) Releases(ctx context.Context, application, stage string, limit int) ([]ReleaseOutcome, error) {
	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(releaseListGVK)
	if err := c.client.List(ctx, list, ctrlruntimeclient.InNamespace(c.namespace)); err != nil {
		return nil, fmt.Errorf("failed to list releases: %w", err)
	}
	var matching []unstructured.Unstructured
	for _, item := range list.Items {
		plan, _, _ := unstructured.NestedString(item.Object, "spec", "releasePlan")
		if strings.HasPrefix(item.GetName(), application) && strings.Contains(plan, stage+"-publish") {
			matching = append(matching, item)
		}
	}
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].GetCreationTimestamp().After(matching[j].GetCreationTimestamp().Time)
	})
	if limit > 0 && len(matching) > limit {
		matching = matching[:limit]
	}
	outcomes := make([]ReleaseOutcome, 0, len(matching))
	for i := range matching {
		outcomes = append(outcomes, AnalyzeRelease(&matching[i]))
	}
	return outcomes, nil
}

// AnalyzeRelease reduces a Release resource to its pipeline outcome.
// Releases of a dev-publish plan conclude through a TenantPipelineProcessed
// condition, stage-publish ones through ManagedPipelineProcessed.
func AnalyzeRelease(release *unstructured.Unstructured) ReleaseOutcome {
	outcome := ReleaseOutcome{
		Name:    release.GetName(),
		Status:  api.StatusUnknown,
		Created: release.GetCreationTimestamp().Time,
	}
	outcome.Plan, _, _ = unstructured.NestedString(release.Object, "spec", "releasePlan")
	if completed, _, _ := unstructured.NestedString(release.Object, "status", "completionTime"); completed != "" {
		if t, err := time.Parse(time.RFC3339, completed); err == nil {
			outcome.Completed = t
		}
	}

	var target string
	switch {
	case strings.Contains(outcome.Plan, "dev-publish"):
		target = "TenantPipelineProcessed"
	case strings.Contains(outcome.Plan, "stage-publish"):
		target = "ManagedPipelineProcessed"
	default:
		outcome.Message = fmt.Sprintf("cannot determine pipeline type from release plan %q", outcome.Plan)
		return outcome
	}

	for _, condition := range conditions(release) {
		if !strings.Contains(condition.conditionType, target) {
			continue
		}
		if strings.Contains(condition.reason, "Progressing") {
			outcome.Progressing = true
			outcome.Status = api.StatusProgressing
			outcome.Message = condition.message
		} else if condition.status == "True" {
			outcome.Status = api.StatusSucceeded
		} else {
			outcome.Status = api.StatusFailed
			outcome.Message = condition.message
		}
		return outcome
	}
	outcome.Message = fmt.Sprintf("condition %s not found in release", target)
	return outcome
}

// PushPipelineRuns lists a component's push build pipeline runs, oldest
// first.
func (c *Client) PushPipelineRuns(ctx context.Context, component string) ([]PipelineRun, error) {
	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(pipelineRunListGVK)
	if err := c.client.List(ctx, list,
		ctrlruntimeclient.InNamespace(c.namespace),
		ctrlruntimeclient.MatchingLabels{
			componentLabel:    component,
			pipelineTypeLabel: "build",
			eventTypeLabel:    "push",
		}); err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs for component %s: %w", component, err)
	}
	runs := make([]PipelineRun, 0, len(list.Items))
	for i := range list.Items {
		runs = append(runs, summarizeRun(&list.Items[i]))
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Created.Before(runs[j].Created) })
	return runs, nil
}

func summarizeRun(run *unstructured.Unstructured) PipelineRun {
	summary := PipelineRun{
		Name:    run.GetName(),
		Created: run.GetCreationTimestamp().Time,
	}
	if completed, _, _ := unstructured.NestedString(run.Object, "status", "completionTime"); completed != "" {
		if t, err := time.Parse(time.RFC3339, completed); err == nil {
			summary.Completed = t
		}
	}
	for _, condition := range conditions(run) {
		if condition.conditionType != "Succeeded" {
			continue
		}
		switch condition.status {
		case "True":
			succeeded := true
			summary.Succeeded = &succeeded
		case "False":
			succeeded := false
			summary.Succeeded = &succeeded
			summary.Message = condition.message
		}
		break
	}
	return summary
}

// LastSuccessfulPush returns the newest run that concluded successfully, or
// nil when none has.
func LastSuccessfulPush(runs []PipelineRun) *PipelineRun {
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].Succeeded != nil && *runs[i].Succeeded {
			return &runs[i]
		}
	}
	return nil
}

// LatestPushFailure returns the newest run if it concluded in failure, or nil
// when the newest run succeeded, is still executing, or no runs exist.
func LatestPushFailure(runs []PipelineRun) *PipelineRun {
	if len(runs) == 0 {
		return nil
	}
	latest := &runs[len(runs)-1]
	if latest.Succeeded != nil && !*latest.Succeeded {
		return latest
	}
	return nil
}

// RetriggerBuild asks the build service to run a new pac build for a
// component by setting the retrigger annotation.
func (c *Client) RetriggerBuild(ctx context.Context, component string) error {
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(componentGVK)
	obj.SetNamespace(c.namespace)
	obj.SetName(component)
	patch := []byte(fmt.Sprintf(`{"metadata":{"annotations":{"%s":"%s"}}}`, retriggerAnnotation, retriggerValue))
	if err := c.client.Patch(ctx, obj, ctrlruntimeclient.RawPatch(types.MergePatchType, patch)); err != nil {
		return fmt.Errorf("failed to annotate component %s for retriggering: %w", component, err)
	}
	c.logger.WithField("component", component).Info("Retriggered component build.")
	return nil
}

type condition struct {
	conditionType string
	status        string
	reason        string
	message       string
}

func conditions(obj *unstructured.Unstructured) []condition {
	raw, _, _ := unstructured.NestedSlice(obj.Object, "status", "conditions")
	var out []condition
	for _, entry := range raw {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		c := condition{}
		c.conditionType, _ = fields["type"].(string)
		c.status, _ = fields["status"].(string)
		c.reason, _ = fields["reason"].(string)
		c.message, _ = fields["message"].(string)
		out = append(out, c)
	}
	return out
}
