package compliance

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/stolostron/release-tools/pkg/api"
	"github.com/stolostron/release-tools/pkg/konfluxclient"
)

type blockingCluster struct {
	started chan struct{}
}

func (f *blockingCluster) ComponentsForApplication(ctx context.Context, _ string) ([]konfluxclient.Component, error) {
	select {
	case f.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *blockingCluster) PushPipelineRuns(_ context.Context, _ string) ([]konfluxclient.PipelineRun, error) {
	return nil, nil
}

func TestScanReleasesCancellation(t *testing.T) {
	releases := []api.Release{
		{Application: "release-acm-214"},
		{Application: "release-mce-29"},
		{Application: "release-acm-213"},
	}
	cluster := &blockingCluster{started: make(chan struct{}, len(releases))}
	scanner := NewScanner(cluster, &fakeInspector{}, logrus.NewEntry(logrus.StandardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- ScanReleases(ctx, scanner, releases, t.TempDir(), 2, logrus.NewEntry(logrus.StandardLogger()))
	}()

	<-cluster.started
	cancel()

	err := <-done
	if err == nil {
		t.Fatal("expected an error from a cancelled batch, got none")
	}
	if !strings.Contains(err.Error(), "failed to wait for scans") {
		t.Errorf("expected the wait failure in the aggregate, got: %v", err)
	}
}
