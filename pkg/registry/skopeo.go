package registry

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ImageInfo is the subset of skopeo inspect output these tools read.
type ImageInfo struct {
	Name    string            `json:"Name"`
	Digest  string            `json:"Digest"`
	Created string            `json:"Created"`
	Labels  map[string]string `json:"Labels"`
}

// createdLayouts are the timestamp encodings observed in image configs.
var createdLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"}

// CreatedTime parses the image creation timestamp. A missing timestamp is
// returned as the zero time without error.
func (i ImageInfo) CreatedTime() (time.Time, error) {
	if i.Created == "" {
		return time.Time{}, nil
	}
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, i.Created); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse image creation timestamp %q", i.Created)
}

// staleAfter is the image freshness threshold. An image promoted exactly at
// the threshold is still fresh; one second past it is stale.
const staleAfter = 14 * 24 * time.Hour

// IsStale reports whether an image created at the given time has aged past
// the freshness threshold. The zero created time is never stale: freshness of
// an image without a timestamp is reported separately as an inspection
// degradation.
func IsStale(created, now time.Time) bool {
	if created.IsZero() {
		return false
	}
	return now.Sub(created) > staleAfter
}

type executor interface {
	Run(args ...string) ([]byte, error)
}

type skopeoExecutor struct {
	logger *logrus.Entry
	// skopeo is the path to the skopeo binary.
	skopeo string
	// execute executes a command
	execute func(command string, args ...string) ([]byte, error)
}

func (e *skopeoExecutor) Run(args ...string) ([]byte, error) {
	logger := e.logger.WithField("args", strings.Join(args, " "))
	b, err := e.execute(e.skopeo, args...)
	if err != nil {
		logger.WithError(err).WithField("output", string(b)).Debug("Running command failed.")
	} else {
		logger.Debug("Running command succeeded.")
	}
	return b, err
}

func newSkopeoExecutor(logger *logrus.Entry) (executor, error) {
	skopeo, err := exec.LookPath("skopeo")
	if err != nil {
		return nil, err
	}
	return &skopeoExecutor{
		logger: logger.WithField("client", skopeo),
		skopeo: skopeo,
		execute: func(command string, args ...string) ([]byte, error) {
			return exec.Command(command, args...).CombinedOutput()
		},
	}, nil
}

// Inspector reads image metadata out of a registry.
type Inspector interface {
	Inspect(ref string) (ImageInfo, error)
}

type inspector struct {
	logger     *logrus.Entry
	executor   executor
	maxRetries int
	retryDelay time.Duration
	sleep      func(time.Duration)
}

// NewInspector returns an Inspector backed by the skopeo binary on PATH.
func NewInspector(logger *logrus.Entry) (Inspector, error) {
	executor, err := newSkopeoExecutor(logger)
	if err != nil {
		return nil, err
	}
	return &inspector{
		logger:     logger,
		executor:   executor,
		maxRetries: 3,
		retryDelay: 2 * time.Second,
		sleep:      time.Sleep,
	}, nil
}

// Inspect runs skopeo inspect against a reference, retrying transient
// failures a fixed number of times.
func (i *inspector) Inspect(ref string) (ImageInfo, error) {
	var info ImageInfo
	var lastErr error
	for attempt := 0; attempt < i.maxRetries; attempt++ {
		if attempt > 0 {
			i.sleep(i.retryDelay)
		}
		data, err := i.executor.Run("inspect", fmt.Sprintf("docker://%s", ref))
		if err != nil {
			if isNotFound(data) {
				return info, fmt.Errorf("image %s: %w", ref, ErrNotFound)
			}
			lastErr = fmt.Errorf("skopeo inspect failed for %s: %s: %w", ref, strings.TrimSpace(string(data)), err)
			continue
		}
		if err := json.Unmarshal(data, &info); err != nil {
			lastErr = fmt.Errorf("failed to parse skopeo output for %s: %w", ref, err)
			continue
		}
		return info, nil
	}
	return info, lastErr
}

// ErrNotFound marks a reference the registry does not serve, as opposed to a
// transient pull failure.
var ErrNotFound = fmt.Errorf("image not found")

func isNotFound(output []byte) bool {
	o := string(output)
	return strings.Contains(o, "manifest unknown") || strings.Contains(o, "name unknown") || strings.Contains(o, "was deleted or has expired")
}

// DownstreamCatalogTags extracts the downstream tags a catalog image
// advertises for a version through its konflux.additional-tags label.
func DownstreamCatalogTags(info ImageInfo, version string) []string {
	additional := info.Labels["konflux.additional-tags"]
	if additional == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(additional, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" && IsDownstreamTagFor(tag, version) {
			tags = append(tags, tag)
		}
	}
	return tags
}
