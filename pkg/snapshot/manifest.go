// Package snapshot reads the build manifests the pipeline repository
// publishes per snapshot and computes what changed between two of them.
package snapshot

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Entry is one image of a snapshot manifest.
type Entry struct {
	ImageKey    string `json:"image-key"`
	ImageRemote string `json:"image-remote"`
	ImageName   string `json:"image-name"`
	ImageDigest string `json:"image-digest"`
	// Downstream counterparts are present only on entries that have been
	// mirrored downstream.
	ImageDownstreamRemote string `json:"image-downstream-remote,omitempty"`
	ImageDownstreamName   string `json:"image-downstream-name,omitempty"`
	ImageDownstreamDigest string `json:"image-downstream-digest,omitempty"`
	// Git provenance, e.g. stolostron/cluster-curator-controller.
	GitRepository string `json:"git-repository,omitempty"`
	GitSHA        string `json:"git-sha256,omitempty"`
}

// Image is the full upstream image reference of the entry.
func (e Entry) Image() string {
	return fmt.Sprintf("%s/%s@%s", e.ImageRemote, e.ImageName, e.ImageDigest)
}

// DownstreamImage is the downstream reference, or empty when the entry has
// not been mirrored.
func (e Entry) DownstreamImage() string {
	if e.ImageDownstreamRemote == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s@%s", e.ImageDownstreamRemote, e.ImageDownstreamName, e.ImageDownstreamDigest)
}

// ParseManifest parses a snapshot manifest, a JSON array of image entries.
func ParseManifest(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return entries, nil
}

// NormalizeKey converts an image key to the underscore form used by the
// chart configs, e.g. cluster-curator-controller to cluster_curator_controller.
func NormalizeKey(key string) string {
	return strings.ReplaceAll(key, "-", "_")
}

// Images returns the normalized-key to upstream-reference association of a
// manifest, built fresh per invocation.
func Images(entries []Entry) map[string]string {
	images := make(map[string]string, len(entries))
	for _, entry := range entries {
		images[NormalizeKey(entry.ImageKey)] = entry.Image()
	}
	return images
}

// DownstreamImages is Images for the downstream references, skipping entries
// that have none.
func DownstreamImages(entries []Entry) map[string]string {
	images := map[string]string{}
	for _, entry := range entries {
		if downstream := entry.DownstreamImage(); downstream != "" {
			images[NormalizeKey(entry.ImageKey)] = downstream
		}
	}
	return images
}
