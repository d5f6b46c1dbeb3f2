package snapshot

import (
	"k8s.io/apimachinery/pkg/util/sets"
)

// Change is one component whose image digest differs between two snapshots.
type Change struct {
	ImageKey  string
	OldDigest string
	NewDigest string
	// Git provenance of the new entry, when the manifest carries it.
	GitRepository string
	OldSHA        string
	NewSHA        string
}

// Diff is the component-level difference between two snapshots.
type Diff struct {
	Added   []Entry
	Removed []Entry
	Changed []Change
}

// Empty reports whether the two snapshots reference identical image sets.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Compare computes the set of images that differ between two manifests,
// keyed by image key.
func Compare(old, new []Entry) Diff {
	oldByKey := map[string]Entry{}
	for _, entry := range old {
		oldByKey[entry.ImageKey] = entry
	}
	newByKey := map[string]Entry{}
	for _, entry := range new {
		newByKey[entry.ImageKey] = entry
	}

	var diff Diff
	for _, key := range sets.List(sets.KeySet(newByKey).Difference(sets.KeySet(oldByKey))) {
		diff.Added = append(diff.Added, newByKey[key])
	}
	for _, key := range sets.List(sets.KeySet(oldByKey).Difference(sets.KeySet(newByKey))) {
		diff.Removed = append(diff.Removed, oldByKey[key])
	}
	for _, key := range sets.List(sets.KeySet(oldByKey).Intersection(sets.KeySet(newByKey))) {
		before, after := oldByKey[key], newByKey[key]
		if before.ImageDigest == after.ImageDigest {
			continue
		}
		diff.Changed = append(diff.Changed, Change{
			ImageKey:      key,
			OldDigest:     before.ImageDigest,
			NewDigest:     after.ImageDigest,
			GitRepository: after.GitRepository,
			OldSHA:        before.GitSHA,
			NewSHA:        after.GitSHA,
		})
	}
	return diff
}
