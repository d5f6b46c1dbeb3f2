package registry

import (
	"fmt"
	"strings"
	"time"
)

// Reference is a container image reference broken into its parts. Tag and
// Digest are optional; Repository always includes the registry host.
type Reference struct {
	Repository string
	Tag        string
	Digest     string
}

// Parse splits an image reference on its @ and : separators. It performs no
// validation beyond the split: the registries these tools talk to own the
// naming rules.
func Parse(ref string) (Reference, error) {
	if ref == "" {
		return Reference{}, fmt.Errorf("empty image reference")
	}
	parsed := Reference{Repository: ref}
	if idx := strings.Index(parsed.Repository, "@"); idx != -1 {
		parsed.Digest = parsed.Repository[idx+1:]
		parsed.Repository = parsed.Repository[:idx]
		if parsed.Digest == "" {
			return Reference{}, fmt.Errorf("image reference %q has an empty digest", ref)
		}
	}
	// A colon after the last slash separates the tag. Colons before it
	// belong to the registry port.
	slash := strings.LastIndex(parsed.Repository, "/")
	if idx := strings.LastIndex(parsed.Repository, ":"); idx > slash {
		parsed.Tag = parsed.Repository[idx+1:]
		parsed.Repository = parsed.Repository[:idx]
		if parsed.Tag == "" {
			return Reference{}, fmt.Errorf("image reference %q has an empty tag", ref)
		}
	}
	return parsed, nil
}

func (r Reference) String() string {
	out := r.Repository
	if r.Tag != "" {
		out = out + ":" + r.Tag
	}
	if r.Digest != "" {
		out = out + "@" + r.Digest
	}
	return out
}

// downstreamStampLayout is the timestamp encoding used in downstream catalog
// tags, e.g. 2.14.0-DOWNSTREAM-2025-08-12-03-01-22.
const downstreamStampLayout = "2006-01-02-15-04-05"

// DownstreamTag is a parsed downstream catalog tag.
type DownstreamTag struct {
	Version string
	Stamp   time.Time
}

// ParseDownstreamTag splits a downstream catalog tag into its version and
// build timestamp.
func ParseDownstreamTag(tag string) (DownstreamTag, error) {
	idx := strings.Index(tag, "-DOWNSTREAM-")
	if idx == -1 {
		return DownstreamTag{}, fmt.Errorf("tag %q is not a downstream tag", tag)
	}
	stamp, err := time.Parse(downstreamStampLayout, tag[idx+len("-DOWNSTREAM-"):])
	if err != nil {
		return DownstreamTag{}, fmt.Errorf("tag %q has a malformed timestamp: %w", tag, err)
	}
	return DownstreamTag{Version: tag[:idx], Stamp: stamp}, nil
}

// IsDownstreamTagFor reports whether a tag is a downstream tag for the given
// version prefix.
func IsDownstreamTagFor(tag, version string) bool {
	return strings.HasPrefix(tag, version) && strings.Contains(tag, "DOWNSTREAM")
}
