package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-github/v66/github"
	"github.com/sirupsen/logrus"
)

type contentsClient interface {
	GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error)
}

// Source reads snapshot files out of a pipeline repository branch, through a
// local cache when one is configured. Snapshots are immutable, so a cache hit
// is always served unless the caller forces a refresh.
type Source struct {
	client       contentsClient
	owner        string
	repo         string
	ref          string
	cache        *Cache
	forceRefresh bool
	logger       *logrus.Entry
}

type SourceOption func(*Source)

func WithCache(cache *Cache, forceRefresh bool) SourceOption {
	return func(s *Source) {
		s.cache = cache
		s.forceRefresh = forceRefresh
	}
}

// NewSource reads from the given repository branch, e.g.
// stolostron/pipeline at 2.14-integration.
func NewSource(client contentsClient, owner, repo, ref string, logger *logrus.Entry, opts ...SourceOption) *Source {
	s := &Source{client: client, owner: owner, repo: repo, ref: ref, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the names under a directory of the branch, sorted ascending.
// Snapshot names embed their timestamp, so the last entry is the newest.
func (s *Source) List(ctx context.Context, dir string) ([]string, error) {
	_, contents, _, err := s.client.GetContents(ctx, s.owner, s.repo, dir, &github.RepositoryContentGetOptions{Ref: s.ref})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s in %s/%s@%s: %w", dir, s.owner, s.repo, s.ref, err)
	}
	if contents == nil {
		return nil, fmt.Errorf("%s in %s/%s@%s is not a directory", dir, s.owner, s.repo, s.ref)
	}
	names := make([]string, 0, len(contents))
	for _, content := range contents {
		names = append(names, content.GetName())
	}
	sort.Strings(names)
	return names, nil
}

// Latest returns the newest name under dir matching the prefix.
func (s *Source) Latest(ctx context.Context, dir, prefix string) (string, error) {
	names, err := s.List(ctx, dir)
	if err != nil {
		return "", err
	}
	latest := ""
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			latest = name
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no entry under %s matches prefix %q", dir, prefix)
	}
	return latest, nil
}

// Fetch returns the raw bytes of a file in the branch, whatever format the
// pipeline emitted them in.
func (s *Source) Fetch(ctx context.Context, path string) ([]byte, error) {
	if s.cache != nil && !s.forceRefresh {
		if data, found, err := s.cache.Get(path); err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Cache read failed, fetching from source.")
		} else if found {
			s.logger.WithField("path", path).Debug("Serving cached snapshot file.")
			return data, nil
		}
	}
	file, _, _, err := s.client.GetContents(ctx, s.owner, s.repo, path, &github.RepositoryContentGetOptions{Ref: s.ref})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s from %s/%s@%s: %w", path, s.owner, s.repo, s.ref, err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s in %s/%s@%s is a directory, not a file", path, s.owner, s.repo, s.ref)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	data := []byte(content)
	if s.cache != nil {
		if err := s.cache.Put(path, data); err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Cache write failed.")
		}
	}
	return data, nil
}
