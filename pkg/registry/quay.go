package registry

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"k8s.io/apimachinery/pkg/util/json"
)

// Tag is one entry of a Quay repository tag listing.
type Tag struct {
	Name         string `json:"name"`
	LastModified string `json:"last_modified"`
	StartTS      int64  `json:"start_ts"`
}

// Modified returns the tag's last modification time.
func (t Tag) Modified() (time.Time, error) {
	if t.StartTS != 0 {
		return time.Unix(t.StartTS, 0).UTC(), nil
	}
	if t.LastModified == "" {
		return time.Time{}, fmt.Errorf("tag %s has no modification time", t.Name)
	}
	modified, err := time.Parse(time.RFC1123Z, t.LastModified)
	if err != nil {
		return time.Time{}, fmt.Errorf("tag %s has a malformed modification time %q: %w", t.Name, t.LastModified, err)
	}
	return modified.UTC(), nil
}

type tagsResponse struct {
	Tags []Tag `json:"tags"`
}

// QuayClient queries the Quay registry API.
type QuayClient struct {
	client  *http.Client
	baseURL string
	// username and password authenticate repository API calls; bearer
	// authenticates raw manifest requests. Either may be empty for public
	// repositories.
	username string
	password string
	bearer   string
}

type QuayClientOpt func(*QuayClient)

func WithBasicAuth(username, password string) QuayClientOpt {
	return func(c *QuayClient) {
		c.username = username
		c.password = password
	}
}

func WithBearerToken(token string) QuayClientOpt {
	return func(c *QuayClient) {
		c.bearer = token
	}
}

func WithBaseURL(url string) QuayClientOpt {
	return func(c *QuayClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

type adapter struct{}

func (a adapter) format(s string, i ...interface{}) string {
	builder := strings.Builder{}
	builder.WriteString(s)
	for _, x := range i {
		builder.WriteString(" ")
		builder.WriteString(fmt.Sprintf("%v", x))
	}
	return builder.String()
}

func (a adapter) Error(s string, i ...interface{}) {
	logrus.Error(a.format(s, i...))
}

func (a adapter) Info(s string, i ...interface{}) {
	logrus.Info(a.format(s, i...))
}

func (a adapter) Debug(s string, i ...interface{}) {
	logrus.Debug(a.format(s, i...))
}

func (a adapter) Warn(s string, i ...interface{}) {
	logrus.Warn(a.format(s, i...))
}

var _ retryablehttp.LeveledLogger = adapter{}

// NewQuayClient returns a client for quay.io with retrying transport.
func NewQuayClient(opts ...QuayClientOpt) *QuayClient {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 2 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = adapter{}
	c := &QuayClient{
		client:  retryClient.StandardClient(),
		baseURL: "https://quay.io",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListTags returns the tags of a repository, e.g. acm-d/acm-operator-bundle.
func (c *QuayClient) ListTags(repo string) ([]Tag, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/repository/%s/tag/", c.baseURL, repo), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error listing tags of %s: %w", repo, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("got unexpected http %d status code listing tags of %s", resp.StatusCode, repo)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tag listing of %s: %w", repo, err)
	}
	var tags tagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("could not parse tag listing of %s: %w", repo, err)
	}
	return tags.Tags, nil
}

// ManifestExists reports whether a repository serves a manifest digest.
func (c *QuayClient) ManifestExists(repo, digest string) (bool, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/v2/%s/manifests/%s", c.baseURL, repo, digest), nil)
	if err != nil {
		return false, fmt.Errorf("could not create request: %w", err)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.bearer))
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("error checking manifest %s@%s: %w", repo, digest, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("got unexpected http %d status code checking manifest %s@%s", resp.StatusCode, repo, digest)
	}
}

// NewestTagMatching returns the most recently modified tag whose name
// matches the filter, or nil when none does.
func NewestTagMatching(tags []Tag, match func(name string) bool) *Tag {
	var matching []Tag
	for _, tag := range tags {
		if match(tag.Name) {
			matching = append(matching, tag)
		}
	}
	if len(matching) == 0 {
		return nil
	}
	sort.Slice(matching, func(i, j int) bool {
		ti, erri := matching[i].Modified()
		tj, errj := matching[j].Modified()
		if erri != nil || errj != nil {
			return matching[i].Name > matching[j].Name
		}
		return ti.After(tj)
	})
	return &matching[0]
}

// HasVersionTagNewerThan reports whether the repository carries a tag for the
// version prefix modified after the given time. A zero time matches any
// version tag.
func HasVersionTagNewerThan(tags []Tag, version string, after time.Time) bool {
	newest := NewestTagMatching(tags, func(name string) bool {
		return strings.HasPrefix(name, version)
	})
	if newest == nil {
		return false
	}
	if after.IsZero() {
		return true
	}
	modified, err := newest.Modified()
	if err != nil {
		return false
	}
	return modified.After(after)
}
