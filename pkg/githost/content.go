package githost

import (
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

type Opts struct {
	// The username to use for basic auth
	BasicAuthUser string
	// The token to use for basic auth
	BasicAuthPassword string
	// The host serving raw content, overridable for testing
	RawContentHost string
}

type Opt func(*Opts)

func WithAuthentication(username, token string) Opt {
	return func(o *Opts) {
		o.BasicAuthUser = username
		o.BasicAuthPassword = token
	}
}

func WithRawContentHost(host string) Opt {
	return func(o *Opts) {
		o.RawContentHost = host
	}
}

// FileGetter downloads a file from the provided path in a repository branch.
// It returns a nil slice and nil error on 404: pipeline definitions under
// .tekton are routinely absent and absence is not an error for callers.
type FileGetter func(path string) ([]byte, error)

// FileGetterFactory returns a FileGetter for the provided org/repo/branch. It
// fetches through raw.githubusercontent.com to stay clear of API rate limits,
// so it can be called once per component per scan without throttling. Private
// repositories are supported when configured WithAuthentication.
func FileGetterFactory(org, repo, branch string, opts ...Opt) FileGetter {
	o := Opts{RawContentHost: "https://raw.githubusercontent.com"}
	for _, opt := range opts {
		opt(&o)
	}
	client := retryablehttp.NewClient()
	client.Logger = nil
	return func(path string) ([]byte, error) {
		url := fmt.Sprintf("%s/%s/%s/%s/%s", o.RawContentHost, org, repo, branch, path)
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to construct request: %w", err)
		}
		if o.BasicAuthUser != "" {
			req.SetBasicAuth(o.BasicAuthUser, o.BasicAuthPassword)
		}
		resp, err := client.StandardClient().Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to GET %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body when getting %s: %w", url, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("got unexpected http status code %d when getting %s, response body: %s", resp.StatusCode, url, string(body))
		}
		return body, nil
	}
}
