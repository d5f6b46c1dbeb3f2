package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	gogithub "github.com/google/go-github/v66/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"sigs.k8s.io/prow/pkg/config/secret"
	"sigs.k8s.io/prow/pkg/interrupts"
	"sigs.k8s.io/prow/pkg/logrusutil"
	"sigs.k8s.io/yaml"

	"github.com/stolostron/release-tools/pkg/registry"
	"github.com/stolostron/release-tools/pkg/snapshot"
)

type options struct {
	org     string
	repo    string
	version string

	configFile      string
	chartConfigFile string

	quayTokenPath   string
	githubTokenPath string
}

func (o *options) Validate() error {
	if o.version == "" {
		return fmt.Errorf("--version is required")
	}
	if o.configFile == "" {
		return fmt.Errorf("--config-file is required")
	}
	return nil
}

func gatherOptions() options {
	o := options{}
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	fs.StringVar(&o.org, "org", "stolostron", "Organization of the pipeline repository.")
	fs.StringVar(&o.repo, "repo", "pipeline", "Name of the pipeline repository.")
	fs.StringVar(&o.version, "version", "", "Product version to check, e.g. 2.14.")
	fs.StringVar(&o.configFile, "config-file", "", "Path to the image mapping config YAML.")
	fs.StringVar(&o.chartConfigFile, "chart-config-file", "", "Path to the chart image mapping config YAML.")
	fs.StringVar(&o.quayTokenPath, "quay-token-path", "", "Path to the file containing the Quay bearer token.")
	fs.StringVar(&o.githubTokenPath, "github-token-path", "", "Path to the file containing the GitHub token to use.")

	if err := fs.Parse(os.Args[1:]); err != nil {
		logrus.WithError(err).Fatal("could not parse input")
	}
	return o
}

// mappingRepo mirrors one entry of the image mapping config: a repository
// whose operators map chart value names to manifest image keys.
type mappingRepo struct {
	Operators []struct {
		ImageMappings map[string]string `json:"imageMappings"`
	} `json:"operators"`
}

func mappedKeys(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the mapping config %q: %w", path, err)
	}
	var repos []mappingRepo
	if err := yaml.Unmarshal(data, &repos); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the mapping config %q: %w", path, err)
	}
	var keys []string
	for _, repo := range repos {
		for _, operator := range repo.Operators {
			for _, key := range operator.ImageMappings {
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

// findings are the four failure buckets of a check run.
type findings struct {
	missingFromManifest           []string
	missingUpstream               []string
	missingFromDownstreamManifest []string
	missingDownstream             []string
}

func (f findings) empty() bool {
	return len(f.missingFromManifest) == 0 && len(f.missingUpstream) == 0 &&
		len(f.missingFromDownstreamManifest) == 0 && len(f.missingDownstream) == 0
}

type manifestChecker interface {
	ManifestExists(repo, digest string) (bool, error)
}

func checkImages(keys []string, upstream, downstream map[string]string, quay manifestChecker, logger *logrus.Entry) findings {
	var f findings
	for _, key := range keys {
		if ref, ok := upstream[key]; !ok {
			f.missingFromManifest = append(f.missingFromManifest, key)
		} else if !exists(quay, ref, logger) {
			f.missingUpstream = append(f.missingUpstream, key)
		}
		if ref, ok := downstream[key]; !ok {
			f.missingFromDownstreamManifest = append(f.missingFromDownstreamManifest, key)
		} else if !exists(quay, ref, logger) {
			f.missingDownstream = append(f.missingDownstream, key)
		}
	}
	return f
}

func exists(quay manifestChecker, ref string, logger *logrus.Entry) bool {
	parsed, err := registry.Parse(ref)
	if err != nil || parsed.Digest == "" {
		logger.WithError(err).WithField("image", ref).Warn("Cannot check a reference without a digest.")
		return false
	}
	repo := strings.TrimPrefix(parsed.Repository, "quay.io/")
	found, err := quay.ManifestExists(repo, parsed.Digest)
	if err != nil {
		logger.WithError(err).WithField("image", ref).Warn("Manifest check failed.")
		return false
	}
	return found
}

func main() {
	logrusutil.ComponentInit()

	o := gatherOptions()
	if err := o.Validate(); err != nil {
		logrus.WithError(err).Fatal("failed to validate options")
	}

	var tokens []string
	for _, path := range []string{o.quayTokenPath, o.githubTokenPath} {
		if path != "" {
			tokens = append(tokens, path)
		}
	}
	if len(tokens) > 0 {
		if err := secret.Add(tokens...); err != nil {
			logrus.WithError(err).Fatal("Error starting secrets agent.")
		}
	}

	keys, err := mappedKeys(o.configFile)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load the mapping config.")
	}
	if o.chartConfigFile != "" {
		chartKeys, err := mappedKeys(o.chartConfigFile)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to load the chart mapping config.")
		}
		keys = append(keys, chartKeys...)
	}

	client := gogithub.NewClient(nil)
	if o.githubTokenPath != "" {
		tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: string(secret.GetSecret(o.githubTokenPath))})
		client = gogithub.NewClient(oauth2.NewClient(context.Background(), tokenSource))
	}
	branch := o.version + "-integration"
	source := snapshot.NewSource(client.Repositories, o.org, o.repo, branch, logrus.WithField("branch", branch))

	ctx := interrupts.Context()
	upstream, err := latestImages(ctx, source, "manifest-", snapshot.Images)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load the latest manifest.")
	}
	downstream, err := latestImages(ctx, source, "downstream-", snapshot.DownstreamImages)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load the latest downstream manifest.")
	}

	var quayOpts []registry.QuayClientOpt
	if o.quayTokenPath != "" {
		quayOpts = append(quayOpts, registry.WithBearerToken(string(secret.GetSecret(o.quayTokenPath))))
	}
	quay := registry.NewQuayClient(quayOpts...)

	result := checkImages(keys, upstream, downstream, quay, logrus.NewEntry(logrus.StandardLogger()))
	printBucket("missing from manifest", result.missingFromManifest)
	printBucket("missing upstream", result.missingUpstream)
	printBucket("missing from downstream manifest", result.missingFromDownstreamManifest)
	printBucket("missing downstream", result.missingDownstream)
	if !result.empty() {
		os.Exit(1)
	}
	logrus.Infof("All %d mapped images check out for %s.", len(keys), o.version)
}

func latestImages(ctx context.Context, source *snapshot.Source, prefix string, project func([]snapshot.Entry) map[string]string) (map[string]string, error) {
	name, err := source.Latest(ctx, "snapshots", prefix)
	if err != nil {
		return nil, err
	}
	data, err := source.Fetch(ctx, "snapshots/"+name)
	if err != nil {
		return nil, err
	}
	entries, err := snapshot.ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return project(entries), nil
}

func printBucket(name string, keys []string) {
	if len(keys) == 0 {
		return
	}
	fmt.Printf("%s (%d):\n", name, len(keys))
	for _, key := range keys {
		fmt.Printf("  %s\n", key)
	}
}
