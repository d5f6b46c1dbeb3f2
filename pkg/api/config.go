package api

import (
	"fmt"
	"os"
	"sort"

	"github.com/blang/semver"

	"sigs.k8s.io/yaml"
)

// DefaultConfig returns the releases currently under watch. A config file
// overrides this list wholesale; there is no merging.
func DefaultConfig() *Config {
	return &Config{Releases: []Release{
		{Application: "release-acm-211", Product: ProductACM, Version: "2.11", BundleApplication: "bundle-release-acm-211", BundleRepository: "acm-d/acm-operator-bundle", CatalogRepository: "acm-d/acm-dev-catalog"},
		{Application: "release-acm-212", Product: ProductACM, Version: "2.12", BundleApplication: "bundle-release-acm-212", BundleRepository: "acm-d/acm-operator-bundle", CatalogRepository: "acm-d/acm-dev-catalog"},
		{Application: "release-acm-213", Product: ProductACM, Version: "2.13", BundleApplication: "bundle-release-acm-213", BundleRepository: "acm-d/acm-operator-bundle", CatalogRepository: "acm-d/acm-dev-catalog"},
		{Application: "release-acm-214", Product: ProductACM, Version: "2.14", BundleApplication: "bundle-release-acm-214", BundleRepository: "acm-d/acm-operator-bundle", CatalogRepository: "acm-d/acm-dev-catalog"},
		{Application: "release-acm-215", Product: ProductACM, Version: "2.15", BundleApplication: "bundle-release-acm-215", BundleRepository: "acm-d/acm-operator-bundle", CatalogRepository: "acm-d/acm-dev-catalog"},
		{Application: "release-acm-216", Product: ProductACM, Version: "2.16", BundleApplication: "bundle-release-acm-216", BundleRepository: "acm-d/acm-operator-bundle", CatalogRepository: "acm-d/acm-dev-catalog"},
		{Application: "release-mce-26", Product: ProductMCE, Version: "2.6", BundleApplication: "bundle-release-mce-26", BundleRepository: "acm-d/mce-operator-bundle", CatalogRepository: "acm-d/mce-dev-catalog"},
		{Application: "release-mce-27", Product: ProductMCE, Version: "2.7", BundleApplication: "bundle-release-mce-27", BundleRepository: "acm-d/mce-operator-bundle", CatalogRepository: "acm-d/mce-dev-catalog"},
		{Application: "release-mce-28", Product: ProductMCE, Version: "2.8", BundleApplication: "bundle-release-mce-28", BundleRepository: "acm-d/mce-operator-bundle", CatalogRepository: "acm-d/mce-dev-catalog"},
		{Application: "release-mce-29", Product: ProductMCE, Version: "2.9", BundleApplication: "bundle-release-mce-29", BundleRepository: "acm-d/mce-operator-bundle", CatalogRepository: "acm-d/mce-dev-catalog"},
		{Application: "release-mce-210", Product: ProductMCE, Version: "2.10", BundleApplication: "bundle-release-mce-210", BundleRepository: "acm-d/mce-operator-bundle", CatalogRepository: "acm-d/mce-dev-catalog"},
		{Application: "release-mce-211", Product: ProductMCE, Version: "2.11", BundleApplication: "bundle-release-mce-211", BundleRepository: "acm-d/mce-operator-bundle", CatalogRepository: "acm-d/mce-dev-catalog"},
	}}
}

// LoadConfig reads a release config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file %q: %w", path, err)
	}
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the config %q: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return config, nil
}

// Validate checks that every release is fully specified and the versions parse.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i, r := range c.Releases {
		if r.Application == "" {
			return fmt.Errorf("releases[%d]: application name is required", i)
		}
		if seen[r.Application] {
			return fmt.Errorf("releases[%d]: duplicate application %s", i, r.Application)
		}
		seen[r.Application] = true
		if r.Product != ProductACM && r.Product != ProductMCE {
			return fmt.Errorf("releases[%d]: unknown product %q", i, r.Product)
		}
		if _, err := semver.ParseTolerant(r.Version); err != nil {
			return fmt.Errorf("releases[%d]: version %q: %w", i, r.Version, err)
		}
		if r.BundleRepository == "" || r.CatalogRepository == "" {
			return fmt.Errorf("releases[%d]: bundle and catalog repositories are required", i)
		}
	}
	return nil
}

// Release returns the release for a Konflux application name.
func (c *Config) Release(application string) (Release, error) {
	for _, r := range c.Releases {
		if r.Application == application {
			return r, nil
		}
	}
	return Release{}, fmt.Errorf("no release configured for application %s", application)
}

// ReleasesFor returns the releases of one product, oldest version first.
func (c *Config) ReleasesFor(product Product) []Release {
	var releases []Release
	for _, r := range c.Releases {
		if r.Product == product {
			releases = append(releases, r)
		}
	}
	sort.Slice(releases, func(i, j int) bool {
		vi, _ := semver.ParseTolerant(releases[i].Version)
		vj, _ := semver.ParseTolerant(releases[j].Version)
		return vi.LT(vj)
	})
	return releases
}
