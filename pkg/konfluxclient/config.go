package konfluxclient

import (
	"fmt"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// DefaultNamespace is the tenant namespace holding the ACM/MCE Konflux
// resources.
const DefaultNamespace = "crt-redhat-acm-tenant"

// LoadKubeConfig loads a kubeconfig from the file and uses the default
// context. An empty path falls through to the standard loading rules, then to
// in-cluster config.
func LoadKubeConfig(path string) (*rest.Config, error) {
	loader := clientcmd.NewDefaultClientConfigLoadingRules()
	loader.ExplicitPath = path
	cfg, err := loader.Load()
	if err != nil {
		if path == "" {
			return rest.InClusterConfig()
		}
		return nil, fmt.Errorf("could not load kubeconfig: %w", err)
	}
	clusterConfig, err := clientcmd.NewDefaultClientConfig(*cfg, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("could not load client configuration: %w", err)
	}
	return clusterConfig, nil
}
