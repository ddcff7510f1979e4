package fleet

import (
	"fmt"
	"os"

	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/deepak-muley/nkpsec/internal/types"
)

// restConfigFunc builds a rest.Config for a cluster. Overridable in tests.
var restConfigFunc = defaultRESTConfig

// NewTarget builds the scanner client bundle for a cluster.
func NewTarget(cluster ClusterConfig) (types.Target, error) {
	cfg, err := restConfigFunc(cluster)
	if err != nil {
		return types.Target{}, fmt.Errorf("cluster %q: %w", cluster.Name, err)
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return types.Target{}, fmt.Errorf("cluster %q: failed to create clientset: %w", cluster.Name, err)
	}
	dynamicClient, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return types.Target{}, fmt.Errorf("cluster %q: failed to create dynamic client: %w", cluster.Name, err)
	}
	discoveryClient, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return types.Target{}, fmt.Errorf("cluster %q: failed to create discovery client: %w", cluster.Name, err)
	}

	return types.Target{
		Cluster:     cluster.Name,
		DisplayName: cluster.DisplayName,
		Clientset:   clientset,
		Dynamic:     dynamicClient,
		Discovery:   discoveryClient,
	}, nil
}

func defaultRESTConfig(cluster ClusterConfig) (*rest.Config, error) {
	if cluster.Kubeconfig != "" {
		if _, err := os.Stat(cluster.Kubeconfig); err != nil {
			return nil, fmt.Errorf("kubeconfig not found: %s", cluster.Kubeconfig)
		}
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if cluster.Kubeconfig != "" {
		rules.ExplicitPath = cluster.Kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{}
	if cluster.Context != "" {
		overrides.CurrentContext = cluster.Context
	}

	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
}

// Probe checks cluster reachability and returns the apiserver version string.
func Probe(target types.Target) (string, error) {
	info, err := target.Discovery.ServerVersion()
	if err != nil {
		return "", fmt.Errorf("cluster %q unreachable: %w", target.Cluster, err)
	}
	return info.GitVersion, nil
}
