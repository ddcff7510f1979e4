package types

import (
	"context"

	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
)

// Target is the per-cluster client bundle a scanner operates on.
type Target struct {
	// Cluster is the fleet name of the cluster ("mgmt", "workload1", ...).
	Cluster string

	// DisplayName is the human-readable cluster description from fleet config.
	DisplayName string

	Clientset kubernetes.Interface
	Dynamic   dynamic.Interface
	Discovery discovery.DiscoveryInterface
}

// ScanOptions carries the common filters shared by all scanners.
type ScanOptions struct {
	// Namespaces restricts the scan to these workload namespaces.
	// Empty means all namespaces.
	Namespaces []string

	// Severity filters findings by vendor severity substring.
	Severity SeverityFilter
}

// InNamespaceFilter reports whether ns passes the namespace filter.
func (o ScanOptions) InNamespaceFilter(ns string) bool {
	if len(o.Namespaces) == 0 {
		return true
	}
	for _, n := range o.Namespaces {
		if n == ns {
			return true
		}
	}
	return false
}

// Scanner collects findings of one kind from a cluster.
//
// Implementations must be safe for concurrent use: the fleet runner invokes
// the same scanner against multiple clusters in parallel.
//
// Contract:
//   - Must not mutate cluster state.
//   - Must not panic; return errors instead.
//   - Should treat a missing CRD or unreachable optional component as an
//     empty result with a logged warning, not a hard error, so one broken
//     cluster does not fail a fleet-wide scan.
type Scanner interface {
	// Name returns a unique identifier used in metrics labels and logging.
	Name() string

	// Scan collects findings from the target cluster.
	Scan(ctx context.Context, target Target, opts ScanOptions) ([]Finding, error)
}
