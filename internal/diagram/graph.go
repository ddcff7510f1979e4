package diagram

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/deepak-muley/nkpsec/internal/types"
	"github.com/deepak-muley/nkpsec/internal/util"
)

const (
	// DependenciesAnnotation lists an app's dependencies as a
	// comma-separated string of unversioned app names.
	DependenciesAnnotation = "apps.kommander.d2iq.io/dependencies"

	// RequiredDependenciesAnnotation is the older annotation key some
	// app versions still carry.
	RequiredDependenciesAnnotation = "apps.kommander.d2iq.io/required-dependencies"
)

// ClusterAppGVR addresses Kommander ClusterApp resources.
var ClusterAppGVR = schema.GroupVersionResource{
	Group:    "apps.kommander.d2iq.io",
	Version:  "v1alpha1",
	Resource: "clusterapps",
}

var versionSuffix = regexp.MustCompile(`-\d+\.\d+\.\d+.*$`)

// BaseName strips the trailing -X.Y.Z version suffix from an app name,
// so "cert-manager-1.14.5" resolves to "cert-manager".
func BaseName(app string) string {
	return versionSuffix.ReplaceAllString(app, "")
}

// Graph is the resolved ClusterApp dependency graph.
type Graph struct {
	// Apps maps each versioned app name to its declared dependencies,
	// as written in the annotation (unversioned).
	Apps map[string][]string

	// Dependents maps each versioned app name to the sorted versioned
	// names of the apps that depend on it.
	Dependents map[string][]string
}

// Roots returns the sorted apps with no declared dependencies.
func (g *Graph) Roots() []string {
	var roots []string
	for app, deps := range g.Apps {
		if len(deps) == 0 {
			roots = append(roots, app)
		}
	}
	sort.Strings(roots)
	return roots
}

// BuildGraph resolves dependency annotations into a graph. A declared
// dependency links to the installed app whose base name (or full name)
// matches it; resolution runs over the complete app set in sorted order
// so the result does not depend on list ordering.
func BuildGraph(apps map[string][]string) *Graph {
	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)

	dependents := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, app := range names {
		for _, dep := range apps[app] {
			for _, candidate := range names {
				if BaseName(candidate) == dep || candidate == dep {
					if seen[candidate] == nil {
						seen[candidate] = make(map[string]bool)
					}
					if !seen[candidate][app] {
						seen[candidate][app] = true
						dependents[candidate] = append(dependents[candidate], app)
					}
					break
				}
			}
		}
	}
	for _, deps := range dependents {
		sort.Strings(deps)
	}

	return &Graph{Apps: apps, Dependents: dependents}
}

// Fetch lists the ClusterApps on a management cluster and builds the
// dependency graph from their annotations.
func Fetch(ctx context.Context, logger *zap.Logger, target types.Target) (*Graph, error) {
	list, err := target.Dynamic.Resource(ClusterAppGVR).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list clusterapps on %q (is this the management cluster?): %w", target.Cluster, err)
	}

	apps := make(map[string][]string, len(list.Items))
	for _, item := range list.Items {
		annotations := item.GetAnnotations()
		raw := annotations[DependenciesAnnotation]
		if raw == "" {
			raw = annotations[RequiredDependenciesAnnotation]
		}
		apps[item.GetName()] = parseDependencies(raw)
	}

	logger.Info("Fetched ClusterApps",
		zap.String("cluster", target.Cluster),
		zap.Int("apps", len(apps)),
	)
	return BuildGraph(apps), nil
}

func parseDependencies(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "N/A" {
		return nil
	}
	return util.SplitCSV(raw)
}
