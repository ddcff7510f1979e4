package diagram

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"github.com/deepak-muley/nkpsec/internal/types"
)

func newClusterApp(name string, annotations map[string]string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": "apps.kommander.d2iq.io/v1alpha1",
			"kind":       "ClusterApp",
			"metadata": map[string]interface{}{
				"name": name,
			},
		},
	}
	if len(annotations) > 0 {
		obj.SetAnnotations(annotations)
	}
	return obj
}

func newDiagramTarget(objects ...runtime.Object) types.Target {
	scheme := runtime.NewScheme()
	dynClient := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme,
		map[schema.GroupVersionResource]string{ClusterAppGVR: "ClusterAppList"},
		objects...,
	)
	return types.Target{Cluster: "mgmt", Dynamic: dynClient}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "cert-manager", BaseName("cert-manager-1.14.5"))
	assert.Equal(t, "traefik", BaseName("traefik-34.1.0-dev"))
	assert.Equal(t, "reloader", BaseName("reloader"))
	assert.Equal(t, "kube-prometheus-stack", BaseName("kube-prometheus-stack-69.2.3"))
}

func TestBuildGraph_ResolvesVersionedDependents(t *testing.T) {
	g := BuildGraph(map[string][]string{
		"cert-manager-1.14.5":      nil,
		"traefik-34.1.0":           {"cert-manager"},
		"kommander-ui-2.15.0":      {"traefik"},
		"reloader-1.0.116":         nil,
		"velero-8.1.0":             {"cert-manager"},
		"rook-ceph-cluster-1.15.1": {"rook-ceph"},
	})

	assert.Equal(t, []string{"traefik-34.1.0", "velero-8.1.0"}, g.Dependents["cert-manager-1.14.5"])
	assert.Equal(t, []string{"kommander-ui-2.15.0"}, g.Dependents["traefik-34.1.0"])
	// rook-ceph itself is not installed, so the edge resolves nowhere.
	assert.Empty(t, g.Dependents["rook-ceph-cluster-1.15.1"])
}

func TestGraph_Roots(t *testing.T) {
	g := BuildGraph(map[string][]string{
		"cert-manager-1.14.5": nil,
		"traefik-34.1.0":      {"cert-manager"},
		"reloader-1.0.116":    nil,
	})
	assert.Equal(t, []string{"cert-manager-1.14.5", "reloader-1.0.116"}, g.Roots())
}

func TestFetch_ReadsAnnotations(t *testing.T) {
	target := newDiagramTarget(
		newClusterApp("cert-manager-1.14.5", nil),
		newClusterApp("traefik-34.1.0", map[string]string{
			DependenciesAnnotation: "cert-manager",
		}),
		newClusterApp("velero-8.1.0", map[string]string{
			RequiredDependenciesAnnotation: "cert-manager, traefik",
		}),
		newClusterApp("reloader-1.0.116", map[string]string{
			DependenciesAnnotation: "N/A",
		}),
	)

	g, err := Fetch(context.Background(), zaptest.NewLogger(t), target)
	require.NoError(t, err)
	require.Len(t, g.Apps, 4)
	assert.Empty(t, g.Apps["cert-manager-1.14.5"])
	assert.Equal(t, []string{"cert-manager"}, g.Apps["traefik-34.1.0"])
	assert.Equal(t, []string{"cert-manager", "traefik"}, g.Apps["velero-8.1.0"])
	assert.Empty(t, g.Apps["reloader-1.0.116"])
}

func TestFetch_PrefersDependenciesAnnotation(t *testing.T) {
	target := newDiagramTarget(
		newClusterApp("traefik-34.1.0", map[string]string{
			DependenciesAnnotation:         "cert-manager",
			RequiredDependenciesAnnotation: "something-else",
		}),
	)

	g, err := Fetch(context.Background(), zaptest.NewLogger(t), target)
	require.NoError(t, err)
	assert.Equal(t, []string{"cert-manager"}, g.Apps["traefik-34.1.0"])
}

func TestRender_RootChainsAndOrphans(t *testing.T) {
	g := BuildGraph(map[string][]string{
		"cert-manager-1.14.5": nil,
		"traefik-34.1.0":      {"cert-manager"},
		"kommander-ui-2.15.0": {"traefik"},
		"ghost-app-1.0.0":     {"not-installed"},
	})

	out := Render(g)

	assert.Contains(t, out, "# ClusterApp Dependency Block Diagram")
	assert.Contains(t, out, "### Root Chain 1: cert-manager-1.14.5")
	assert.Contains(t, out, "cert-manager-1.14.5 [ROOT]")
	assert.Contains(t, out, "└─ Children (used by):")
	assert.Contains(t, out, "### Orphaned Apps (not connected to any root)")
	assert.Contains(t, out, "ghost-app-1.0.0")

	// The chain follows BFS order: root, then its dependents.
	rootIdx := strings.Index(out, "cert-manager-1.14.5 [ROOT]")
	traefikIdx := strings.Index(out, "│ traefik-34.1.0")
	uiIdx := strings.Index(out, "│ kommander-ui-2.15.0")
	require.Greater(t, traefikIdx, rootIdx)
	require.Greater(t, uiIdx, traefikIdx)
}

func TestRender_EachAppAppearsOnce(t *testing.T) {
	// Both roots reach kommander-ui; only the first chain may claim it.
	g := BuildGraph(map[string][]string{
		"cert-manager-1.14.5": nil,
		"traefik-34.1.0":      nil,
		"kommander-ui-2.15.0": {"cert-manager", "traefik"},
	})

	out := Render(g)
	assert.Equal(t, 1, strings.Count(out, "│ kommander-ui-2.15.0"))
}

func TestRender_ParentsLine(t *testing.T) {
	g := BuildGraph(map[string][]string{
		"cert-manager-1.14.5": nil,
		"velero-8.1.0":        {"cert-manager"},
	})

	out := Render(g)
	assert.Contains(t, out, "┌─ Parents (depends on): cert-manager")
}

func TestWriteMarkdown(t *testing.T) {
	g := BuildGraph(map[string][]string{"cert-manager-1.14.5": nil})
	path := t.TempDir() + "/docs/internal/CLUSTERAPP-BLOCK-DIAGRAM.md"

	require.NoError(t, WriteMarkdown(path, g))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[ROOT]")
}
