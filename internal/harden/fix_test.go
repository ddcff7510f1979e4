package harden

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/deepak-muley/nkpsec/internal/types"
)

func newDeployment(name, namespace string, containers ...corev1.Container) *appsv1.Deployment {
	if len(containers) == 0 {
		containers = []corev1.Container{{Name: "app", Image: "nginx:1.27"}}
	}
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, ResourceVersion: "42"},
		Spec: appsv1.DeploymentSpec{
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{Containers: containers},
			},
		},
	}
}

func TestHardenPodSpec_PassesAudit(t *testing.T) {
	spec := &corev1.PodSpec{
		InitContainers: []corev1.Container{{Name: "init-db", Image: "busybox:1.36"}},
		Containers:     []corev1.Container{{Name: "app", Image: "nginx:1.27"}},
	}

	HardenPodSpec(spec)
	assert.Empty(t, evaluatePodSpec(spec))
}

func TestHardenPodSpec_PreservesExplicitCompliantValues(t *testing.T) {
	spec := &corev1.PodSpec{
		Containers: []corev1.Container{{
			Name:  "app",
			Image: "nginx:1.27",
			SecurityContext: &corev1.SecurityContext{
				Capabilities: &corev1.Capabilities{
					Drop: []corev1.Capability{"NET_RAW", "ALL"},
				},
			},
		}},
	}

	HardenPodSpec(spec)
	assert.Equal(t, []corev1.Capability{"NET_RAW", "ALL"}, spec.Containers[0].SecurityContext.Capabilities.Drop)
}

func TestRenderFixed_StripsServerMetadata(t *testing.T) {
	d := newDeployment("api", "production")
	d.Status.ReadyReplicas = 3
	w := Workload{Kind: "Deployment", Name: "api", Namespace: "production", PodSpec: &d.Spec.Template.Spec, Object: d}

	out, err := RenderFixed(w)
	require.NoError(t, err)

	manifest := string(out)
	assert.Contains(t, manifest, "runAsNonRoot: true")
	assert.Contains(t, manifest, "allowPrivilegeEscalation: false")
	assert.NotContains(t, manifest, "resourceVersion")
	assert.NotContains(t, manifest, "readyReplicas")
}

func TestRenderFixed_RestoresTypeMeta(t *testing.T) {
	// List calls return typed objects without TypeMeta; the exported
	// manifest must still be applyable.
	d := newDeployment("api", "production")
	d.TypeMeta = metav1.TypeMeta{}
	w := Workload{Kind: "Deployment", Name: "api", Namespace: "production", PodSpec: &d.Spec.Template.Spec, Object: d}

	out, err := RenderFixed(w)
	require.NoError(t, err)

	manifest := string(out)
	assert.Contains(t, manifest, "apiVersion: apps/v1")
	assert.Contains(t, manifest, "kind: Deployment")
}

func TestRenderFixed_DoesNotMutateOriginal(t *testing.T) {
	d := newDeployment("api", "production")
	w := Workload{Kind: "Deployment", Name: "api", Namespace: "production", PodSpec: &d.Spec.Template.Spec, Object: d}

	_, err := RenderFixed(w)
	require.NoError(t, err)
	assert.Nil(t, d.Spec.Template.Spec.Containers[0].SecurityContext)
}

func TestRenderPatch(t *testing.T) {
	d := newDeployment("api", "production")
	w := Workload{Kind: "Deployment", Name: "api", Namespace: "production", PodSpec: &d.Spec.Template.Spec, Object: d}

	out, err := RenderPatch(w)
	require.NoError(t, err)

	var patch map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &patch))

	template := patch["spec"].(map[string]interface{})["template"].(map[string]interface{})
	containers := template["spec"].(map[string]interface{})["containers"].([]interface{})
	require.Len(t, containers, 1)
	first := containers[0].(map[string]interface{})
	assert.Equal(t, "app", first["name"])
	sc := first["securityContext"].(map[string]interface{})
	assert.Equal(t, false, sc["allowPrivilegeEscalation"])
}

func TestWriteRemediation(t *testing.T) {
	d := newDeployment("api", "production")
	w := Workload{Kind: "Deployment", Name: "api", Namespace: "production", PodSpec: &d.Spec.Template.Spec, Object: d}

	dir := t.TempDir()
	rem, err := WriteRemediation(dir, w)
	require.NoError(t, err)

	manifest, err := os.ReadFile(rem.ManifestPath)
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "kind: Deployment")

	patch, err := os.ReadFile(rem.PatchPath)
	require.NoError(t, err)
	assert.Contains(t, string(patch), "securityContext")
}

func TestScan_ReportsFailedControls(t *testing.T) {
	target := types.Target{
		Cluster:   "mgmt",
		Clientset: fake.NewSimpleClientset(newDeployment("api", "production")),
	}

	s := NewScanner(zaptest.NewLogger(t))
	findings, err := s.Scan(context.Background(), target, types.ScanOptions{})
	require.NoError(t, err)
	require.Len(t, findings, 5)

	for _, f := range findings {
		assert.Equal(t, types.FindingKindSecurityContext, f.Kind)
		assert.Equal(t, "mgmt", f.Cluster)
		assert.Equal(t, "production", f.Namespace)
		assert.Equal(t, "Deployment/api", f.Resource)
		assert.Equal(t, "app", f.Details["container"])
	}
}

func TestScan_SeverityFilter(t *testing.T) {
	target := types.Target{
		Cluster:   "mgmt",
		Clientset: fake.NewSimpleClientset(newDeployment("api", "production")),
	}

	s := NewScanner(zaptest.NewLogger(t))
	findings, err := s.Scan(context.Background(), target, types.ScanOptions{
		Severity: types.NewSeverityFilter("critical"),
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, CheckAllowPrivilegeEscalation, findings[0].Component)
}

func TestScan_HardenedWorkloadClean(t *testing.T) {
	target := types.Target{
		Cluster:   "mgmt",
		Clientset: fake.NewSimpleClientset(newDeployment("api", "production", hardenedContainer("app"))),
	}

	s := NewScanner(zaptest.NewLogger(t))
	findings, err := s.Scan(context.Background(), target, types.ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, findings)
}
