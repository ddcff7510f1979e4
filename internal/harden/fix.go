package harden

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// HardenPodSpec rewrites a pod spec in place so every container
// satisfies the restricted profile. Existing fields that already comply
// are preserved.
func HardenPodSpec(spec *corev1.PodSpec) {
	if spec.SecurityContext == nil {
		spec.SecurityContext = &corev1.PodSecurityContext{}
	}
	if spec.SecurityContext.RunAsNonRoot == nil {
		spec.SecurityContext.RunAsNonRoot = boolPtr(true)
	}
	if spec.SecurityContext.SeccompProfile == nil {
		spec.SecurityContext.SeccompProfile = &corev1.SeccompProfile{
			Type: corev1.SeccompProfileTypeRuntimeDefault,
		}
	}
	for i := range spec.InitContainers {
		hardenContainer(&spec.InitContainers[i])
	}
	for i := range spec.Containers {
		hardenContainer(&spec.Containers[i])
	}
}

func hardenContainer(c *corev1.Container) {
	if c.SecurityContext == nil {
		c.SecurityContext = &corev1.SecurityContext{}
	}
	sc := c.SecurityContext

	sc.Privileged = boolPtr(false)
	sc.AllowPrivilegeEscalation = boolPtr(false)
	if sc.RunAsNonRoot == nil {
		sc.RunAsNonRoot = boolPtr(true)
	}
	if sc.ReadOnlyRootFilesystem == nil {
		sc.ReadOnlyRootFilesystem = boolPtr(true)
	}
	if !dropsAllCapabilities(sc) {
		if sc.Capabilities == nil {
			sc.Capabilities = &corev1.Capabilities{}
		}
		sc.Capabilities.Drop = append(sc.Capabilities.Drop, "ALL")
	}
}

// RenderFixed returns a commit-ready YAML manifest of the workload with
// its pod template hardened. Server-populated metadata and status are
// stripped so the output can live in a GitOps repository. Typed objects
// from list calls come back without TypeMeta, so it is restored here;
// a manifest without kind and apiVersion cannot be applied.
func RenderFixed(w Workload) ([]byte, error) {
	switch obj := w.Object.(type) {
	case *appsv1.Deployment:
		fixed := obj.DeepCopy()
		fixed.TypeMeta = workloadTypeMeta("Deployment")
		stripServerMeta(&fixed.ObjectMeta)
		fixed.Status = appsv1.DeploymentStatus{}
		HardenPodSpec(&fixed.Spec.Template.Spec)
		return yaml.Marshal(fixed)
	case *appsv1.StatefulSet:
		fixed := obj.DeepCopy()
		fixed.TypeMeta = workloadTypeMeta("StatefulSet")
		stripServerMeta(&fixed.ObjectMeta)
		fixed.Status = appsv1.StatefulSetStatus{}
		HardenPodSpec(&fixed.Spec.Template.Spec)
		return yaml.Marshal(fixed)
	case *appsv1.DaemonSet:
		fixed := obj.DeepCopy()
		fixed.TypeMeta = workloadTypeMeta("DaemonSet")
		stripServerMeta(&fixed.ObjectMeta)
		fixed.Status = appsv1.DaemonSetStatus{}
		HardenPodSpec(&fixed.Spec.Template.Spec)
		return yaml.Marshal(fixed)
	default:
		return nil, fmt.Errorf("unsupported workload type %T", w.Object)
	}
}

func workloadTypeMeta(kind string) metav1.TypeMeta {
	return metav1.TypeMeta{Kind: kind, APIVersion: appsv1.SchemeGroupVersion.String()}
}

// RenderPatch returns a strategic merge patch that applies the hardened
// security contexts without touching anything else in the workload.
func RenderPatch(w Workload) ([]byte, error) {
	spec := w.PodSpec.DeepCopy()
	HardenPodSpec(spec)

	containers := make([]map[string]interface{}, 0, len(spec.Containers))
	for i := range spec.Containers {
		containers = append(containers, map[string]interface{}{
			"name":            spec.Containers[i].Name,
			"securityContext": spec.Containers[i].SecurityContext,
		})
	}
	template := map[string]interface{}{
		"spec": map[string]interface{}{
			"securityContext": spec.SecurityContext,
			"containers":      containers,
		},
	}
	if len(spec.InitContainers) > 0 {
		initContainers := make([]map[string]interface{}, 0, len(spec.InitContainers))
		for i := range spec.InitContainers {
			initContainers = append(initContainers, map[string]interface{}{
				"name":            spec.InitContainers[i].Name,
				"securityContext": spec.InitContainers[i].SecurityContext,
			})
		}
		template["spec"].(map[string]interface{})["initContainers"] = initContainers
	}

	patch := map[string]interface{}{
		"spec": map[string]interface{}{
			"template": template,
		},
	}
	return json.MarshalIndent(patch, "", "  ")
}

// Remediation holds the file paths written for one workload.
type Remediation struct {
	ManifestPath string
	PatchPath    string
}

// WriteRemediation renders the fixed manifest and patch for one
// workload into dir and returns the written paths.
func WriteRemediation(dir string, w Workload) (Remediation, error) {
	manifest, err := RenderFixed(w)
	if err != nil {
		return Remediation{}, err
	}
	patch, err := RenderPatch(w)
	if err != nil {
		return Remediation{}, err
	}

	base := fmt.Sprintf("%s-%s-%s", strings.ToLower(w.Kind), w.Namespace, w.Name)
	rem := Remediation{
		ManifestPath: filepath.Join(dir, base+"-fixed.yaml"),
		PatchPath:    filepath.Join(dir, base+"-patch.json"),
	}
	if err := os.WriteFile(rem.ManifestPath, manifest, 0o644); err != nil {
		return Remediation{}, fmt.Errorf("write fixed manifest: %w", err)
	}
	if err := os.WriteFile(rem.PatchPath, patch, 0o644); err != nil {
		return Remediation{}, fmt.Errorf("write patch: %w", err)
	}
	return rem, nil
}

func stripServerMeta(meta *metav1.ObjectMeta) {
	meta.UID = ""
	meta.ResourceVersion = ""
	meta.Generation = 0
	meta.CreationTimestamp = metav1.Time{}
	meta.ManagedFields = nil
	delete(meta.Annotations, "deployment.kubernetes.io/revision")
	delete(meta.Annotations, "kubectl.kubernetes.io/last-applied-configuration")
}

func boolPtr(b bool) *bool { return &b }
