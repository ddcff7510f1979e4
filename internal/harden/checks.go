package harden

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/deepak-muley/nkpsec/internal/types"
)

// Check names, also used as finding components.
const (
	CheckPrivileged               = "privileged"
	CheckAllowPrivilegeEscalation = "allowPrivilegeEscalation"
	CheckRunAsNonRoot             = "runAsNonRoot"
	CheckReadOnlyRootFilesystem   = "readOnlyRootFilesystem"
	CheckDropAllCapabilities      = "dropAllCapabilities"
	CheckSeccompProfile           = "seccompProfile"
)

// Check is one failed restricted-profile control on one container.
type Check struct {
	Name      string
	Severity  types.Severity
	Container string
	Message   string
}

// NeedsHardening reports whether any container in the workload fails a
// restricted-profile control.
func NeedsHardening(w Workload) bool {
	return len(evaluatePodSpec(w.PodSpec)) > 0
}

// evaluatePodSpec audits every container, init containers included,
// against the restricted profile and returns the failed controls.
func evaluatePodSpec(spec *corev1.PodSpec) []Check {
	var checks []Check
	for i := range spec.InitContainers {
		checks = append(checks, evaluateContainer(&spec.InitContainers[i], spec.SecurityContext)...)
	}
	for i := range spec.Containers {
		checks = append(checks, evaluateContainer(&spec.Containers[i], spec.SecurityContext)...)
	}
	return checks
}

func evaluateContainer(c *corev1.Container, podSC *corev1.PodSecurityContext) []Check {
	var checks []Check
	sc := c.SecurityContext

	if sc != nil && sc.Privileged != nil && *sc.Privileged {
		checks = append(checks, Check{
			Name:      CheckPrivileged,
			Severity:  types.SeverityCritical,
			Container: c.Name,
			Message:   "container runs privileged, granting almost unrestricted host access",
		})
	}

	if sc == nil || sc.AllowPrivilegeEscalation == nil || *sc.AllowPrivilegeEscalation {
		checks = append(checks, Check{
			Name:      CheckAllowPrivilegeEscalation,
			Severity:  types.SeverityCritical,
			Container: c.Name,
			Message:   "allowPrivilegeEscalation must be set to false",
		})
	}

	// runAsNonRoot may be satisfied at either pod or container level;
	// the container value wins when both are set.
	runAsNonRoot := podSC != nil && podSC.RunAsNonRoot != nil && *podSC.RunAsNonRoot
	if sc != nil && sc.RunAsNonRoot != nil {
		runAsNonRoot = *sc.RunAsNonRoot
	}
	if !runAsNonRoot {
		checks = append(checks, Check{
			Name:      CheckRunAsNonRoot,
			Severity:  types.SeverityHigh,
			Container: c.Name,
			Message:   "runAsNonRoot must be set to true",
		})
	}

	if sc == nil || sc.ReadOnlyRootFilesystem == nil || !*sc.ReadOnlyRootFilesystem {
		checks = append(checks, Check{
			Name:      CheckReadOnlyRootFilesystem,
			Severity:  types.SeverityMedium,
			Container: c.Name,
			Message:   "readOnlyRootFilesystem must be set to true",
		})
	}

	if !dropsAllCapabilities(sc) {
		checks = append(checks, Check{
			Name:      CheckDropAllCapabilities,
			Severity:  types.SeverityMedium,
			Container: c.Name,
			Message:   "capabilities must drop ALL",
		})
	}

	if !hasRestrictedSeccomp(sc, podSC) {
		checks = append(checks, Check{
			Name:      CheckSeccompProfile,
			Severity:  types.SeverityMedium,
			Container: c.Name,
			Message:   "seccompProfile type must be RuntimeDefault or Localhost",
		})
	}

	return checks
}

func dropsAllCapabilities(sc *corev1.SecurityContext) bool {
	if sc == nil || sc.Capabilities == nil {
		return false
	}
	for _, capability := range sc.Capabilities.Drop {
		if capability == "ALL" {
			return true
		}
	}
	return false
}

func hasRestrictedSeccomp(sc *corev1.SecurityContext, podSC *corev1.PodSecurityContext) bool {
	var profile *corev1.SeccompProfile
	if podSC != nil && podSC.SeccompProfile != nil {
		profile = podSC.SeccompProfile
	}
	if sc != nil && sc.SeccompProfile != nil {
		profile = sc.SeccompProfile
	}
	if profile == nil {
		return false
	}
	return profile.Type == corev1.SeccompProfileTypeRuntimeDefault ||
		profile.Type == corev1.SeccompProfileTypeLocalhost
}
