package harden

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/deepak-muley/nkpsec/internal/types"
)

// Scanner audits live workload security contexts.
type Scanner struct {
	logger *zap.Logger
}

// NewScanner creates a security context scanner.
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{logger: logger.Named("harden")}
}

// Name returns the scanner identifier.
func (s *Scanner) Name() string {
	return "securitycontext"
}

// Scan lists Deployments, StatefulSets and DaemonSets and reports every
// restricted-profile control their containers fail.
func (s *Scanner) Scan(ctx context.Context, target types.Target, opts types.ScanOptions) ([]types.Finding, error) {
	namespaces := opts.Namespaces
	if len(namespaces) == 0 {
		namespaces = []string{metav1.NamespaceAll}
	}

	observedAt := time.Now()
	var findings []types.Finding

	for _, ns := range namespaces {
		workloads, err := ListWorkloads(ctx, target, ns)
		if err != nil {
			return nil, err
		}
		for _, w := range workloads {
			for _, check := range evaluatePodSpec(w.PodSpec) {
				if !opts.Severity.Matches(string(check.Severity)) {
					continue
				}
				findings = append(findings, types.Finding{
					ID:             fmt.Sprintf("%s/%s/%s/%s/%s", check.Name, w.Namespace, w.Kind, w.Name, check.Container),
					Kind:           types.FindingKindSecurityContext,
					Severity:       check.Severity,
					VendorSeverity: string(check.Severity),
					Cluster:        target.Cluster,
					Namespace:      w.Namespace,
					Resource:       w.Kind + "/" + w.Name,
					Component:      check.Name,
					Message:        check.Message,
					ObservedAt:     observedAt,
					Details: map[string]interface{}{
						"container": check.Container,
					},
				})
			}
		}
	}

	s.logger.Info("Security context scan complete",
		zap.String("cluster", target.Cluster),
		zap.Int("findings", len(findings)),
	)
	return findings, nil
}

// Workload is a scannable controller with its pod template.
type Workload struct {
	Kind      string
	Name      string
	Namespace string
	PodSpec   *corev1.PodSpec

	// Object is the full typed workload, TypeMeta restored, so it can
	// be re-serialized for remediation output.
	Object interface{}
}

// ListWorkloads collects the auditable workload kinds in one namespace.
func ListWorkloads(ctx context.Context, target types.Target, ns string) ([]Workload, error) {
	var workloads []Workload

	deployments, err := target.Clientset.AppsV1().Deployments(ns).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list deployments in %q: %w", ns, err)
	}
	for i := range deployments.Items {
		d := deployments.Items[i]
		d.TypeMeta = metav1.TypeMeta{Kind: "Deployment", APIVersion: appsv1.SchemeGroupVersion.String()}
		workloads = append(workloads, Workload{
			Kind: "Deployment", Name: d.Name, Namespace: d.Namespace,
			PodSpec: &d.Spec.Template.Spec, Object: &d,
		})
	}

	statefulSets, err := target.Clientset.AppsV1().StatefulSets(ns).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list statefulsets in %q: %w", ns, err)
	}
	for i := range statefulSets.Items {
		ss := statefulSets.Items[i]
		ss.TypeMeta = metav1.TypeMeta{Kind: "StatefulSet", APIVersion: appsv1.SchemeGroupVersion.String()}
		workloads = append(workloads, Workload{
			Kind: "StatefulSet", Name: ss.Name, Namespace: ss.Namespace,
			PodSpec: &ss.Spec.Template.Spec, Object: &ss,
		})
	}

	daemonSets, err := target.Clientset.AppsV1().DaemonSets(ns).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list daemonsets in %q: %w", ns, err)
	}
	for i := range daemonSets.Items {
		ds := daemonSets.Items[i]
		ds.TypeMeta = metav1.TypeMeta{Kind: "DaemonSet", APIVersion: appsv1.SchemeGroupVersion.String()}
		workloads = append(workloads, Workload{
			Kind: "DaemonSet", Name: ds.Name, Namespace: ds.Namespace,
			PodSpec: &ds.Spec.Template.Spec, Object: &ds,
		})
	}

	return workloads, nil
}
