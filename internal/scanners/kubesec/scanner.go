package kubesec

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/deepak-muley/nkpsec/internal/types"
)

// Scanner scores live cluster workloads with kubesec.
type Scanner struct {
	logger *zap.Logger
	client *Client
}

// New creates a kubesec scanner backed by the given API client.
func New(logger *zap.Logger, client *Client) *Scanner {
	return &Scanner{
		logger: logger.Named("kubesec"),
		client: client,
	}
}

// Name returns the scanner identifier.
func (s *Scanner) Name() string {
	return "kubesec"
}

// Scan serializes Deployments, StatefulSets and DaemonSets back to YAML
// and submits each to the kubesec endpoint. A workload that fails to
// scan is logged and skipped so one bad manifest does not abort the
// cluster sweep.
func (s *Scanner) Scan(ctx context.Context, target types.Target, opts types.ScanOptions) ([]types.Finding, error) {
	namespaces := opts.Namespaces
	if len(namespaces) == 0 {
		namespaces = []string{metav1.NamespaceAll}
	}

	observedAt := time.Now()
	var findings []types.Finding
	scanned := 0

	for _, ns := range namespaces {
		workloads, err := s.listWorkloads(ctx, target, ns)
		if err != nil {
			return nil, err
		}
		for _, w := range workloads {
			manifest, err := yaml.Marshal(w.object)
			if err != nil {
				s.logger.Warn("Failed to serialize workload",
					zap.String("cluster", target.Cluster),
					zap.String("workload", w.kind+"/"+w.name),
					zap.Error(err),
				)
				continue
			}
			results, err := s.client.ScanManifest(ctx, manifest)
			if err != nil {
				s.logger.Warn("Kubesec scan failed for workload",
					zap.String("cluster", target.Cluster),
					zap.String("namespace", w.namespace),
					zap.String("workload", w.kind+"/"+w.name),
					zap.Error(err),
				)
				continue
			}
			scanned++
			for _, res := range results {
				findings = append(findings, resultFindings(res, target.Cluster, w.namespace, w.kind+"/"+w.name, opts, observedAt)...)
			}
		}
	}

	s.logger.Info("Kubesec scan complete",
		zap.String("cluster", target.Cluster),
		zap.Int("workloads", scanned),
		zap.Int("findings", len(findings)),
	)
	return findings, nil
}

// ScanFiles scores local manifest files. Cluster context does not apply,
// so findings carry an empty cluster and the file path in details.
func (s *Scanner) ScanFiles(ctx context.Context, paths []string, opts types.ScanOptions) ([]types.Finding, error) {
	observedAt := time.Now()
	var findings []types.Finding

	for _, path := range paths {
		manifest, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", path, err)
		}
		results, err := s.client.ScanManifest(ctx, manifest)
		if err != nil {
			return nil, fmt.Errorf("scan manifest %s: %w", path, err)
		}
		for _, res := range results {
			fs := resultFindings(res, "", "", res.Object, opts, observedAt)
			for i := range fs {
				fs[i].Details["file"] = path
			}
			findings = append(findings, fs...)
		}
	}
	return findings, nil
}

type workload struct {
	kind      string
	name      string
	namespace string
	object    interface{}
}

// listWorkloads collects the scannable workload kinds in one namespace.
// Typed list items come back without TypeMeta, so it is restored before
// serialization; kubesec rejects documents without kind and apiVersion.
func (s *Scanner) listWorkloads(ctx context.Context, target types.Target, ns string) ([]workload, error) {
	var workloads []workload

	deployments, err := target.Clientset.AppsV1().Deployments(ns).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list deployments in %q: %w", ns, err)
	}
	for i := range deployments.Items {
		d := deployments.Items[i]
		d.TypeMeta = metav1.TypeMeta{Kind: "Deployment", APIVersion: appsv1.SchemeGroupVersion.String()}
		workloads = append(workloads, workload{kind: "Deployment", name: d.Name, namespace: d.Namespace, object: &d})
	}

	statefulSets, err := target.Clientset.AppsV1().StatefulSets(ns).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list statefulsets in %q: %w", ns, err)
	}
	for i := range statefulSets.Items {
		ss := statefulSets.Items[i]
		ss.TypeMeta = metav1.TypeMeta{Kind: "StatefulSet", APIVersion: appsv1.SchemeGroupVersion.String()}
		workloads = append(workloads, workload{kind: "StatefulSet", name: ss.Name, namespace: ss.Namespace, object: &ss})
	}

	daemonSets, err := target.Clientset.AppsV1().DaemonSets(ns).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list daemonsets in %q: %w", ns, err)
	}
	for i := range daemonSets.Items {
		ds := daemonSets.Items[i]
		ds.TypeMeta = metav1.TypeMeta{Kind: "DaemonSet", APIVersion: appsv1.SchemeGroupVersion.String()}
		workloads = append(workloads, workload{kind: "DaemonSet", name: ds.Name, namespace: ds.Namespace, object: &ds})
	}

	return workloads, nil
}

// resultFindings converts one kubesec result into findings. Failed
// critical rules are Critical, advisory rules are Low; passed rules are
// not reported.
func resultFindings(res Result, cluster, namespace, resource string, opts types.ScanOptions, observedAt time.Time) []types.Finding {
	var findings []types.Finding

	add := func(rule Rule, severity types.Severity, section string) {
		if !opts.Severity.Matches(string(severity)) {
			return
		}
		findings = append(findings, types.Finding{
			ID:             fmt.Sprintf("%s/%s/%s", rule.ID, namespace, resource),
			Kind:           types.FindingKindKubesec,
			Severity:       severity,
			VendorSeverity: section,
			Cluster:        cluster,
			Namespace:      namespace,
			Resource:       resource,
			Component:      rule.ID,
			Message:        rule.Reason,
			ObservedAt:     observedAt,
			Details: map[string]interface{}{
				"score":    res.Score,
				"grade":    Grade(res.Score),
				"selector": rule.Selector,
				"points":   rule.Points,
			},
		})
	}

	for _, rule := range res.Scoring.Critical {
		add(rule, types.SeverityCritical, "critical")
	}
	for _, rule := range res.Scoring.Advise {
		add(rule, types.SeverityLow, "advise")
	}
	return findings
}

// Grade maps a kubesec score to a letter grade. Negative scores always
// mean at least one critical rule failed.
func Grade(score int) string {
	switch {
	case score < 0:
		return "F"
	case score < 5:
		return "C"
	case score < 10:
		return "B"
	default:
		return "A"
	}
}
