package kubescape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/deepak-muley/nkpsec/internal/types"
	"github.com/deepak-muley/nkpsec/internal/util"
)

const (
	// SoftwareCompositionGroup is the API group of the Kubescape operator CRDs.
	SoftwareCompositionGroup = "spdx.softwarecomposition.kubescape.io"

	// Version is the served version of the softwarecomposition CRDs.
	Version = "v1beta1"

	// OperatorNamespace is where VulnerabilityManifest objects live,
	// regardless of the workload namespace.
	OperatorNamespace = "kubescape"

	// WorkloadNamespaceLabel carries the scanned workload's namespace on a
	// VulnerabilityManifestSummary.
	WorkloadNamespaceLabel = "kubescape.io/workload-namespace"

	defaultQPS   = 20
	defaultBurst = 10
)

var (
	summaryGVR = schema.GroupVersionResource{
		Group:    SoftwareCompositionGroup,
		Version:  Version,
		Resource: "vulnerabilitymanifestsummaries",
	}
	manifestGVR = schema.GroupVersionResource{
		Group:    SoftwareCompositionGroup,
		Version:  Version,
		Resource: "vulnerabilitymanifests",
	}
)

// Scanner extracts CVE findings from Kubescape operator CRDs.
type Scanner struct {
	logger  *zap.Logger
	limiter *rate.Limiter
}

// Options configures the scanner.
type Options struct {
	// QPS bounds manifest fetches per second. Defaults to 20.
	QPS float64
	// Burst is the rate limiter burst size. Defaults to 10.
	Burst int
}

// New creates a kubescape scanner.
func New(logger *zap.Logger, opts Options) *Scanner {
	if opts.QPS <= 0 {
		opts.QPS = defaultQPS
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	return &Scanner{
		logger:  logger.Named("kubescape"),
		limiter: rate.NewLimiter(rate.Limit(opts.QPS), opts.Burst),
	}
}

// Name returns the scanner identifier.
func (s *Scanner) Name() string {
	return "kubescape"
}

// Scan walks VulnerabilityManifestSummaries and extracts unique CVEs.
func (s *Scanner) Scan(ctx context.Context, target types.Target, opts types.ScanOptions) ([]types.Finding, error) {
	if err := s.checkOperator(target); err != nil {
		return nil, err
	}

	summaries, err := s.listSummaries(ctx, target, opts)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		s.logger.Info("No vulnerability summaries found",
			zap.String("cluster", target.Cluster),
		)
		return nil, nil
	}

	observedAt := time.Now()
	var findings []types.Finding
	seen := make(map[string]struct{})

	for _, summary := range summaries {
		manifestName := manifestRef(summary)
		if manifestName == "" {
			continue
		}

		workloadNS := workloadNamespace(summary)
		if !opts.InNamespaceFilter(workloadNS) {
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return findings, err
		}
		manifest, err := target.Dynamic.Resource(manifestGVR).
			Namespace(OperatorNamespace).
			Get(ctx, manifestName, metav1.GetOptions{})
		if err != nil {
			// The operator prunes manifests independently of summaries;
			// a dangling reference is expected, not fatal.
			s.logger.Debug("Vulnerability manifest not found",
				zap.String("cluster", target.Cluster),
				zap.String("manifest", manifestName),
				zap.Error(err),
			)
			continue
		}

		for _, f := range extractCVEs(manifest, opts.Severity, workloadNS) {
			if _, dup := seen[f.ID]; dup {
				continue
			}
			seen[f.ID] = struct{}{}
			f.Cluster = target.Cluster
			f.ObservedAt = observedAt
			findings = append(findings, f)
		}
	}

	s.logger.Info("Kubescape scan complete",
		zap.String("cluster", target.Cluster),
		zap.Int("summaries", len(summaries)),
		zap.Int("unique_cves", len(findings)),
	)
	return findings, nil
}

// checkOperator verifies the softwarecomposition CRDs are served.
func (s *Scanner) checkOperator(target types.Target) error {
	gv := schema.GroupVersion{Group: SoftwareCompositionGroup, Version: Version}.String()
	if _, err := target.Discovery.ServerResourcesForGroupVersion(gv); err != nil {
		return fmt.Errorf("kubescape operator CRDs not available in cluster %q (is the operator installed?): %w", target.Cluster, err)
	}
	return nil
}

// listSummaries lists VulnerabilityManifestSummary objects, per-namespace when
// a filter is given, otherwise cluster-wide.
func (s *Scanner) listSummaries(ctx context.Context, target types.Target, opts types.ScanOptions) ([]unstructured.Unstructured, error) {
	if len(opts.Namespaces) == 0 {
		list, err := target.Dynamic.Resource(summaryGVR).Namespace(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to list vulnerability summaries: %w", err)
		}
		return list.Items, nil
	}

	var items []unstructured.Unstructured
	for _, ns := range opts.Namespaces {
		list, err := target.Dynamic.Resource(summaryGVR).Namespace(ns).List(ctx, metav1.ListOptions{})
		if err != nil {
			// Mirror the cluster-wide path's tolerance: a namespace without
			// summaries (or without access) contributes nothing.
			s.logger.Debug("Failed to list vulnerability summaries in namespace",
				zap.String("namespace", ns),
				zap.Error(err),
			)
			continue
		}
		items = append(items, list.Items...)
	}
	return items, nil
}

// manifestRef resolves the VulnerabilityManifest name referenced by a summary.
// The "all" reference is preferred over "relevant"; empty when neither is set.
func manifestRef(summary unstructured.Unstructured) string {
	if name := util.SafeNestedString(summary.Object, "spec", "vulnerabilitiesRef", "all", "name"); name != "" {
		return name
	}
	return util.SafeNestedString(summary.Object, "spec", "vulnerabilitiesRef", "relevant", "name")
}

// workloadNamespace resolves the scanned workload's namespace for a summary.
func workloadNamespace(summary unstructured.Unstructured) string {
	if ns := summary.GetLabels()[WorkloadNamespaceLabel]; ns != "" {
		return ns
	}
	return summary.GetNamespace()
}

// extractCVEs pulls matching CVEs out of a VulnerabilityManifest. Ids are
// deduplicated within the manifest.
func extractCVEs(manifest *unstructured.Unstructured, severity types.SeverityFilter, workloadNS string) []types.Finding {
	matches := util.SafeNestedSlice(manifest.Object, "spec", "payload", "matches")
	if len(matches) == 0 {
		return nil
	}

	var findings []types.Finding
	seen := make(map[string]struct{}, len(matches))

	for _, m := range matches {
		matchMap, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		vuln := util.SafeNestedMap(matchMap, "vulnerability")
		if vuln == nil {
			continue
		}

		vendorSeverity := util.SafeStringFromMap(vuln, "severity")
		if vendorSeverity == "" {
			vendorSeverity = "unknown"
		}
		if !severity.Matches(vendorSeverity) {
			continue
		}

		id := util.SafeStringFromMap(vuln, "id")
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		artifact := util.SafeNestedMap(matchMap, "artifact")
		component := util.SafeStringFromMap(artifact, "name")

		var fixedVersion string
		if versions := util.SafeNestedStringSlice(vuln, "fix", "versions"); len(versions) > 0 {
			fixedVersion = versions[0]
		}

		findings = append(findings, types.Finding{
			ID:             id,
			Kind:           types.FindingKindCVE,
			Severity:       types.ParseSeverity(vendorSeverity),
			VendorSeverity: vendorSeverity,
			Namespace:      workloadNS,
			Component:      component,
			Image:          component,
			Message:        util.SafeStringFromMap(vuln, "description"),
			FixedVersion:   fixedVersion,
		})
	}

	return findings
}
