package gatekeeper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/deepak-muley/nkpsec/internal/types"
	"github.com/deepak-muley/nkpsec/internal/util"
)

const (
	// ConstraintGroup is the API group for Gatekeeper constraint CRDs.
	ConstraintGroup = "constraints.gatekeeper.sh"

	// DefaultVersion is the served API version for Gatekeeper constraints.
	DefaultVersion = "v1beta1"
)

// Scanner aggregates Gatekeeper audit violations into findings.
type Scanner struct {
	logger *zap.Logger

	// constraintKinds restricts the scan to these constraint kinds
	// (case-insensitive). Empty means all kinds.
	constraintKinds []string
}

// Options configures the scanner.
type Options struct {
	// ConstraintKinds restricts the scan to these constraint kinds.
	ConstraintKinds []string
}

// New creates a Gatekeeper scanner.
func New(logger *zap.Logger, opts Options) *Scanner {
	return &Scanner{
		logger:          logger.Named("gatekeeper"),
		constraintKinds: opts.ConstraintKinds,
	}
}

// Name returns the scanner identifier.
func (s *Scanner) Name() string {
	return "gatekeeper"
}

// Scan discovers constraint kinds and collects their audit violations.
func (s *Scanner) Scan(ctx context.Context, target types.Target, opts types.ScanOptions) ([]types.Finding, error) {
	gv := schema.GroupVersion{Group: ConstraintGroup, Version: DefaultVersion}.String()
	resources, err := target.Discovery.ServerResourcesForGroupVersion(gv)
	if err != nil {
		return nil, fmt.Errorf("gatekeeper constraints not available in cluster %q (is Gatekeeper installed?): %w", target.Cluster, err)
	}

	observedAt := time.Now()
	var findings []types.Finding

	for _, res := range resources.APIResources {
		// Skip subresources like <kind>/status.
		if strings.Contains(res.Name, "/") {
			continue
		}
		if !s.wantKind(res.Kind) {
			continue
		}

		gvr := schema.GroupVersionResource{Group: ConstraintGroup, Version: DefaultVersion, Resource: res.Name}
		list, err := target.Dynamic.Resource(gvr).List(ctx, metav1.ListOptions{})
		if err != nil {
			s.logger.Warn("Failed to list constraints",
				zap.String("cluster", target.Cluster),
				zap.String("resource", res.Name),
				zap.Error(err),
			)
			continue
		}

		for _, constraint := range list.Items {
			findings = append(findings, s.constraintFindings(&constraint, opts, observedAt, target.Cluster)...)
		}
	}

	s.logger.Info("Gatekeeper scan complete",
		zap.String("cluster", target.Cluster),
		zap.Int("violations", len(findings)),
	)
	return findings, nil
}

func (s *Scanner) wantKind(kind string) bool {
	if len(s.constraintKinds) == 0 {
		return true
	}
	for _, k := range s.constraintKinds {
		if strings.EqualFold(k, kind) {
			return true
		}
	}
	return false
}

// constraintFindings converts one constraint's audit results into findings.
func (s *Scanner) constraintFindings(constraint *unstructured.Unstructured, opts types.ScanOptions, observedAt time.Time, cluster string) []types.Finding {
	kind := constraint.GetKind()
	name := constraint.GetName()

	enforcementAction := util.SafeNestedString(constraint.Object, "spec", "enforcementAction")
	if enforcementAction == "" {
		enforcementAction = "deny" // Gatekeeper's default
	}
	severity := mapEnforcementToSeverity(enforcementAction)
	if !opts.Severity.Matches(string(severity)) {
		return nil
	}

	totalViolations := util.SafeNestedInt64(constraint.Object, "status", "totalViolations")
	violations := util.SafeNestedSlice(constraint.Object, "status", "violations")

	base := types.Finding{
		Kind:           types.FindingKindViolation,
		Severity:       severity,
		VendorSeverity: enforcementAction,
		Cluster:        cluster,
		Component:      kind,
		ObservedAt:     observedAt,
		Details: map[string]interface{}{
			"constraint":        name,
			"enforcementAction": enforcementAction,
			"totalViolations":   totalViolations,
		},
	}

	var findings []types.Finding
	listed := 0
	for _, v := range violations {
		vMap, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		listed++

		ns := util.SafeStringFromMap(vMap, "namespace")
		if !opts.InNamespaceFilter(ns) {
			continue
		}

		f := base
		f.Namespace = ns
		f.Resource = util.SafeStringFromMap(vMap, "kind") + "/" + util.SafeStringFromMap(vMap, "name")
		f.ID = fmt.Sprintf("%s/%s/%s/%s", kind, name, ns, util.SafeStringFromMap(vMap, "name"))
		f.Message = util.SafeStringFromMap(vMap, "message")
		findings = append(findings, f)
	}

	// The audit caps status.violations; surface the truncated remainder so
	// counts still reflect reality. No namespace attribution is possible here,
	// so namespace filters suppress it.
	if remainder := totalViolations - int64(listed); remainder > 0 && len(opts.Namespaces) == 0 {
		f := base
		f.ID = fmt.Sprintf("%s/%s/truncated", kind, name)
		f.Resource = kind + "/" + name
		f.Message = fmt.Sprintf("%d additional violations not listed in audit results (constraintViolationsLimit reached)", remainder)
		findings = append(findings, f)
	}

	return findings
}

// mapEnforcementToSeverity maps a Gatekeeper enforcement action to a severity.
func mapEnforcementToSeverity(action string) types.Severity {
	switch strings.ToLower(action) {
	case "deny":
		return types.SeverityCritical
	case "warn":
		return types.SeverityMedium
	case "dryrun":
		return types.SeverityLow
	default:
		return types.SeverityCritical // unknown actions behave like deny
	}
}
