package report

import (
	"sort"
	"time"

	"github.com/deepak-muley/nkpsec/internal/types"
)

// Report is a rendered view over one scan's findings.
type Report struct {
	// Title names the report, e.g. "CVE Report" or "Policy Violation Report".
	Title string

	// Cluster labels the scanned cluster, or "fleet" for aggregates.
	// It may carry a human-readable display name for headers.
	Cluster string

	// ClusterKey is the short fleet name used in export filenames, where
	// a display name's spaces and parentheses have no place. Empty falls
	// back to Cluster.
	ClusterKey string

	// Severity is the filter the findings were collected under.
	Severity types.SeverityFilter

	// Namespaces is the namespace filter, empty for cluster-wide scans.
	Namespaces []string

	Findings    []types.Finding
	GeneratedAt time.Time
}

// NewReport builds a report, stamping the generation time.
func NewReport(title, cluster string, severity types.SeverityFilter, namespaces []string, findings []types.Finding) Report {
	return Report{
		Title:       title,
		Cluster:     cluster,
		Severity:    severity,
		Namespaces:  namespaces,
		Findings:    findings,
		GeneratedAt: time.Now(),
	}
}

// BySeverity groups the findings per severity, preserving their
// relative order within each group.
func (r Report) BySeverity() map[types.Severity][]types.Finding {
	groups := make(map[types.Severity][]types.Finding)
	for _, f := range r.Findings {
		groups[f.Severity] = append(groups[f.Severity], f)
	}
	return groups
}

// Counts tallies the findings per severity.
func (r Report) Counts() map[types.Severity]int {
	return types.CountBySeverity(r.Findings)
}

// Clusters returns the sorted distinct cluster names in the findings.
// Fleet reports span several, single-cluster reports exactly one.
func (r Report) Clusters() []string {
	seen := make(map[string]bool)
	var clusters []string
	for _, f := range r.Findings {
		if f.Cluster != "" && !seen[f.Cluster] {
			seen[f.Cluster] = true
			clusters = append(clusters, f.Cluster)
		}
	}
	sort.Strings(clusters)
	return clusters
}
