package types

import (
	"strings"
	"time"
)

// FindingKind categorizes the source of a finding.
type FindingKind string

const (
	FindingKindCVE             FindingKind = "CVE"
	FindingKindViolation       FindingKind = "Violation"
	FindingKindKubesec         FindingKind = "Kubesec"
	FindingKindSecurityContext FindingKind = "SecurityContext"
)

// Severity indicates how urgently a finding needs attention.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
	SeverityUnknown  Severity = "Unknown"
)

// Severities lists all known severities in descending order of urgency.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// rank maps severities to an ordering where lower is more urgent.
var rank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityUnknown:  4,
}

// Rank returns the ordering of s where lower is more urgent. Unknown
// severities rank last.
func (s Severity) Rank() int {
	if r, ok := rank[s]; ok {
		return r
	}
	return rank[SeverityUnknown]
}

// AtLeast reports whether s is at least as urgent as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() <= min.Rank()
}

// ParseSeverity normalizes a vendor severity string. Matching is
// case-insensitive and substring-based: Kubescape reports severities like
// "Critical" or "Negligible", Grype payloads embedded in its manifests use
// "High", and Gatekeeper enforcement actions are mapped elsewhere.
// Unrecognized values map to SeverityUnknown.
func ParseSeverity(s string) Severity {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(v, "critical"):
		return SeverityCritical
	case strings.Contains(v, "high"):
		return SeverityHigh
	case strings.Contains(v, "medium"):
		return SeverityMedium
	case strings.Contains(v, "low"):
		return SeverityLow
	default:
		return SeverityUnknown
	}
}

// SeverityFilter selects findings by severity.
type SeverityFilter struct {
	// raw is the lowercased filter value; empty or "all" matches everything.
	raw string
}

// NewSeverityFilter builds a filter from a CLI severity argument.
// "all", "" match everything; anything else is a case-insensitive substring
// match against the vendor severity string.
func NewSeverityFilter(s string) SeverityFilter {
	return SeverityFilter{raw: strings.ToLower(strings.TrimSpace(s))}
}

// All reports whether the filter matches every severity.
func (f SeverityFilter) All() bool {
	return f.raw == "" || f.raw == "all"
}

// Matches reports whether the vendor severity string passes the filter.
func (f SeverityFilter) Matches(vendorSeverity string) bool {
	if f.All() {
		return true
	}
	return strings.Contains(strings.ToLower(vendorSeverity), f.raw)
}

// String returns the raw filter value, or "all".
func (f SeverityFilter) String() string {
	if f.All() {
		return "all"
	}
	return f.raw
}

// Finding is the normalized, scanner-agnostic record of a single security
// issue discovered in a cluster.
type Finding struct {
	// ID identifies the issue within its kind: a CVE id, a constraint
	// violation key, a kubesec rule id, or a security-context check name.
	ID string

	Kind     FindingKind
	Severity Severity

	// VendorSeverity is the severity string as reported by the source
	// (e.g. "Negligible"). Severity is the normalized mapping.
	VendorSeverity string

	// Cluster is the fleet cluster name the finding was observed in.
	Cluster string

	// Namespace is the workload namespace, empty for cluster-scoped findings.
	Namespace string

	// Resource is the affected workload or constrained object ("Deployment/api").
	Resource string

	// Component is the affected package or container (CVE component, rule target).
	Component string

	// Image is the container image, when applicable.
	Image string

	// Message is a human-readable description.
	Message string

	// FixedVersion is the version that resolves a CVE, when known.
	FixedVersion string

	// Details holds scanner-specific fields (enforcement action, kubesec
	// score, failing check paths). Keys are well-known strings per scanner.
	Details map[string]interface{}

	// ObservedAt is when the finding was collected.
	ObservedAt time.Time
}

// CountBySeverity tallies findings per normalized severity.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int, len(rank))
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
