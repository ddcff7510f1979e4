package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deepak-muley/nkpsec/internal/types"
)

// severityEmoji marks summary table rows the way Jira renders them.
var severityEmoji = map[types.Severity]string{
	types.SeverityCritical: "🔴",
	types.SeverityHigh:     "🟠",
	types.SeverityMedium:   "🟡",
	types.SeverityLow:      "🟢",
}

// ExportFilename builds the timestamped report filename:
// nkpsec-<kind>-report-<cluster>-<severity>[-ns-<namespaces>]-<YYYYMMDD-HHMMSS>.md
func ExportFilename(kind string, r Report) string {
	cluster := r.ClusterKey
	if cluster == "" {
		cluster = r.Cluster
	}
	suffix := fmt.Sprintf("%s-%s", cluster, r.Severity.String())
	if len(r.Namespaces) > 0 {
		suffix += "-ns-" + strings.Join(r.Namespaces, "-")
	}
	timestamp := r.GeneratedAt.Format("20060102-150405")
	return fmt.Sprintf("nkpsec-%s-report-%s-%s.md", kind, suffix, timestamp)
}

// ExportMarkdown writes the report as Jira-pasteable markdown into dir
// and returns the written path. The kind slug ("cve", "violation", ...)
// becomes part of the filename.
func ExportMarkdown(dir, kind string, r Report) (string, error) {
	path := filepath.Join(dir, ExportFilename(kind, r))
	if err := os.WriteFile(path, []byte(RenderMarkdown(r)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// RenderMarkdown renders the report body.
func RenderMarkdown(r Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.Title)
	fmt.Fprintf(&b, "**Cluster:** %s\n", r.Cluster)
	fmt.Fprintf(&b, "**Severity Filter:** %s\n", strings.ToUpper(r.Severity.String()))
	if len(r.Namespaces) > 0 {
		fmt.Fprintf(&b, "**Namespace Filter:** %s\n", strings.Join(r.Namespaces, ","))
	}
	fmt.Fprintf(&b, "**Generated:** %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	b.WriteString("---\n\n")

	if len(r.Findings) == 0 {
		b.WriteString("## Summary\n\n")
		fmt.Fprintf(&b, "✅ No findings matching severity filter: `%s`\n\n", r.Severity.String())
	} else {
		counts := r.Counts()
		b.WriteString("## Summary\n\n")
		b.WriteString("| Severity | Count |\n")
		b.WriteString("|----------|-------|\n")
		for _, sev := range types.Severities {
			fmt.Fprintf(&b, "| %s %s | %d |\n", severityEmoji[sev], sev, counts[sev])
		}
		b.WriteString("\n---\n\n")

		b.WriteString("## Detailed Findings\n\n")
		groups := r.BySeverity()
		for _, sev := range types.Severities {
			findings := groups[sev]
			if len(findings) == 0 {
				continue
			}
			fmt.Fprintf(&b, "### %s Severity Findings\n\n", strings.ToUpper(string(sev)))
			writeTable(&b, findings)
			b.WriteString("\n")
		}
	}

	b.WriteString("---\n\n")
	b.WriteString("*Report generated by nkpsec*\n")
	return b.String()
}

// writeTable emits one markdown table, with columns adapted to the kind
// of finding in the group.
func writeTable(b *strings.Builder, findings []types.Finding) {
	if findings[0].Kind == types.FindingKindCVE {
		b.WriteString("| CVE ID | Component | Namespace | Image | Fixed Version | Description |\n")
		b.WriteString("|--------|-----------|-----------|-------|--------------|-------------|\n")
		for _, f := range findings {
			fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s |\n",
				cell(f.ID), cell(f.Component), cell(f.Namespace),
				cell(f.Image), cell(f.FixedVersion), cell(f.Message))
		}
		return
	}

	b.WriteString("| ID | Resource | Namespace | Component | Cluster | Message |\n")
	b.WriteString("|----|----------|-----------|-----------|---------|--------|\n")
	for _, f := range findings {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s |\n",
			cell(f.ID), cell(f.Resource), cell(f.Namespace),
			cell(f.Component), cell(f.Cluster), cell(f.Message))
	}
}

// cell escapes pipes so free-form text cannot break the table, and
// falls back to N/A for empty values.
func cell(s string) string {
	if s == "" {
		return "N/A"
	}
	return strings.ReplaceAll(s, "|", "\\|")
}
