package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/deepak-muley/nkpsec/internal/types"
)

// ANSI escape sequences for terminal output.
const (
	ansiRed    = "\033[0;31m"
	ansiGreen  = "\033[0;32m"
	ansiYellow = "\033[1;33m"
	ansiBlue   = "\033[0;34m"
	ansiCyan   = "\033[0;36m"
	ansiReset  = "\033[0m"
)

const ruleWidth = 64

// TerminalRenderer writes colored, human-oriented report output.
type TerminalRenderer struct {
	w io.Writer

	// color controls ANSI escapes; disable when not writing to a TTY.
	color bool
}

// NewTerminalRenderer creates a renderer for w.
func NewTerminalRenderer(w io.Writer, color bool) *TerminalRenderer {
	return &TerminalRenderer{w: w, color: color}
}

func (t *TerminalRenderer) paint(color, s string) string {
	if !t.color {
		return s
	}
	return color + s + ansiReset
}

func severityColor(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return ansiRed
	case types.SeverityHigh:
		return ansiYellow
	case types.SeverityMedium:
		return ansiBlue
	case types.SeverityLow:
		return ansiGreen
	default:
		return ansiCyan
	}
}

// Banner prints a boxed cyan section header.
func (t *TerminalRenderer) Banner(text string) {
	rule := strings.Repeat("=", ruleWidth)
	fmt.Fprintf(t.w, "\n%s\n", t.paint(ansiCyan, rule))
	fmt.Fprintf(t.w, "%s\n", t.paint(ansiCyan, "  "+text))
	fmt.Fprintf(t.w, "%s\n\n", t.paint(ansiCyan, rule))
}

// Infof prints a cyan "key: value" progress line.
func (t *TerminalRenderer) Infof(key, format string, args ...interface{}) {
	fmt.Fprintf(t.w, "%s %s\n", t.paint(ansiCyan, key+":"), fmt.Sprintf(format, args...))
}

// Successf prints a green checkmark line.
func (t *TerminalRenderer) Successf(format string, args ...interface{}) {
	fmt.Fprintf(t.w, "%s\n", t.paint(ansiGreen, "✓ "+fmt.Sprintf(format, args...)))
}

// Errorf prints a red error line.
func (t *TerminalRenderer) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(t.w, "%s\n", t.paint(ansiRed, fmt.Sprintf(format, args...)))
}

// Render prints the full report: banner, severity summary, then one
// section per severity in descending urgency.
func (t *TerminalRenderer) Render(r Report) {
	header := fmt.Sprintf("%s - %s (Severity: %s)", r.Title, r.Cluster, strings.ToUpper(r.Severity.String()))
	t.Banner(header)

	if len(r.Findings) == 0 {
		t.Successf("No findings matching severity filter: %s", r.Severity.String())
		fmt.Fprintln(t.w)
		return
	}

	counts := r.Counts()
	fmt.Fprintf(t.w, "%s\n", t.paint(ansiCyan, "Summary:"))
	for _, sev := range types.Severities {
		fmt.Fprintf(t.w, "  %s\n", t.paint(severityColor(sev), fmt.Sprintf("%s: %d", sev, counts[sev])))
	}
	fmt.Fprintln(t.w)

	groups := r.BySeverity()
	rule := strings.Repeat("─", ruleWidth)
	for _, sev := range types.Severities {
		findings := groups[sev]
		if len(findings) == 0 {
			continue
		}
		fmt.Fprintf(t.w, "%s\n", t.paint(ansiCyan, rule))
		fmt.Fprintf(t.w, "%s\n", t.paint(ansiCyan, strings.ToUpper(string(sev))+" Severity Findings"))
		fmt.Fprintf(t.w, "%s\n\n", t.paint(ansiCyan, rule))

		for _, f := range findings {
			t.renderFinding(f)
			fmt.Fprintf(t.w, "%s\n\n", rule)
		}
	}
}

// renderFinding prints one finding's fields, adapted to its kind.
func (t *TerminalRenderer) renderFinding(f types.Finding) {
	switch f.Kind {
	case types.FindingKindCVE:
		fmt.Fprintf(t.w, "CVE: %s\n", orNA(f.ID))
		fmt.Fprintf(t.w, "Severity: %s\n", orNA(f.VendorSeverity))
		fmt.Fprintf(t.w, "Component: %s\n", orNA(f.Component))
		fmt.Fprintf(t.w, "Namespace: %s\n", orNA(f.Namespace))
		fmt.Fprintf(t.w, "Image: %s\n", orNA(f.Image))
		fmt.Fprintf(t.w, "Fixed Version: %s\n", orNA(f.FixedVersion))
		fmt.Fprintf(t.w, "Description: %s\n", orNA(f.Message))
	case types.FindingKindViolation:
		fmt.Fprintf(t.w, "Constraint: %s\n", orNA(detailString(f, "constraint")))
		fmt.Fprintf(t.w, "Kind: %s\n", orNA(f.Component))
		fmt.Fprintf(t.w, "Enforcement: %s\n", orNA(f.VendorSeverity))
		fmt.Fprintf(t.w, "Namespace: %s\n", orNA(f.Namespace))
		fmt.Fprintf(t.w, "Resource: %s\n", orNA(f.Resource))
		fmt.Fprintf(t.w, "Message: %s\n", orNA(f.Message))
	default:
		fmt.Fprintf(t.w, "Check: %s\n", orNA(f.Component))
		fmt.Fprintf(t.w, "Severity: %s\n", orNA(string(f.Severity)))
		fmt.Fprintf(t.w, "Namespace: %s\n", orNA(f.Namespace))
		fmt.Fprintf(t.w, "Resource: %s\n", orNA(f.Resource))
		fmt.Fprintf(t.w, "Message: %s\n", orNA(f.Message))
	}
	if f.Cluster != "" {
		fmt.Fprintf(t.w, "Cluster: %s\n", f.Cluster)
	}
}

func detailString(f types.Finding, key string) string {
	if f.Details == nil {
		return ""
	}
	s, _ := f.Details[key].(string)
	return s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
