package diagram

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Render lays the graph out as a markdown block diagram. Every app
// appears exactly once: inside the chain of the first root that reaches
// it, or in the orphans section.
func Render(g *Graph) string {
	var lines []string
	lines = append(lines,
		"# ClusterApp Dependency Block Diagram",
		"",
		"This diagram shows each ClusterApp once as a block with its dependencies (parents) and dependents (children).",
		"Root nodes (apps with no dependencies) are shown at the top of each chain.",
		"",
		"## Block Diagram",
		"",
		"```",
		"",
	)

	processed := make(map[string]bool)
	for rootIdx, root := range g.Roots() {
		if rootIdx > 0 {
			lines = append(lines, "", strings.Repeat("─", 80), "")
		}
		lines = append(lines, fmt.Sprintf("### Root Chain %d: %s", rootIdx+1, root), "")

		for _, app := range g.chainFrom(root, processed) {
			lines = append(lines, g.drawBlock(app)...)
			lines = append(lines, "")
		}
	}

	var orphans []string
	for app := range g.Apps {
		if !processed[app] {
			orphans = append(orphans, app)
		}
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		lines = append(lines, "", strings.Repeat("─", 80), "",
			"### Orphaned Apps (not connected to any root)", "")
		for _, app := range orphans {
			lines = append(lines, g.drawBlock(app)...)
			lines = append(lines, "")
		}
	}

	lines = append(lines, "```", "")
	return strings.Join(lines, "\n")
}

// WriteMarkdown renders the graph into path, creating parent
// directories as needed.
func WriteMarkdown(path string, g *Graph) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create diagram directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(Render(g)), 0o644); err != nil {
		return fmt.Errorf("write diagram: %w", err)
	}
	return nil
}

// chainFrom walks the dependent graph breadth first from root and
// returns the apps reached, skipping any claimed by an earlier chain.
func (g *Graph) chainFrom(root string, processed map[string]bool) []string {
	var chain []string
	queue := []string{root}
	queued := map[string]bool{root: true}

	for len(queue) > 0 {
		app := queue[0]
		queue = queue[1:]
		if processed[app] {
			continue
		}
		chain = append(chain, app)
		processed[app] = true

		for _, child := range g.Dependents[app] {
			if !processed[child] && !queued[child] {
				queued[child] = true
				queue = append(queue, child)
			}
		}
	}
	return chain
}

// drawBlock renders one app box with its parents above and children below.
func (g *Graph) drawBlock(app string) []string {
	var lines []string

	deps := g.Apps[app]
	children := g.Dependents[app]

	if len(deps) > 0 {
		shortDeps := make([]string, 0, len(deps))
		for _, d := range deps {
			shortDeps = append(shortDeps, truncate(d, 30))
		}
		lines = append(lines,
			"    ┌─ Parents (depends on): "+strings.Join(shortDeps, ", "),
			"    │",
			"    ▼",
		)
	}

	display := truncate(app, 60)
	width := len(display) + 4
	if width < 50 {
		width = 50
	}
	border := strings.Repeat("─", width-4)
	lines = append(lines, "┌─"+border+"─┐")
	if len(deps) == 0 {
		lines = append(lines, "│ "+display+" [ROOT]"+pad(width-len(display)-8)+"│")
	} else {
		lines = append(lines, "│ "+display+pad(width-len(display)-4)+"│")
	}
	lines = append(lines, "└─"+border+"─┘")

	if len(children) > 0 {
		lines = append(lines, "    │", "    ▼", "    └─ Children (used by):")
		for i, child := range children {
			connector := "      ├─"
			if i == len(children)-1 {
				connector = "      └─"
			}
			lines = append(lines, connector+" "+truncate(child, 55))
		}
	} else {
		lines = append(lines, "    └─ (no dependents)")
	}

	return lines
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func pad(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(" ", n)
}
