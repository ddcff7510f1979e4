package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"sigs.k8s.io/yaml"

	"github.com/deepak-muley/nkpsec/internal/store"
	"github.com/deepak-muley/nkpsec/internal/types"
)

// FindingsResult is the machine-readable scan output.
type FindingsResult struct {
	Cluster  string          `json:"cluster"`
	Severity string          `json:"severity"`
	Total    int             `json:"total"`
	Findings []types.Finding `json:"findings"`
}

// ClusterInfo is one row of the clusters command.
type ClusterInfo struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Version     string   `json:"version,omitempty"`
	Status      string   `json:"status"`
}

// ClustersResult is the result of the clusters command.
type ClustersResult struct {
	Clusters []ClusterInfo `json:"clusters"`
}

// HistoryResult is the result of the history command.
type HistoryResult struct {
	Scans []store.ScanRecord `json:"scans"`
	Delta *store.Delta       `json:"delta,omitempty"`
}

// outputResult renders a result in the selected format. The "report"
// format is handled by the individual commands; everything reaching
// here is table, json, or yaml.
func outputResult(result interface{}, format string) error {
	switch format {
	case "json":
		return outputJSON(result)
	case "yaml":
		return outputYAML(result)
	default:
		return outputTable(result)
	}
}

func outputJSON(result interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputYAML(result interface{}) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func outputTable(result interface{}) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch r := result.(type) {
	case FindingsResult:
		return outputFindingsTable(w, r)
	case ClustersResult:
		return outputClustersTable(w, r)
	case HistoryResult:
		return outputHistoryTable(w, r)
	default:
		return outputJSON(result)
	}
}

func outputFindingsTable(w *tabwriter.Writer, r FindingsResult) error {
	fmt.Fprintln(w, "ID\tKIND\tSEVERITY\tCLUSTER\tNAMESPACE\tRESOURCE\tMESSAGE")
	for _, f := range r.Findings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			f.ID, f.Kind, f.Severity, f.Cluster, orDash(f.Namespace), orDash(f.Resource), truncateMessage(f.Message))
	}
	fmt.Fprintf(w, "\nTotal: %d\n", r.Total)
	return nil
}

func outputClustersTable(w *tabwriter.Writer, r ClustersResult) error {
	fmt.Fprintln(w, "NAME\tDISPLAY NAME\tROLES\tVERSION\tSTATUS")
	for _, c := range r.Clusters {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.Name, orDash(c.DisplayName), orDash(strings.Join(c.Roles, ",")), orDash(c.Version), c.Status)
	}
	return nil
}

func outputHistoryTable(w *tabwriter.Writer, r HistoryResult) error {
	fmt.Fprintln(w, "ID\tCLUSTER\tSCANNER\tSEVERITY\tSTARTED\tFINDINGS")
	for _, s := range r.Scans {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n",
			s.ID, s.Cluster, s.Scanner, s.SeverityFilter, s.StartedAt.Format("2006-01-02 15:04:05"), s.FindingCount)
	}
	if r.Delta != nil {
		fmt.Fprintf(w, "\nNew since previous scan: %d\n", len(r.Delta.New))
		for _, id := range r.Delta.New {
			fmt.Fprintf(w, "  + %s\n", id)
		}
		fmt.Fprintf(w, "Resolved since previous scan: %d\n", len(r.Delta.Resolved))
		for _, id := range r.Delta.Resolved {
			fmt.Fprintf(w, "  - %s\n", id)
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncateMessage(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
