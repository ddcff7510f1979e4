// nkpsec is a CLI for auditing the security posture of an NKP fleet.
//
// Installation:
//
//	go build -o nkpsec ./cmd/nkpsec
//	mv nkpsec /usr/local/bin/
//
// Usage:
//
//	nkpsec cves critical --cluster mgmt
//	nkpsec violations --all-clusters
//	nkpsec kubesec deployment.yaml
//	nkpsec harden -n kommander --fix
//	nkpsec appdiagram
//	nkpsec clusters
//	nkpsec serve --interval 15m
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deepak-muley/nkpsec/internal/fleet"
	"github.com/deepak-muley/nkpsec/internal/types"
	"github.com/deepak-muley/nkpsec/internal/util"
)

var (
	version = "dev"

	cfgFile        string
	outputFmt      string
	clusterName    string
	kubeconfigPath string
	severityFlag   string
	failOn         string
	namespaceList  []string
	allClusters    bool
	exportReport   bool
	verbose        bool
)

// errFindingsAboveThreshold and errScoreBelowThreshold signal the
// --fail-on and --min-score exit paths; main maps both to exit code 2
// so CI pipelines can gate on scan results.
var (
	errFindingsAboveThreshold = errors.New("findings at or above the fail-on threshold")
	errScoreBelowThreshold    = errors.New("kubesec score below the min-score threshold")
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errFindingsAboveThreshold) || errors.Is(err, errScoreBelowThreshold) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nkpsec",
		Short: "Audit security posture across an NKP fleet",
		Long: `nkpsec aggregates security findings from NKP clusters.

It reads Kubescape Operator CRDs for image CVEs, Gatekeeper constraint
status for policy violations, kubesec.io scores for manifest risk, and
workload security contexts for restricted-profile gaps, and renders
them as terminal reports, Jira-pasteable markdown, or JSON/YAML.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Fleet config file (default: ./.nkpsec.yaml, $HOME/.nkpsec.yaml)")
	pf.StringVarP(&outputFmt, "output", "o", "report", "Output format: report, table, json, yaml")
	pf.StringVar(&clusterName, "cluster", "", "Cluster to scan (default: the config's defaultCluster)")
	pf.BoolVar(&allClusters, "all-clusters", false, "Scan every cluster in the fleet config")
	pf.StringVar(&kubeconfigPath, "kubeconfig", "", "Kubeconfig path, for running without a fleet config")
	pf.StringVarP(&severityFlag, "severity", "s", "", "Severity filter: critical, high, medium, low, all")
	pf.StringSliceVarP(&namespaceList, "namespace", "n", nil, "Restrict findings to these namespaces")
	pf.BoolVar(&exportReport, "export", false, "Also write a timestamped markdown report to the export dir")
	pf.StringVar(&failOn, "fail-on", "", "Exit with code 2 when findings at or above this severity exist")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(cvesCmd())
	rootCmd.AddCommand(violationsCmd())
	rootCmd.AddCommand(kubesecCmd())
	rootCmd.AddCommand(hardenCmd())
	rootCmd.AddCommand(appdiagramCmd())
	rootCmd.AddCommand(clustersCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(serveCmd())

	return rootCmd
}

// newLogger builds the CLI logger. Human-oriented output goes through
// the terminal renderer; the zap logger carries diagnostics.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// loadConfig loads the fleet config, honoring --kubeconfig as an ad hoc
// single-cluster fleet when no clusters are configured.
func loadConfig() (*fleet.Config, error) {
	cfg, err := fleet.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if kubeconfigPath != "" {
		cfg.Clusters = []fleet.ClusterConfig{{
			Name:       "default",
			Kubeconfig: kubeconfigPath,
		}}
		cfg.DefaultCluster = "default"
	}
	if len(cfg.Clusters) == 0 {
		return nil, fmt.Errorf("no clusters configured: write a fleet config or pass --kubeconfig")
	}
	return cfg, nil
}

// selectClusters resolves --cluster / --all-clusters against the config.
func selectClusters(cfg *fleet.Config) ([]fleet.ClusterConfig, error) {
	if allClusters {
		return cfg.Clusters, nil
	}
	cluster, err := cfg.Cluster(clusterName)
	if err != nil {
		return nil, err
	}
	return []fleet.ClusterConfig{cluster}, nil
}

// scanOptions builds the scan options from flags, falling back to the
// config's default severity.
func scanOptions(cfg *fleet.Config) types.ScanOptions {
	severity := severityFlag
	if severity == "" {
		severity = cfg.Severity
	}
	return types.ScanOptions{
		Namespaces: util.UniqueStrings(namespaceList),
		Severity:   types.NewSeverityFilter(severity),
	}
}

// reportCluster labels the report header: the display name for single
// cluster scans, "fleet" for multi-cluster ones.
func reportCluster(clusters []fleet.ClusterConfig) string {
	if len(clusters) == 1 {
		if clusters[0].DisplayName != "" {
			return clusters[0].DisplayName
		}
		return clusters[0].Name
	}
	return "fleet"
}

// reportClusterKey labels export filenames: the short fleet name for
// single cluster scans, "fleet" for multi-cluster ones.
func reportClusterKey(clusters []fleet.ClusterConfig) string {
	if len(clusters) == 1 {
		return clusters[0].Name
	}
	return "fleet"
}

// checkFailOn enforces the --fail-on threshold.
func checkFailOn(findings []types.Finding) error {
	if failOn == "" {
		return nil
	}
	threshold := types.ParseSeverity(failOn)
	if threshold == types.SeverityUnknown {
		return fmt.Errorf("invalid --fail-on severity %q", failOn)
	}
	for _, f := range findings {
		if f.Severity.AtLeast(threshold) {
			return fmt.Errorf("%w (>= %s)", errFindingsAboveThreshold, threshold)
		}
	}
	return nil
}
