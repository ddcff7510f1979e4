package main

import (
	"github.com/spf13/cobra"

	"github.com/deepak-muley/nkpsec/internal/scanners/kubescape"
	"github.com/deepak-muley/nkpsec/internal/types"
)

func cvesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cves [severity]",
		Short: "Report image CVEs from the Kubescape Operator",
		Long: `Aggregate CVEs from Kubescape Operator vulnerability manifests.

The scan walks VulnerabilityManifestSummary resources, follows their
manifest references into the kubescape namespace, and deduplicates CVE
ids across workloads. The optional severity argument filters by
case-insensitive substring match.

Examples:
  # All CVEs on the default cluster
  nkpsec cves

  # Critical CVEs in two namespaces
  nkpsec cves critical -n kommander -n kube-system

  # Fleet-wide, exported as markdown for Jira
  nkpsec cves high --all-clusters --export`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCVEs,
	}
	return cmd
}

func runCVEs(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		severityFlag = args[0]
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	scanners := []types.Scanner{kubescape.New(logger, kubescape.Options{})}
	_, err = runScan(cmd.Context(), logger, scanners, "Kubescape CVE Report", "cve")
	return err
}
