package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/deepak-muley/nkpsec/internal/harden"
	"github.com/deepak-muley/nkpsec/internal/types"
)

var (
	hardenFix    bool
	hardenFixDir string
)

func hardenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harden",
		Short: "Audit workload security contexts against the restricted profile",
		Long: `Audit security contexts and optionally generate remediations.

Each container is checked against the restricted Pod Security profile:
privileged, allowPrivilegeEscalation, runAsNonRoot,
readOnlyRootFilesystem, dropped capabilities and seccompProfile. With
--fix, a hardened manifest and a strategic merge patch are written per
failing workload for review; the cluster itself is never modified.

Examples:
  # Audit the kommander namespace
  nkpsec harden -n kommander

  # Write remediations for every failing workload
  nkpsec harden -n kommander --fix --fix-dir ./remediations`,
		RunE: runHarden,
	}
	cmd.Flags().BoolVar(&hardenFix, "fix", false, "Write hardened manifests and patches for failing workloads")
	cmd.Flags().StringVar(&hardenFixDir, "fix-dir", "", "Directory for remediation files (default: the export dir)")
	return cmd
}

func runHarden(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// A tripped --fail-on threshold must not skip remediation: the fix
	// files matter most exactly when findings exist, so that error is
	// held until they are written.
	_, scanErr := runScan(cmd.Context(), logger, []types.Scanner{harden.NewScanner(logger)}, "Security Context Report", "securitycontext")
	if scanErr != nil && !errors.Is(scanErr, errFindingsAboveThreshold) {
		return scanErr
	}
	if !hardenFix {
		return scanErr
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	clusters, err := selectClusters(cfg)
	if err != nil {
		return err
	}
	dir := hardenFixDir
	if dir == "" {
		dir = cfg.ExportDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create fix dir: %w", err)
	}

	namespaces := namespaceList
	if len(namespaces) == 0 {
		namespaces = []string{metav1.NamespaceAll}
	}

	written := 0
	for _, cluster := range clusters {
		target, err := targetFunc(cluster)
		if err != nil {
			logger.Warn("Skipping unreachable cluster for remediation",
				zap.String("cluster", cluster.Name),
				zap.Error(err),
			)
			continue
		}
		for _, ns := range namespaces {
			workloads, err := harden.ListWorkloads(cmd.Context(), target, ns)
			if err != nil {
				return err
			}
			for _, w := range workloads {
				if !harden.NeedsHardening(w) {
					continue
				}
				rem, err := harden.WriteRemediation(dir, w)
				if err != nil {
					return err
				}
				written++
				fmt.Fprintf(os.Stderr, "Wrote %s and %s\n", rem.ManifestPath, rem.PatchPath)
			}
		}
	}
	fmt.Fprintf(os.Stderr, "Remediations written for %d workloads\n", written)
	return scanErr
}
