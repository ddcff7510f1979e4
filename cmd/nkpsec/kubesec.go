package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/deepak-muley/nkpsec/internal/report"
	"github.com/deepak-muley/nkpsec/internal/scanners/kubesec"
	"github.com/deepak-muley/nkpsec/internal/types"
)

var kubesecMinScore int

func kubesecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kubesec [manifest.yaml ...]",
		Short: "Score manifests against the kubesec.io ruleset",
		Long: `Score workload manifests with a kubesec v2 endpoint.

With file arguments, the local manifests are scored. Without arguments,
live Deployments, StatefulSets and DaemonSets are serialized and scored
instead. Failed critical rules become Critical findings, advisory rules
become Low. The endpoint defaults to the public https://v2.kubesec.io/scan
and can point at a self-hosted instance via the kubesecEndpoint config
key.

Examples:
  # Score local manifests
  nkpsec kubesec deployment.yaml statefulset.yaml

  # Score everything running in the kommander namespace
  nkpsec kubesec -n kommander

  # Gate a pipeline on a minimum score
  nkpsec kubesec deployment.yaml --min-score 5`,
		RunE: runKubesec,
	}
	cmd.Flags().IntVar(&kubesecMinScore, "min-score", 0, "Exit with code 2 when any workload scores below this")
	return cmd
}

func runKubesec(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := kubesec.NewClient(logger, cfg.KubesecEndpoint, kubesec.ClientOptions{})
	if err != nil {
		return err
	}
	scanner := kubesec.New(logger, client)

	// File mode bypasses the fleet: no cluster access needed.
	if len(args) > 0 {
		opts := scanOptions(cfg)
		findings, err := scanner.ScanFiles(cmd.Context(), args, opts)
		if err != nil {
			return err
		}

		r := report.NewReport("Kubesec Score Report", "local", opts.Severity, nil, findings)
		r.ClusterKey = "local"
		if outputFmt == "report" {
			report.NewTerminalRenderer(os.Stdout, term.IsTerminal(int(os.Stdout.Fd()))).Render(r)
		} else {
			result := FindingsResult{
				Cluster:  "local",
				Severity: opts.Severity.String(),
				Total:    len(findings),
				Findings: findings,
			}
			if err := outputResult(result, outputFmt); err != nil {
				return err
			}
		}
		if exportReport {
			if _, err := report.ExportMarkdown(cfg.ExportDir, "kubesec", r); err != nil {
				return err
			}
		}
		if err := checkFailOn(findings); err != nil {
			return err
		}
		return checkMinScore(cmd, findings)
	}

	findings, err := runScan(cmd.Context(), logger, []types.Scanner{scanner}, "Kubesec Score Report", "kubesec")
	if err != nil {
		return err
	}
	return checkMinScore(cmd, findings)
}

// checkMinScore enforces --min-score against the per-workload scores the
// scanner records on every finding. Scores can be negative, so the flag
// counts as set only when the user passed it.
func checkMinScore(cmd *cobra.Command, findings []types.Finding) error {
	if !cmd.Flags().Changed("min-score") {
		return nil
	}
	for _, f := range findings {
		score, ok := f.Details["score"].(int)
		if !ok {
			continue
		}
		if score < kubesecMinScore {
			return fmt.Errorf("%w: %s scored %d (minimum %d)", errScoreBelowThreshold, f.Resource, score, kubesecMinScore)
		}
	}
	return nil
}
