package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/deepak-muley/nkpsec/internal/fleet"
	"github.com/deepak-muley/nkpsec/internal/report"
	"github.com/deepak-muley/nkpsec/internal/store"
	"github.com/deepak-muley/nkpsec/internal/types"
)

// targetFunc builds the client bundle for a cluster. Overridable in tests.
var targetFunc = fleet.NewTarget

// runScan is the shared driver behind the scan commands: resolve the
// cluster selection, fan the scanners out, then render, export and
// persist the merged findings. The merged findings are returned so
// commands can apply their own thresholds on top of --fail-on.
func runScan(ctx context.Context, logger *zap.Logger, scanners []types.Scanner, title, kindSlug string) ([]types.Finding, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	clusters, err := selectClusters(cfg)
	if err != nil {
		return nil, err
	}
	opts := scanOptions(cfg)

	runner := fleet.NewRunner(logger, scanners, fleet.RunnerOptions{TargetFunc: targetFunc})
	results := runner.Run(ctx, clusters, opts)

	findings, failed := mergeFindings(results)
	if len(failed) == len(clusters) {
		return nil, fmt.Errorf("no cluster could be scanned (failed: %v)", failed)
	}

	r := report.NewReport(title, reportCluster(clusters), opts.Severity, opts.Namespaces, findings)
	r.ClusterKey = reportClusterKey(clusters)

	if outputFmt == "report" {
		t := report.NewTerminalRenderer(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
		t.Render(r)
		for _, name := range failed {
			t.Errorf("cluster %s could not be scanned", name)
		}
	} else {
		result := FindingsResult{
			Cluster:  r.Cluster,
			Severity: opts.Severity.String(),
			Total:    len(findings),
			Findings: findings,
		}
		if err := outputResult(result, outputFmt); err != nil {
			return nil, err
		}
	}

	if exportReport {
		path, err := report.ExportMarkdown(cfg.ExportDir, kindSlug, r)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Report saved to: %s\n", path)
	}

	if cfg.StoreDSN != "" {
		if err := recordScan(ctx, logger, cfg, kindSlug, clusters, opts, results); err != nil {
			logger.Warn("Failed to record scan history", zap.Error(err))
		}
	}

	return findings, checkFailOn(findings)
}

// mergeFindings flattens per-cluster results into one finding list,
// collecting the names of clusters that could not be scanned. A fleet
// report counts each CVE id once; the first cluster reporting it wins,
// matching the per-cluster dedup inside the kubescape scanner. Other
// finding kinds are inherently per-resource and never collapse.
func mergeFindings(results []fleet.ClusterResult) (findings []types.Finding, failed []string) {
	seenCVE := make(map[string]bool)
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, res.Cluster.Name)
			continue
		}
		for _, f := range res.Findings {
			if f.Kind == types.FindingKindCVE {
				if seenCVE[f.ID] {
					continue
				}
				seenCVE[f.ID] = true
			}
			findings = append(findings, f)
		}
	}
	return findings, failed
}

// recordScan persists per-cluster results so the history command can
// diff consecutive runs.
func recordScan(ctx context.Context, logger *zap.Logger, cfg *fleet.Config, scanner string, clusters []fleet.ClusterConfig, opts types.ScanOptions, results []fleet.ClusterResult) error {
	s, err := store.Open(logger, cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, res := range results {
		if res.Err != nil {
			continue
		}
		if _, err := s.RecordScan(ctx, res.Cluster.Name, scanner, opts.Severity, res.Findings); err != nil {
			return err
		}
	}
	return nil
}
