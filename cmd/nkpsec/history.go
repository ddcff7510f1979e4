package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deepak-muley/nkpsec/internal/store"
)

var (
	historyLimit   int
	historyScanner string
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded scan history and deltas",
		Long: `Show scan runs persisted in the history store.

Requires the storeDSN config key (or NKPSEC_STOREDSN) pointing at a
PostgreSQL database. With --scanner, the two most recent runs for the
selected cluster are diffed into new and resolved findings.

Examples:
  # Recent scans across the fleet
  nkpsec history

  # What changed since the last CVE scan of mgmt
  nkpsec history --cluster mgmt --scanner cve`,
		RunE: runHistory,
	}
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum scan runs to list")
	cmd.Flags().StringVar(&historyScanner, "scanner", "", "Diff the two latest runs of this scanner (cve, violation, kubesec, securitycontext)")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StoreDSN == "" {
		return fmt.Errorf("scan history requires the storeDSN config key")
	}

	s, err := store.Open(logger, cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer s.Close()

	scans, err := s.History(cmd.Context(), clusterName, historyLimit)
	if err != nil {
		return err
	}
	result := HistoryResult{Scans: scans}

	if historyScanner != "" {
		cluster, err := cfg.Cluster(clusterName)
		if err != nil {
			return err
		}
		delta, err := s.Delta(cmd.Context(), cluster.Name, historyScanner)
		if err != nil {
			return err
		}
		result.Delta = &delta
	}

	if outputFmt == "report" {
		outputFmt = "table"
	}
	return outputResult(result, outputFmt)
}
