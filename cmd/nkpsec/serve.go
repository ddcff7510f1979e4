package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deepak-muley/nkpsec/internal/exporter"
	"github.com/deepak-muley/nkpsec/internal/fleet"
	"github.com/deepak-muley/nkpsec/internal/harden"
	"github.com/deepak-muley/nkpsec/internal/scanners/gatekeeper"
	"github.com/deepak-muley/nkpsec/internal/scanners/kubescape"
	"github.com/deepak-muley/nkpsec/internal/scanners/kubesec"
	"github.com/deepak-muley/nkpsec/internal/types"
)

var (
	serveAddr        string
	serveInterval    time.Duration
	serveWithKubesec bool
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Prometheus exporter",
		Long: `Serve fleet security posture as Prometheus metrics.

Every interval, all configured clusters are rescanned and finding
counts are republished by cluster, kind and severity on /metrics.
Kubesec scoring is off by default because it submits every workload
manifest to the configured endpoint each sweep; enable it with
--with-kubesec when pointing at a self-hosted instance.

Examples:
  nkpsec serve --addr :9402 --interval 15m`,
		RunE: runServe,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", ":9402", "Listen address")
	cmd.Flags().DurationVar(&serveInterval, "interval", 15*time.Minute, "Fleet rescan interval")
	cmd.Flags().BoolVar(&serveWithKubesec, "with-kubesec", false, "Include kubesec scoring in each sweep")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	scanners := []types.Scanner{
		kubescape.New(logger, kubescape.Options{}),
		gatekeeper.New(logger, gatekeeper.Options{}),
		harden.NewScanner(logger),
	}
	if serveWithKubesec {
		client, err := kubesec.NewClient(logger, cfg.KubesecEndpoint, kubesec.ClientOptions{})
		if err != nil {
			return err
		}
		scanners = append(scanners, kubesec.New(logger, client))
	}

	runner := fleet.NewRunner(logger, scanners, fleet.RunnerOptions{TargetFunc: targetFunc})
	server := exporter.NewServer(exporter.ServerConfig{
		Addr:        serveAddr,
		Interval:    serveInterval,
		ScanOptions: scanOptions(cfg),
	}, runner, cfg.Clusters, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.Start(ctx)
}
