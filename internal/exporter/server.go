package exporter

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/deepak-muley/nkpsec/internal/fleet"
	"github.com/deepak-muley/nkpsec/internal/types"
)

const (
	defaultAddr     = ":9402"
	defaultInterval = 15 * time.Minute
)

// ServerConfig holds the exporter server configuration.
type ServerConfig struct {
	// Addr is the address to listen on (e.g. ":9402").
	Addr string

	// Interval is how often the fleet is rescanned.
	Interval time.Duration

	// ScanOptions is applied to every sweep.
	ScanOptions types.ScanOptions
}

// Server periodically scans the fleet and serves metrics.
type Server struct {
	config   ServerConfig
	runner   *fleet.Runner
	clusters []fleet.ClusterConfig
	logger   *zap.Logger
	ready    atomic.Bool
	server   *http.Server
}

// NewServer creates an exporter server scanning the given clusters.
func NewServer(config ServerConfig, runner *fleet.Runner, clusters []fleet.ClusterConfig, logger *zap.Logger) *Server {
	if config.Addr == "" {
		config.Addr = defaultAddr
	}
	if config.Interval <= 0 {
		config.Interval = defaultInterval
	}
	return &Server{
		config:   config,
		runner:   runner,
		clusters: clusters,
		logger:   logger.Named("exporter"),
	}
}

// Start runs the sweep loop and HTTP server, blocking until the context
// is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting metrics server", zap.String("addr", s.config.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	go s.sweepLoop(ctx)

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down metrics server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// sweepLoop scans immediately, then on every interval tick.
func (s *Server) sweepLoop(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Server) sweep(ctx context.Context) {
	start := time.Now()
	results := s.runner.Run(ctx, s.clusters, s.config.ScanOptions)
	if ctx.Err() != nil {
		return
	}
	publishResults(results)
	lastSweepTimestamp.Set(float64(time.Now().Unix()))
	s.ready.Store(true)

	s.logger.Info("Fleet sweep complete",
		zap.Int("clusters", len(s.clusters)),
		zap.Duration("duration", time.Since(start)),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "waiting for first fleet sweep", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}
