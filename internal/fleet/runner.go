package fleet

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deepak-muley/nkpsec/internal/types"
)

const defaultParallelism = 4

// ClusterResult is the outcome of running the scanners against one cluster.
type ClusterResult struct {
	Cluster  ClusterConfig
	Findings []types.Finding
	Duration time.Duration

	// Err is set when the cluster could not be scanned at all (unreachable,
	// bad kubeconfig). Individual scanner degradations are logged warnings.
	Err error
}

// RunnerOptions configures the fleet runner.
type RunnerOptions struct {
	// Parallelism bounds how many clusters are scanned concurrently.
	Parallelism int

	// TargetFunc builds the client bundle for a cluster. Overridable in tests;
	// defaults to NewTarget.
	TargetFunc func(ClusterConfig) (types.Target, error)
}

// Runner fans scanners out across fleet clusters.
type Runner struct {
	logger   *zap.Logger
	scanners []types.Scanner
	opts     RunnerOptions
}

// NewRunner creates a fleet runner for the given scanners.
func NewRunner(logger *zap.Logger, scanners []types.Scanner, opts RunnerOptions) *Runner {
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.TargetFunc == nil {
		opts.TargetFunc = NewTarget
	}
	return &Runner{
		logger:   logger.Named("fleet"),
		scanners: scanners,
		opts:     opts,
	}
}

// Run scans the given clusters concurrently and returns one result per
// cluster, in input order. A cluster failure is recorded in its result rather
// than aborting the fleet scan; only context cancellation stops the run early.
func (r *Runner) Run(ctx context.Context, clusters []ClusterConfig, opts types.ScanOptions) []ClusterResult {
	results := make([]ClusterResult, len(clusters))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)

	for i, cluster := range clusters {
		g.Go(func() error {
			results[i] = r.scanCluster(ctx, cluster, opts)
			return nil
		})
	}

	// Workers only return nil; Wait is for completion, not error collection.
	_ = g.Wait()
	return results
}

func (r *Runner) scanCluster(ctx context.Context, cluster ClusterConfig, opts types.ScanOptions) ClusterResult {
	start := time.Now()
	result := ClusterResult{Cluster: cluster}

	target, err := r.opts.TargetFunc(cluster)
	if err != nil {
		r.logger.Warn("Skipping unreachable cluster",
			zap.String("cluster", cluster.Name),
			zap.Error(err),
		)
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	var mu sync.Mutex
	sg, sctx := errgroup.WithContext(ctx)
	for _, scanner := range r.scanners {
		sg.Go(func() error {
			findings, err := scanner.Scan(sctx, target, opts)
			if err != nil {
				// One degraded scanner must not discard the others' findings.
				r.logger.Warn("Scanner failed",
					zap.String("cluster", cluster.Name),
					zap.String("scanner", scanner.Name()),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			result.Findings = append(result.Findings, findings...)
			mu.Unlock()
			return nil
		})
	}
	_ = sg.Wait()

	result.Duration = time.Since(start)
	r.logger.Info("Cluster scan complete",
		zap.String("cluster", cluster.Name),
		zap.Int("findings", len(result.Findings)),
		zap.Duration("duration", result.Duration),
	)
	return result
}
