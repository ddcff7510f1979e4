package exporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/deepak-muley/nkpsec/internal/fleet"
	"github.com/deepak-muley/nkpsec/internal/types"
)

var (
	findingsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nkpsec_findings",
			Help: "Current findings by cluster, finding kind and severity.",
		},
		[]string{"cluster", "kind", "severity"},
	)
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nkpsec_cluster_scans_total",
			Help: "Total cluster scan attempts by status.",
		},
		[]string{"cluster", "status"},
	)
	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nkpsec_cluster_scan_duration_seconds",
			Help:    "Duration of full cluster scans.",
			Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"cluster"},
	)
	lastSweepTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nkpsec_last_sweep_timestamp_seconds",
			Help: "Unix time of the last completed fleet sweep.",
		},
	)
)

// publishResults replaces the findings gauge with the sweep's counts.
// The gauge is reset first so findings resolved since the previous
// sweep drop back to zero instead of lingering at their old value.
func publishResults(results []fleet.ClusterResult) {
	findingsGauge.Reset()
	for _, res := range results {
		if res.Err != nil {
			scansTotal.WithLabelValues(res.Cluster.Name, "error").Inc()
			continue
		}
		scansTotal.WithLabelValues(res.Cluster.Name, "success").Inc()
		scanDuration.WithLabelValues(res.Cluster.Name).Observe(res.Duration.Seconds())

		type key struct {
			kind     types.FindingKind
			severity types.Severity
		}
		counts := make(map[key]int)
		for _, f := range res.Findings {
			counts[key{f.Kind, f.Severity}]++
		}
		for k, n := range counts {
			findingsGauge.WithLabelValues(res.Cluster.Name, string(k.kind), string(k.severity)).Set(float64(n))
		}
	}
}
