package exporter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deepak-muley/nkpsec/internal/fleet"
	"github.com/deepak-muley/nkpsec/internal/types"
)

type stubScanner struct {
	findings []types.Finding
}

func (s *stubScanner) Name() string { return "stub" }

func (s *stubScanner) Scan(_ context.Context, target types.Target, _ types.ScanOptions) ([]types.Finding, error) {
	out := make([]types.Finding, len(s.findings))
	copy(out, s.findings)
	for i := range out {
		out[i].Cluster = target.Cluster
	}
	return out, nil
}

func stubTargetFunc(c fleet.ClusterConfig) (types.Target, error) {
	return types.Target{Cluster: c.Name}, nil
}

func TestPublishResults(t *testing.T) {
	findingsGauge.Reset()

	publishResults([]fleet.ClusterResult{
		{
			Cluster: fleet.ClusterConfig{Name: "mgmt"},
			Findings: []types.Finding{
				{Kind: types.FindingKindCVE, Severity: types.SeverityCritical},
				{Kind: types.FindingKindCVE, Severity: types.SeverityCritical},
				{Kind: types.FindingKindViolation, Severity: types.SeverityMedium},
			},
			Duration: 2 * time.Second,
		},
		{
			Cluster: fleet.ClusterConfig{Name: "workload-1"},
			Err:     errors.New("unreachable"),
		},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(findingsGauge.WithLabelValues("mgmt", "CVE", "Critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(findingsGauge.WithLabelValues("mgmt", "Violation", "Medium")))
}

func TestPublishResults_ResetsResolvedFindings(t *testing.T) {
	findingsGauge.Reset()

	cluster := fleet.ClusterConfig{Name: "mgmt"}
	publishResults([]fleet.ClusterResult{{
		Cluster:  cluster,
		Findings: []types.Finding{{Kind: types.FindingKindCVE, Severity: types.SeverityHigh}},
	}})
	require.Equal(t, 1.0, testutil.ToFloat64(findingsGauge.WithLabelValues("mgmt", "CVE", "High")))

	publishResults([]fleet.ClusterResult{{Cluster: cluster}})
	assert.Equal(t, 0.0, testutil.ToFloat64(findingsGauge.WithLabelValues("mgmt", "CVE", "High")))
}

func TestSweep_MarksReady(t *testing.T) {
	findingsGauge.Reset()

	runner := fleet.NewRunner(zaptest.NewLogger(t),
		[]types.Scanner{&stubScanner{findings: []types.Finding{
			{Kind: types.FindingKindCVE, Severity: types.SeverityCritical},
		}}},
		fleet.RunnerOptions{TargetFunc: stubTargetFunc},
	)
	clusters := []fleet.ClusterConfig{{Name: "mgmt", Kubeconfig: "unused"}}

	s := NewServer(ServerConfig{}, runner, clusters, zaptest.NewLogger(t))
	require.False(t, s.ready.Load())

	s.sweep(context.Background())
	assert.True(t, s.ready.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(findingsGauge.WithLabelValues("mgmt", "CVE", "Critical")))
}

func TestHandleReady(t *testing.T) {
	s := NewServer(ServerConfig{}, nil, nil, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.ready.Store(true)
	rec = httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(ServerConfig{}, nil, nil, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewServer_Defaults(t *testing.T) {
	s := NewServer(ServerConfig{}, nil, nil, zaptest.NewLogger(t))
	assert.Equal(t, defaultAddr, s.config.Addr)
	assert.Equal(t, defaultInterval, s.config.Interval)
}
