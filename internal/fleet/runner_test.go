package fleet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deepak-muley/nkpsec/internal/types"
)

// stubScanner returns canned findings or an error.
type stubScanner struct {
	name     string
	findings []types.Finding
	err      error
}

func (s *stubScanner) Name() string { return s.name }

func (s *stubScanner) Scan(_ context.Context, target types.Target, _ types.ScanOptions) ([]types.Finding, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]types.Finding, len(s.findings))
	copy(out, s.findings)
	for i := range out {
		out[i].Cluster = target.Cluster
	}
	return out, nil
}

func stubTargetFunc(cluster ClusterConfig) (types.Target, error) {
	if cluster.Name == "broken" {
		return types.Target{}, errors.New("kubeconfig not found")
	}
	return types.Target{Cluster: cluster.Name, DisplayName: cluster.DisplayName}, nil
}

func TestRunnerRun_AggregatesAcrossClusters(t *testing.T) {
	scanner := &stubScanner{
		name:     "stub",
		findings: []types.Finding{{ID: "CVE-2024-0001", Severity: types.SeverityCritical}},
	}
	runner := NewRunner(zaptest.NewLogger(t), []types.Scanner{scanner}, RunnerOptions{
		TargetFunc: stubTargetFunc,
	})

	clusters := []ClusterConfig{
		{Name: "mgmt", Kubeconfig: "/a.conf"},
		{Name: "workload1", Kubeconfig: "/b.conf"},
	}
	results := runner.Run(context.Background(), clusters, types.ScanOptions{})

	require.Len(t, results, 2)
	// Results keep input order.
	assert.Equal(t, "mgmt", results[0].Cluster.Name)
	assert.Equal(t, "workload1", results[1].Cluster.Name)

	for _, r := range results {
		require.NoError(t, r.Err)
		require.Len(t, r.Findings, 1)
		assert.Equal(t, r.Cluster.Name, r.Findings[0].Cluster)
	}
}

func TestRunnerRun_UnreachableClusterDoesNotFailFleet(t *testing.T) {
	scanner := &stubScanner{
		name:     "stub",
		findings: []types.Finding{{ID: "CVE-2024-0001"}},
	}
	runner := NewRunner(zaptest.NewLogger(t), []types.Scanner{scanner}, RunnerOptions{
		TargetFunc: stubTargetFunc,
	})

	clusters := []ClusterConfig{
		{Name: "broken", Kubeconfig: "/missing.conf"},
		{Name: "mgmt", Kubeconfig: "/a.conf"},
	}
	results := runner.Run(context.Background(), clusters, types.ScanOptions{})

	require.Len(t, results, 2)
	require.Error(t, results[0].Err)
	assert.Empty(t, results[0].Findings)

	require.NoError(t, results[1].Err)
	assert.Len(t, results[1].Findings, 1)
}

func TestRunnerRun_ScannerErrorDegradesToEmpty(t *testing.T) {
	good := &stubScanner{
		name:     "good",
		findings: []types.Finding{{ID: "CVE-2024-0002"}},
	}
	bad := &stubScanner{name: "bad", err: errors.New("crd not installed")}
	runner := NewRunner(zaptest.NewLogger(t), []types.Scanner{good, bad}, RunnerOptions{
		TargetFunc: stubTargetFunc,
	})

	results := runner.Run(context.Background(), []ClusterConfig{{Name: "mgmt", Kubeconfig: "/a.conf"}}, types.ScanOptions{})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	// The good scanner's findings survive the bad scanner's failure.
	require.Len(t, results[0].Findings, 1)
	assert.Equal(t, "CVE-2024-0002", results[0].Findings[0].ID)
}
