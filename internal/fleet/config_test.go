package fleet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nkpsec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
clusters:
  - name: mgmt
    displayName: Management Cluster (dm-nkp-mgmt-1)
    kubeconfig: /etc/nkp/mgmt.conf
    roles: [management]
  - name: workload1
    displayName: Workload Cluster 1
    kubeconfig: /etc/nkp/workload1.kubeconfig
defaultCluster: mgmt
severity: high
exportDir: /tmp/reports
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, cfg.Clusters, 2)
	assert.Equal(t, []string{"mgmt", "workload1"}, cfg.ClusterNames())
	assert.Equal(t, "high", cfg.Severity)
	assert.Equal(t, "/tmp/reports", cfg.ExportDir)
	// Defaults fill in what the file omits.
	assert.Equal(t, DefaultKubesecEndpoint, cfg.KubesecEndpoint)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	// Run from an empty dir with no home config.
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Clusters)
	assert.Equal(t, DefaultSeverity, cfg.Severity)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name: "missing kubeconfig",
			content: `
clusters:
  - name: mgmt
`,
			errMsg: "kubeconfig is required",
		},
		{
			name: "duplicate names",
			content: `
clusters:
  - name: mgmt
    kubeconfig: /a.conf
  - name: mgmt
    kubeconfig: /b.conf
`,
			errMsg: "duplicate cluster name",
		},
		{
			name: "unknown default cluster",
			content: `
clusters:
  - name: mgmt
    kubeconfig: /a.conf
defaultCluster: workload9
`,
			errMsg: "defaultCluster",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfigCluster(t *testing.T) {
	cfg := &Config{
		Clusters: []ClusterConfig{
			{Name: "mgmt", Kubeconfig: "/a.conf", Roles: []string{"management"}},
			{Name: "workload1", Kubeconfig: "/b.conf"},
		},
		DefaultCluster: "mgmt",
	}

	c, err := cfg.Cluster("")
	require.NoError(t, err)
	assert.Equal(t, "mgmt", c.Name)

	c, err = cfg.Cluster("workload1")
	require.NoError(t, err)
	assert.Equal(t, "workload1", c.Name)

	_, err = cfg.Cluster("workload9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown cluster")
}

func TestConfigCluster_SingleClusterImplicitDefault(t *testing.T) {
	cfg := &Config{
		Clusters: []ClusterConfig{{Name: "mgmt", Kubeconfig: "/a.conf"}},
	}

	c, err := cfg.Cluster("")
	require.NoError(t, err)
	assert.Equal(t, "mgmt", c.Name)
}

func TestManagementCluster(t *testing.T) {
	cfg := &Config{
		Clusters: []ClusterConfig{
			{Name: "workload1", Kubeconfig: "/b.conf"},
			{Name: "mgmt", Kubeconfig: "/a.conf", Roles: []string{"Management"}},
		},
	}

	c, err := cfg.ManagementCluster()
	require.NoError(t, err)
	// Role matching is case-insensitive.
	assert.Equal(t, "mgmt", c.Name)
}
