package fleet

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Default config values.
const (
	DefaultSeverity        = "all"
	DefaultKubesecEndpoint = "https://v2.kubesec.io/scan"
	DefaultExportDir       = "."
)

// ClusterConfig describes one cluster in the fleet.
type ClusterConfig struct {
	// Name is the short fleet name ("mgmt", "workload1").
	Name string `json:"name" mapstructure:"name"`

	// DisplayName is the human-readable description used in report headers,
	// e.g. "Management Cluster (dm-nkp-mgmt-1)".
	DisplayName string `json:"displayName" mapstructure:"displayName"`

	// Kubeconfig is the path to the kubeconfig file for this cluster.
	Kubeconfig string `json:"kubeconfig" mapstructure:"kubeconfig"`

	// Context overrides the current-context in the kubeconfig.
	Context string `json:"context,omitempty" mapstructure:"context"`

	// Roles tags the cluster ("management", "workload"). The appdiagram
	// command targets the first cluster with the management role.
	Roles []string `json:"roles,omitempty" mapstructure:"roles"`
}

// HasRole reports whether the cluster carries the given role tag.
func (c ClusterConfig) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Config is the fleet configuration loaded from file, environment, and flags.
type Config struct {
	// Clusters is the fleet inventory.
	Clusters []ClusterConfig `json:"clusters" mapstructure:"clusters"`

	// DefaultCluster is used when --cluster is not given.
	DefaultCluster string `json:"defaultCluster" mapstructure:"defaultCluster"`

	// Severity is the default severity filter.
	Severity string `json:"severity" mapstructure:"severity"`

	// ExportDir is where markdown reports and hardened manifests are written.
	ExportDir string `json:"exportDir" mapstructure:"exportDir"`

	// KubesecEndpoint is the kubesec scan API URL.
	KubesecEndpoint string `json:"kubesecEndpoint" mapstructure:"kubesecEndpoint"`

	// StoreDSN is the optional Postgres DSN for scan history.
	StoreDSN string `json:"storeDSN" mapstructure:"storeDSN"`
}

// Load reads the fleet config. When path is empty the default locations are
// searched: ./.nkpsec.yaml, then $HOME/.nkpsec.yaml. Environment variables
// with the NKPSEC_ prefix override file values (NKPSEC_STORE_DSN, ...).
// A missing config file is not an error: commands can run against a single
// kubeconfig via --kubeconfig without any fleet config.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("severity", DefaultSeverity)
	v.SetDefault("exportDir", DefaultExportDir)
	v.SetDefault("kubesecEndpoint", DefaultKubesecEndpoint)

	v.SetEnvPrefix("NKPSEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(".nkpsec")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("failed to read fleet config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse fleet config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	seen := make(map[string]struct{}, len(c.Clusters))
	for i, cluster := range c.Clusters {
		if cluster.Name == "" {
			return fmt.Errorf("cluster %d: name is required", i)
		}
		if _, dup := seen[cluster.Name]; dup {
			return fmt.Errorf("duplicate cluster name %q", cluster.Name)
		}
		seen[cluster.Name] = struct{}{}
		if cluster.Kubeconfig == "" {
			return fmt.Errorf("cluster %q: kubeconfig is required", cluster.Name)
		}
	}
	if c.DefaultCluster != "" {
		if _, ok := seen[c.DefaultCluster]; !ok {
			return fmt.Errorf("defaultCluster %q is not in the cluster list", c.DefaultCluster)
		}
	}
	return nil
}

// Cluster returns the named cluster config. An empty name resolves to the
// default cluster, or the only configured cluster when exactly one exists.
func (c *Config) Cluster(name string) (ClusterConfig, error) {
	if name == "" {
		name = c.DefaultCluster
	}
	if name == "" && len(c.Clusters) == 1 {
		return c.Clusters[0], nil
	}
	if name == "" {
		return ClusterConfig{}, fmt.Errorf("no cluster selected: pass --cluster or set defaultCluster (configured: %s)", strings.Join(c.ClusterNames(), ", "))
	}
	for _, cluster := range c.Clusters {
		if cluster.Name == name {
			return cluster, nil
		}
	}
	return ClusterConfig{}, fmt.Errorf("unknown cluster %q (configured: %s)", name, strings.Join(c.ClusterNames(), ", "))
}

// ManagementCluster returns the first cluster tagged with the management role,
// falling back to the default cluster.
func (c *Config) ManagementCluster() (ClusterConfig, error) {
	for _, cluster := range c.Clusters {
		if cluster.HasRole("management") {
			return cluster, nil
		}
	}
	return c.Cluster("")
}

// ClusterNames returns the configured cluster names in order.
func (c *Config) ClusterNames() []string {
	names := make([]string, 0, len(c.Clusters))
	for _, cluster := range c.Clusters {
		names = append(names, cluster.Name)
	}
	return names
}
