package main

import (
	"github.com/spf13/cobra"

	"github.com/deepak-muley/nkpsec/internal/fleet"
)

func clustersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "List fleet clusters and their reachability",
		Long: `List the configured fleet clusters.

Each cluster is probed for its apiserver version, so the output doubles
as a fleet connectivity check.

Examples:
  nkpsec clusters
  nkpsec clusters -o json`,
		RunE: runClusters,
	}
	return cmd
}

func runClusters(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result := ClustersResult{}
	for _, cluster := range cfg.Clusters {
		info := ClusterInfo{
			Name:        cluster.Name,
			DisplayName: cluster.DisplayName,
			Roles:       cluster.Roles,
		}

		target, err := targetFunc(cluster)
		if err == nil {
			var version string
			if version, err = fleet.Probe(target); err == nil {
				info.Version = version
				info.Status = "Ready"
			}
		}
		if err != nil {
			info.Status = "Unreachable"
		}
		result.Clusters = append(result.Clusters, info)
	}

	if outputFmt == "report" {
		outputFmt = "table"
	}
	return outputResult(result, outputFmt)
}
