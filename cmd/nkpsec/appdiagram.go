package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deepak-muley/nkpsec/internal/diagram"
)

var diagramOutputFile string

func appdiagramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appdiagram",
		Short: "Render the ClusterApp dependency block diagram",
		Long: `Render Kommander ClusterApp dependencies as a block diagram.

Dependencies come from the apps.kommander.d2iq.io/dependencies
annotation on each ClusterApp, resolved against installed app names
with their version suffix stripped. The command targets the cluster
tagged with the management role in the fleet config.

Examples:
  # Print the diagram
  nkpsec appdiagram

  # Write it for the docs tree
  nkpsec appdiagram --output-file docs/internal/CLUSTERAPP-BLOCK-DIAGRAM.md`,
		RunE: runAppdiagram,
	}
	cmd.Flags().StringVar(&diagramOutputFile, "output-file", "", "Write the diagram to this file instead of stdout")
	return cmd
}

func runAppdiagram(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cluster, err := cfg.ManagementCluster()
	if err != nil {
		return err
	}
	if clusterName != "" {
		if cluster, err = cfg.Cluster(clusterName); err != nil {
			return err
		}
	}

	target, err := targetFunc(cluster)
	if err != nil {
		return err
	}
	graph, err := diagram.Fetch(cmd.Context(), logger, target)
	if err != nil {
		return err
	}

	if diagramOutputFile != "" {
		if err := diagram.WriteMarkdown(diagramOutputFile, graph); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Block diagram saved to: %s\n", diagramOutputFile)
		return nil
	}
	fmt.Print(diagram.Render(graph))
	return nil
}
