package main

import (
	"github.com/spf13/cobra"

	"github.com/deepak-muley/nkpsec/internal/scanners/gatekeeper"
	"github.com/deepak-muley/nkpsec/internal/types"
)

var violationKinds []string

func violationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "violations",
		Short: "Report Gatekeeper policy violations",
		Long: `Collect audit violations from Gatekeeper constraints.

Constraint kinds are discovered dynamically from the
constraints.gatekeeper.sh API group, so policies added after
installation are picked up without any nkpsec change. Enforcement
actions map to severities: deny is Critical, warn is Medium, dryrun is
Low.

Examples:
  # All violations on the default cluster
  nkpsec violations

  # Only K8sRequiredLabels violations, as JSON
  nkpsec violations --constraint-kind K8sRequiredLabels -o json

  # Fleet-wide deny violations, fail the pipeline when any exist
  nkpsec violations --all-clusters -s critical --fail-on critical`,
		RunE: runViolations,
	}
	cmd.Flags().StringSliceVar(&violationKinds, "constraint-kind", nil, "Restrict to these constraint kinds (repeatable)")
	return cmd
}

func runViolations(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	scanners := []types.Scanner{gatekeeper.New(logger, gatekeeper.Options{ConstraintKinds: violationKinds})}
	_, err = runScan(cmd.Context(), logger, scanners, "Policy Violation Report", "violation")
	return err
}
