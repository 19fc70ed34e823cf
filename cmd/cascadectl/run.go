package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine's canonical end-to-end scenarios",
	Long: `run drives every demonstration scenario (memoization, backdating,
stale-output pruning, fixpoint convergence) against its own in-memory
Database and reports pass/fail for each one.`,
	RunE: runScenarios,
}

func runScenarios(cmd *cobra.Command, args []string) error {
	opts, err := engineOptionsFromViper()
	if err != nil {
		return fmt.Errorf("cascadectl: invalid engine options: %w", err)
	}

	failures := 0
	for _, s := range scenarios {
		detail, err := s.run(opts)
		if err != nil {
			failures++
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %-34s %v\n", s.name, err)
			log.WithField("scenario", s.name).WithError(err).Error("scenario failed")
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "PASS %-34s %s\n", s.name, detail)
	}

	if failures > 0 {
		return fmt.Errorf("cascadectl: %d of %d scenario(s) failed", failures, len(scenarios))
	}
	return nil
}
