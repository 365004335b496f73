package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bulldra/bookrag/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment for problems",
		Long: `Run environment checks: books directory, cache directory
permissions, free disk space, and embedding provider availability.

Exits non-zero when a required check fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runDoctor(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	results := preflight.New(cfg).RunAll(cmd.Context())
	if jsonOutput {
		if err := printJSON(cmd, results); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, r := range results {
			fmt.Fprintf(w, "[%s] %-12s %s\n", r.Status, r.Name, r.Message)
		}
	}

	if preflight.HasCriticalFailures(results) {
		return fmt.Errorf("environment check failed")
	}
	return nil
}
