package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bulldra/bookrag/configs"
	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default .bookrag.yaml",
		Long: `Create a .bookrag.yaml with defaults in the library directory so
settings can be edited in place. Existing files are kept unless
--force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	path := filepath.Join(libraryDir, ".bookrag.yaml")

	if _, err := os.Stat(path); err == nil {
		if !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		backup, err := config.BackupConfigFile(path)
		if err != nil {
			return err
		}
		if backup != "" {
			out.Statusf("💾", "backed up existing config to %s", backup)
		}
	}

	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return err
	}
	out.Successf("wrote %s", path)
	return nil
}
