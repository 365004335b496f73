package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/output"
	"github.com/bulldra/bookrag/internal/service"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the search result cache",
	}

	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCacheStatsCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop all cached search results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, cfg *config.Config, svc *service.Service) error {
				n := svc.CacheLen()
				if err := svc.ClearCache(); err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Successf("cleared %d cached search(es)", n)
				return nil
			})
		},
	}
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show result cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, cfg *config.Config, svc *service.Service) error {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Enabled:     %t\n", cfg.Cache.Enabled)
				fmt.Fprintf(w, "Entries:     %d\n", svc.CacheLen())
				fmt.Fprintf(w, "Max entries: %d\n", cfg.Cache.MaxEntries)
				return nil
			})
		},
	}
}
