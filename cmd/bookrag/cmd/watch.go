package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/output"
	"github.com/bulldra/bookrag/internal/service"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Index the library and reindex on file changes",
		Long: `Index every book, then keep running and reindex books as their
files change. Deleted files are removed from the index. Stops on
Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd)
		},
	}
}

func runWatch(ctx context.Context, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withService(ctx, func(ctx context.Context, cfg *config.Config, svc *service.Service) error {
		out := output.New(cmd.OutOrStdout())

		report, err := svc.IndexLibrary(ctx, false)
		if err != nil {
			return err
		}
		out.Successf("indexed %d book(s), watching %s", len(report.Indexed), cfg.Library.BooksDir)

		if err := svc.Watch(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		out.Status("", "stopping")
		return nil
	})
}
