package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/output"
	"github.com/bulldra/bookrag/internal/service"
)

type indexOptions struct {
	force bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [file...]",
		Short: "Index books for search",
		Long: `Index book files into the search index.

Without arguments, discovers and indexes every book under the
library's books directory. With file arguments, indexes only those
files (replacing any previous index state for the same books).

Examples:
  bookrag index
  bookrag index --force
  bookrag index books/python-primer.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Discard all index state and rebuild from scratch")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, args []string, opts indexOptions) error {
	return withService(ctx, func(ctx context.Context, cfg *config.Config, svc *service.Service) error {
		out := output.New(cmd.OutOrStdout())

		var report *service.IndexReport
		var err error
		if len(args) > 0 {
			report, err = svc.IndexBatch(ctx, args)
		} else {
			report, err = svc.IndexLibrary(ctx, opts.force)
		}
		if err != nil {
			return err
		}

		out.Successf("Indexed %d book(s) in %s", len(report.Indexed), report.Duration.Round(time.Millisecond))
		for path, ferr := range report.Failed {
			out.Warningf("%s: %v", path, ferr)
		}
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d book(s) failed to index", len(report.Failed))
		}
		return nil
	})
}
