package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/output"
	"github.com/bulldra/bookrag/internal/service"
)

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <book-id>...",
		Short: "Remove books from the index",
		Long: `Remove one or more books from every index artifact: vectors,
keyword index, chunk texts, and the catalog. The source files are
not touched.

Book IDs come from 'bookrag stats'.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), cmd, args)
		},
	}
	return cmd
}

func runRemove(ctx context.Context, cmd *cobra.Command, bookIDs []string) error {
	return withService(ctx, func(ctx context.Context, cfg *config.Config, svc *service.Service) error {
		out := output.New(cmd.OutOrStdout())

		var missing int
		for _, id := range bookIDs {
			if !svc.HasBook(id) {
				out.Warningf("book %q is not indexed", id)
				missing++
				continue
			}
			if err := svc.RemoveBook(ctx, id); err != nil {
				return err
			}
			out.Successf("removed %s", id)
		}
		if missing == len(bookIDs) {
			return fmt.Errorf("no matching books")
		}
		return nil
	})
}
