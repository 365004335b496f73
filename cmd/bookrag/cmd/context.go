package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/search"
	"github.com/bulldra/bookrag/internal/service"
)

type contextOptions struct {
	books     []string
	maxLength int
}

func newContextCmd() *cobra.Command {
	var opts contextOptions

	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Build LLM-ready context for a query",
		Long: `Search the library and assemble the results into a compressed,
relevance-labeled context block suitable for pasting into an LLM
prompt. Long chunks are reduced to their key sentences and results
are grouped per book under a character budget.

Examples:
  bookrag context "オブジェクト指向の設計原則"
  bookrag context "SQL の結合" --max-length 4000 --book sql-handbook`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContext(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.books, "book", "b", nil, "Restrict to these book IDs (repeatable)")
	cmd.Flags().IntVar(&opts.maxLength, "max-length", 0, "Character budget for the context (default from config)")

	return cmd
}

func runContext(ctx context.Context, cmd *cobra.Command, query string, opts contextOptions) error {
	mutate := func(cfg *config.Config) {
		if opts.maxLength > 0 {
			cfg.Search.MaxContextLength = opts.maxLength
		}
	}
	return withServiceConfig(ctx, mutate, func(ctx context.Context, cfg *config.Config, svc *service.Service) error {
		text, err := svc.BuildContext(ctx, query, search.Options{BookIDs: opts.books})
		if err != nil {
			return err
		}
		if text == "" {
			return fmt.Errorf("no relevant content found for %q", query)
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	})
}
