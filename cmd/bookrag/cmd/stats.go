package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/service"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long: `Display the indexed library: book count, chunk counts per book,
embedding model and dimensions, keyword backend, and cache size.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	return withService(ctx, func(ctx context.Context, cfg *config.Config, svc *service.Service) error {
		stats := svc.Stats()
		if jsonOutput {
			return printJSON(cmd, stats)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Books:           %d\n", stats.TotalBooks)
		fmt.Fprintf(w, "Chunks:          %d\n", stats.TotalChunks)
		fmt.Fprintf(w, "Embedding model: %s (%d dimensions)\n", stats.EmbeddingModel, stats.Dimensions)
		fmt.Fprintf(w, "Keyword backend: %s\n", stats.KeywordBackend)
		fmt.Fprintf(w, "Cached searches: %d\n", stats.CacheEntries)

		if len(stats.Books) > 0 {
			fmt.Fprintln(w)
			for _, b := range stats.Books {
				fmt.Fprintf(w, "  %-24s %-30s %5d chunks\n", b.ID, b.Title, b.ChunkCount)
			}
		}
		return nil
	})
}
