package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/search"
	"github.com/bulldra/bookrag/internal/service"
)

type searchOptions struct {
	limit   int
	books   []string
	format  string // "text", "json"
	refresh bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed library",
		Long: `Search the indexed library with hybrid retrieval.

Vector similarity and BM25 keyword scores are normalized and fused,
query variants are generated automatically, and results are re-ranked
for diversity.

Examples:
  bookrag search "依存性注入の方法"
  bookrag search "エラー処理" --book python-primer --limit 5
  bookrag search "比較" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringSliceVarP(&opts.books, "book", "b", nil, "Restrict to these book IDs (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "Bypass the result cache and re-search")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	return withService(ctx, func(ctx context.Context, cfg *config.Config, svc *service.Service) error {
		results, err := svc.Search(ctx, query, search.Options{
			BookIDs:      opts.books,
			TopK:         opts.limit,
			RefreshCache: opts.refresh,
		})
		if err != nil {
			return err
		}

		switch opts.format {
		case "json":
			return printJSON(cmd, results)
		case "text":
			printSearchResults(cmd, query, results)
			return nil
		default:
			return fmt.Errorf("unknown format %q (valid: text, json)", opts.format)
		}
	})
}

func printSearchResults(cmd *cobra.Command, query string, results []*search.SearchResult) {
	w := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintf(w, "No results for %q\n", query)
		return
	}

	fmt.Fprintf(w, "%d result(s) for %q\n\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s (%.3f)\n", i+1, r.BookTitle, r.Score())
		fmt.Fprintf(w, "   %s\n\n", snippet(r.Text, 160))
	}
}

// snippet truncates text to a rune budget for terminal display.
func snippet(text string, maxRunes int) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\n", " ")
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
