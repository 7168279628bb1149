package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var searchLimit int

// NewSearchCmd creates the search command
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <file> <query>",
		Short: "Search a document",
		Long: `Search a document by semantic similarity without calling the language model.

Results are ranked by cosine similarity, most similar first.

Examples:
  docchat search paper.pdf "evaluation method"
  docchat search --limit 10 notes.txt "deadlines"`,
		Args: cobra.MinimumNArgs(2),
		RunE: runSearch,
	}
	cmd.Flags().IntVar(&searchLimit, "limit", 5, "Maximum results to return")
	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := validatePositiveInt(searchLimit, "limit"); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a, err := newApp(cmd, cfg, nil, false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.svc.Remove(ctx)

	if err := a.svc.LoadFile(ctx, args[0]); err != nil {
		return fmt.Errorf("loading document: %w", err)
	}
	query := strings.Join(args[1:], " ")
	results, err := a.svc.Search(ctx, query, searchLimit)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	a.log.Debug().Str("query", query).Int("results", len(results)).Msg("search finished")
	if len(results) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No passages found for query: %s\n", query)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SCORE\tCHUNK\tPAGE\tPREVIEW\n")
	fmt.Fprintf(w, "-----\t-----\t----\t-------\n")
	for _, r := range results {
		page := "-"
		if r.Chunk.Page > 0 {
			page = fmt.Sprint(r.Chunk.Page)
		}
		fmt.Fprintf(w, "%.3f\t%d\t%s\t%s\n", r.Score, r.Chunk.Seq, page, truncate(oneLine(r.Chunk.Text), 60))
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "\nFound %d result(s)\n", len(results))
	return nil
}
