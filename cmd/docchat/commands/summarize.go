package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSummarizeCmd creates the summarize command
func NewSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <file>",
		Short: "Summarize a document",
		Long: `Summarize a document.

Short documents are summarized in one model call. Long documents are
summarized section by section and the section summaries are then merged.
With summarizer.type "frequency" an extractive summary is produced
without any model call.

Examples:
  docchat summarize notes.txt
  docchat summarize --config docchat.yaml report.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: runSummarize,
	}
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a, err := newApp(cmd, cfg, nil, cfg.Summarizer.Type == "hierarchical")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.svc.Remove(ctx)

	if err := a.svc.LoadFile(ctx, args[0]); err != nil {
		return fmt.Errorf("loading document: %w", err)
	}
	summary, err := a.svc.Summarize(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return nil
}
