package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askShowSources bool

// NewAskCmd creates the ask command
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <file> <question>",
		Short: "Ask one question about a document",
		Long: `Ask one question about a document and stream the answer to stdout.

The most relevant passages are retrieved from the document and sent to
the language model together with the question. Images in the document
are always attached and routed to the vision model.

Examples:
  docchat ask manual.docx "How do I reset the device?"
  docchat ask --sources paper.pdf "What dataset was used?"`,
		Args: cobra.MinimumNArgs(2),
		RunE: runAsk,
	}
	cmd.Flags().BoolVar(&askShowSources, "sources", false, "Print the retrieved passages after the answer")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a, err := newApp(cmd, cfg, nil, true)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.svc.Remove(ctx)

	if err := a.svc.LoadFile(ctx, args[0]); err != nil {
		return fmt.Errorf("loading document: %w", err)
	}
	reply, err := a.svc.Ask(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	_, err = reply.Collect(func(frag string) { fmt.Fprint(out, frag) })
	fmt.Fprintln(out)
	if err != nil {
		return err
	}
	if askShowSources {
		fmt.Fprintln(out, "\nSources:")
		for i, r := range reply.Sources() {
			fmt.Fprintf(out, "  [%d] %.3f %s\n", i+1, r.Score, truncate(oneLine(r.Chunk.Text), 80))
		}
	}
	return nil
}
