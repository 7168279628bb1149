package commands

import (
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	verbose bool
)

// NewRootCmd creates the docchat root command with all subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docchat",
		Short: "Chat with a document",
		Long: `docchat loads a document (text, PDF, Word or image), indexes it for
semantic search and answers questions about it with a language model.

Configuration is read from --config, ./docchat.yaml or
~/.config/docchat/config.yaml. API keys come from the environment
variables named in the config; a .env file is loaded when present.

Examples:
  docchat chat report.pdf
  docchat summarize notes.txt
  docchat ask manual.docx "How do I reset the device?"
  docchat search --limit 3 paper.pdf "evaluation method"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		NewChatCmd(),
		NewSummarizeCmd(),
		NewAskCmd(),
		NewSearchCmd(),
		NewVersionCmd(),
	)
	return cmd
}
