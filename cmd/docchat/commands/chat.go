package commands

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docchat/internal/tui"
)

// NewChatCmd creates the interactive chat command
func NewChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <file>",
		Short: "Chat with a document in the terminal",
		Long: `Open an interactive chat over a document.

The document summary is shown on top and answers stream in as they are
generated. Logs are written to docchat.log in the temp directory.

Commands inside the chat:
  /load <path>   replace the document
  /summary       summarize again
  /sources       toggle the passages behind the last answer
  /clear         forget the conversation
  Esc            stop the current answer`,
		Args: cobra.ExactArgs(1),
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	logPath := filepath.Join(os.TempDir(), "docchat.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a, err := newApp(cmd, cfg, logFile, true)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.svc.Remove(ctx)

	if err := a.svc.LoadFile(ctx, args[0]); err != nil {
		return fmt.Errorf("loading document: %w", err)
	}
	a.log.Info().Str("document", a.svc.DocumentName()).Int("chunks", len(a.svc.Chunks())).Msg("chat started")
	m := tui.New(ctx, a.svc)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
