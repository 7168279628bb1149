package llm

import (
	"context"

	"docchat/internal/domain"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part is one piece of message content: text, or an image when Image is set.
type Part struct {
	Text  string
	Image *domain.Image
}

type Message struct {
	Role  string
	Parts []Part
}

// Text builds a single-part text message.
func Text(role, text string) Message {
	return Message{Role: role, Parts: []Part{{Text: text}}}
}

type Request struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Stream yields generated fragments in order. Recv returns io.EOF once the
// generation is complete. Close stops the generation; it may be called while
// another goroutine is blocked in Recv and makes that Recv return.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Client is a chat-completion backend.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) (Stream, error)
}
