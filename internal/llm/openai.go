package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"docchat/internal/domain"
)

// OpenAIConfig configures an OpenAI-compatible chat backend.
type OpenAIConfig struct {
	BaseURL   string
	APIKeyEnv string
	APIKey    string
	Timeout   time.Duration
}

// OpenAI adapts go-openai chat completions to Client.
type OpenAI struct {
	client *goopenai.Client
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	oc := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	// Zero timeout leaves streams bounded only by their context.
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAI{client: goopenai.NewClientWithConfig(oc)}, nil
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, toChatRequest(req))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) Stream(ctx context.Context, req Request) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	cr := toChatRequest(req)
	cr.Stream = true
	s, err := o.client.CreateChatCompletionStream(ctx, cr)
	if err != nil {
		cancel()
		return nil, err
	}
	return &openAIStream{stream: s, cancel: cancel}, nil
}

type openAIStream struct {
	stream *goopenai.ChatCompletionStream
	cancel context.CancelFunc
}

// Recv skips deltas without content.
func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if text := resp.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}
}

func (s *openAIStream) Close() error {
	s.cancel()
	s.stream.Close()
	return nil
}

func toChatRequest(req Request) goopenai.ChatCompletionRequest {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, toChatMessage(m))
	}
	return goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

// toChatMessage uses plain content for text-only messages and multi-part
// content once an image is present.
func toChatMessage(m Message) goopenai.ChatCompletionMessage {
	hasImage := false
	for _, p := range m.Parts {
		if p.Image != nil {
			hasImage = true
			break
		}
	}
	if !hasImage {
		var text string
		for i, p := range m.Parts {
			if i > 0 {
				text += "\n\n"
			}
			text += p.Text
		}
		return goopenai.ChatCompletionMessage{Role: m.Role, Content: text}
	}
	parts := make([]goopenai.ChatMessagePart, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Image != nil {
			parts = append(parts, goopenai.ChatMessagePart{
				Type:     goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{URL: DataURI(p.Image)},
			})
			continue
		}
		parts = append(parts, goopenai.ChatMessagePart{Type: goopenai.ChatMessagePartTypeText, Text: p.Text})
	}
	return goopenai.ChatCompletionMessage{Role: m.Role, MultiContent: parts}
}

// DataURI encodes an image as a base64 data URI.
func DataURI(img *domain.Image) string {
	return "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
