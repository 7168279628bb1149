package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"docchat/internal/domain"
	"docchat/internal/llm"
)

const (
	questionPrompt = "Based on the following context, please answer the question.\n\nContext:\n%s\n\nQuestion: %s\n\nAnswer:"
	visionPrompt   = "Answer the question using the attached images and any supplementary context.\n\nQuestion: %s"
	contextPart    = "Supplementary context:\n%s"
	systemPrompt   = "You are a helpful assistant. Use this context to answer questions: %s"

	DefaultTemperature = 0.6
	DefaultMaxTokens   = 2048
)

type Config struct {
	Model       string
	VisionModel string
	Temperature float32
	MaxTokens   int
	Logger      *zerolog.Logger
}

// Answerer streams answers grounded on retrieved chunks.
type Answerer struct {
	client llm.Client
	cfg    Config
	log    zerolog.Logger
}

func New(client llm.Client, cfg Config) *Answerer {
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Answerer{client: client, cfg: cfg, log: log}
}

// Answer streams an answer to question. With any image chunk present the
// request goes to the vision model carrying every image.
func (a *Answerer) Answer(ctx context.Context, question string, chunks []domain.Chunk) (*Stream, error) {
	texts, images := split(chunks)
	req := llm.Request{Temperature: a.cfg.Temperature, MaxTokens: a.cfg.MaxTokens}
	if len(images) > 0 {
		parts := []llm.Part{{Text: fmt.Sprintf(visionPrompt, question)}}
		for _, img := range images {
			parts = append(parts, llm.Part{Image: img})
		}
		if len(texts) > 0 {
			parts = append(parts, llm.Part{Text: fmt.Sprintf(contextPart, strings.Join(texts, "\n"))})
		}
		req.Model = a.cfg.VisionModel
		req.Messages = []llm.Message{{Role: llm.RoleUser, Parts: parts}}
	} else {
		req.Model = a.cfg.Model
		req.Messages = []llm.Message{llm.Text(llm.RoleUser, fmt.Sprintf(questionPrompt, strings.Join(texts, "\n"), question))}
	}
	a.log.Debug().Str("model", req.Model).Int("texts", len(texts)).Int("images", len(images)).Msg("answering")
	return a.open(ctx, req)
}

// Converse answers the last user turn with the whole conversation as history
// and the chunks as system context. Images are attached to the final turn.
func (a *Answerer) Converse(ctx context.Context, turns []domain.Turn, chunks []domain.Chunk) (*Stream, error) {
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: empty conversation", domain.ErrAnswer)
	}
	texts, images := split(chunks)
	req := llm.Request{Model: a.cfg.Model, Temperature: a.cfg.Temperature, MaxTokens: a.cfg.MaxTokens}
	if len(texts) > 0 {
		req.Messages = append(req.Messages, llm.Text(llm.RoleSystem, fmt.Sprintf(systemPrompt, strings.Join(texts, "\n"))))
	}
	for _, t := range turns {
		req.Messages = append(req.Messages, llm.Text(string(t.Role), t.Content))
	}
	if len(images) > 0 {
		last := &req.Messages[len(req.Messages)-1]
		for _, img := range images {
			last.Parts = append(last.Parts, llm.Part{Image: img})
		}
		req.Model = a.cfg.VisionModel
	}
	return a.open(ctx, req)
}

// open starts the backend stream and pulls the first fragment before returning.
func (a *Answerer) open(ctx context.Context, req llm.Request) (*Stream, error) {
	s, err := a.client.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAnswer, err)
	}
	for {
		first, err := s.Recv()
		if err != nil {
			_ = s.Close()
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: empty response", domain.ErrAnswer)
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrAnswer, err)
		}
		if first != "" {
			return &Stream{src: s, first: first, hasFirst: true}, nil
		}
	}
}

func split(chunks []domain.Chunk) (texts []string, images []*domain.Image) {
	for _, c := range chunks {
		if c.IsImage() {
			if c.Image != nil {
				images = append(images, c.Image)
			}
			continue
		}
		texts = append(texts, c.Text)
	}
	return texts, images
}

// Stream is a finite, non-restartable sequence of answer fragments. Recv
// is called from one goroutine; Close may be called from any goroutine,
// including while Recv is blocked.
type Stream struct {
	src llm.Stream

	mu       sync.Mutex
	first    string
	hasFirst bool
	done     bool
	err      error
}

// Recv returns the next fragment, io.EOF at the end, or an ErrAnswer error.
// After a terminal result every call repeats it.
func (s *Stream) Recv() (string, error) {
	s.mu.Lock()
	if s.done {
		err := s.err
		s.mu.Unlock()
		return "", err
	}
	if s.hasFirst {
		s.hasFirst = false
		first := s.first
		s.mu.Unlock()
		return first, nil
	}
	s.mu.Unlock()

	for {
		frag, err := s.src.Recv()
		if err != nil {
			return "", s.terminate(err)
		}
		if frag == "" {
			continue
		}
		s.mu.Lock()
		done, doneErr := s.done, s.err
		s.mu.Unlock()
		if done {
			return "", doneErr
		}
		return frag, nil
	}
}

// terminate records the backend's terminal error unless Close got there first.
func (s *Stream) terminate(err error) error {
	s.mu.Lock()
	if s.done {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.done = true
	if errors.Is(err, io.EOF) {
		s.err = io.EOF
	} else {
		s.err = fmt.Errorf("%w: %w", domain.ErrAnswer, err)
	}
	out := s.err
	s.mu.Unlock()
	_ = s.src.Close()
	return out
}

// Close stops the stream and aborts a blocked Recv. Further Recv calls
// return io.EOF.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.hasFirst = false
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	s.err = io.EOF
	s.mu.Unlock()
	return s.src.Close()
}

// Collect drains s, calling onFragment for each fragment, and returns the
// accumulated text. On a mid-stream failure the partial text is returned
// together with the error.
func Collect(s *Stream, onFragment func(string)) (string, error) {
	var b strings.Builder
	for {
		frag, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.String(), nil
			}
			return b.String(), err
		}
		b.WriteString(frag)
		if onFragment != nil {
			onFragment(frag)
		}
	}
}
