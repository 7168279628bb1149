package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"docchat/internal/domain"
	"docchat/internal/llm"
)

const (
	DefaultGroupSize        = 5
	DefaultGroupMaxChars    = 6000
	DefaultShortDocMaxChars = 8000
	DefaultConcurrency      = 4
)

const (
	shortDocPrompt = "Please provide a comprehensive summary of the following document:\n\n%s\n\nSummary:"
	groupPrompt    = "Please provide a concise summary of this section of the document:\n\n%s\n\nFocus on key concepts, main topics, and important details. Summary:"
	reducePrompt   = `Based on the following section summaries of a document, create a comprehensive overall summary that covers all the main topics and key points:

%s

Please provide a well-structured summary that:
1. Covers all major topics mentioned across sections
2. Maintains logical flow and organization
3. Highlights key concepts and important details
4. Is comprehensive yet concise

Comprehensive Summary:`
	imagePrompt = "Please describe this image in detail and summarize the information it contains."

	sectionFallbackHeader = "Document Summary (Section-based):\n\n"
)

// HierarchicalConfig configures HierarchicalSummarizer. Zero values fall back
// to the package defaults.
type HierarchicalConfig struct {
	Model            string
	VisionModel      string
	GroupSize        int
	GroupMaxChars    int
	ShortDocMaxChars int
	Concurrency      int
	Logger           *zerolog.Logger
}

// HierarchicalSummarizer summarizes short documents in one call and long
// documents by summarizing chunk groups and then reducing the group summaries.
type HierarchicalSummarizer struct {
	client llm.Client
	cfg    HierarchicalConfig
	log    zerolog.Logger
}

func NewHierarchicalSummarizer(client llm.Client, cfg HierarchicalConfig) *HierarchicalSummarizer {
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = DefaultGroupSize
	}
	if cfg.GroupMaxChars <= 0 {
		cfg.GroupMaxChars = DefaultGroupMaxChars
	}
	if cfg.ShortDocMaxChars <= 0 {
		cfg.ShortDocMaxChars = DefaultShortDocMaxChars
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &HierarchicalSummarizer{client: client, cfg: cfg, log: log}
}

func (s *HierarchicalSummarizer) Summarize(ctx context.Context, chunks []domain.Chunk) (string, error) {
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: no chunks", domain.ErrSummarization)
	}
	// Any image wins: only the first image is summarized.
	for _, c := range chunks {
		if c.IsImage() {
			return s.summarizeImage(ctx, c)
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	full := strings.Join(texts, "\n")
	if len([]rune(full)) <= s.cfg.ShortDocMaxChars {
		return s.summarizeShort(ctx, full)
	}
	return s.summarizeLong(ctx, texts)
}

func (s *HierarchicalSummarizer) summarizeImage(ctx context.Context, c domain.Chunk) (string, error) {
	if c.Image == nil {
		return "", fmt.Errorf("%w: image chunk %s has no payload", domain.ErrSummarization, c.ID)
	}
	out, err := s.client.Complete(ctx, llm.Request{
		Model: s.cfg.VisionModel,
		Messages: []llm.Message{{
			Role:  llm.RoleUser,
			Parts: []llm.Part{{Text: imagePrompt}, {Image: c.Image}},
		}},
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrSummarization, err)
	}
	return out, nil
}

func (s *HierarchicalSummarizer) summarizeShort(ctx context.Context, text string) (string, error) {
	out, err := s.client.Complete(ctx, llm.Request{
		Model:       s.cfg.Model,
		Messages:    []llm.Message{llm.Text(llm.RoleUser, fmt.Sprintf(shortDocPrompt, text))},
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrSummarization, err)
	}
	return out, nil
}

func (s *HierarchicalSummarizer) summarizeLong(ctx context.Context, texts []string) (string, error) {
	groups := groupTexts(texts, s.cfg.GroupSize, s.cfg.GroupMaxChars)
	sections := make([]string, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, text := range groups {
		g.Go(func() error {
			out, err := s.client.Complete(gctx, llm.Request{
				Model:       s.cfg.Model,
				Messages:    []llm.Message{llm.Text(llm.RoleUser, fmt.Sprintf(groupPrompt, text))},
				Temperature: 0.3,
				MaxTokens:   512,
			})
			if err != nil {
				s.log.Warn().Err(err).Int("section", i+1).Msg("section summary failed")
				sections[i] = fmt.Sprintf("Section %d: [Error summarizing this section: %v]", i+1, err)
				return nil
			}
			sections[i] = fmt.Sprintf("Section %d: %s", i+1, out)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrSummarization, err)
	}

	all := strings.Join(sections, "\n\n")
	s.log.Debug().Int("sections", len(sections)).Msg("reducing section summaries")
	out, err := s.client.Complete(ctx, llm.Request{
		Model:       s.cfg.Model,
		Messages:    []llm.Message{llm.Text(llm.RoleUser, fmt.Sprintf(reducePrompt, all))},
		Temperature: 0.3,
		MaxTokens:   2048,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrSummarization, ctx.Err())
		}
		s.log.Warn().Err(err).Msg("final summary failed, returning section summaries")
		return sectionFallbackHeader + all, nil
	}
	return out, nil
}

// groupTexts joins consecutive texts in groups of size, truncating each
// group to maxChars runes followed by "...".
func groupTexts(texts []string, size, maxChars int) []string {
	groups := make([]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		text := strings.Join(texts[start:end], "\n")
		if r := []rune(text); len(r) > maxChars {
			text = string(r[:maxChars]) + "..."
		}
		groups = append(groups, text)
	}
	return groups
}
