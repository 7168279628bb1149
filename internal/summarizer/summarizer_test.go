package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/domain"
	"docchat/internal/llm"
)

type fakeClient struct {
	mu       sync.Mutex
	requests []llm.Request
	respond  func(req llm.Request) (string, error)
}

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.respond == nil {
		return "ok", nil
	}
	return f.respond(req)
}

func (f *fakeClient) Stream(context.Context, llm.Request) (llm.Stream, error) {
	return nil, errors.New("not supported")
}

func promptOf(req llm.Request) string {
	return req.Messages[0].Parts[0].Text
}

func longChunks(n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		text := fmt.Sprintf("marker-%02d ", i) + strings.Repeat("lorem ipsum dolor sit amet ", 15)
		out[i] = domain.Chunk{ID: fmt.Sprintf("d:%d", i), Kind: domain.KindText, Text: text, Seq: i}
	}
	return out
}

func TestSummarize_ShortDocument(t *testing.T) {
	fc := &fakeClient{respond: func(llm.Request) (string, error) { return "the raw summary", nil }}
	s := NewHierarchicalSummarizer(fc, HierarchicalConfig{Model: "text"})

	text := strings.Repeat("a", 500)
	out, err := s.Summarize(context.Background(), []domain.Chunk{{Kind: domain.KindText, Text: text}})
	require.NoError(t, err)
	assert.Equal(t, "the raw summary", out)
	require.Len(t, fc.requests, 1)
	req := fc.requests[0]
	assert.Equal(t, "text", req.Model)
	assert.Equal(t, 1024, req.MaxTokens)
	assert.InDelta(t, 0.3, req.Temperature, 1e-6)
	assert.Contains(t, promptOf(req), text)
}

func TestSummarize_ShortDocumentError(t *testing.T) {
	fc := &fakeClient{respond: func(llm.Request) (string, error) { return "", errors.New("unreachable") }}
	s := NewHierarchicalSummarizer(fc, HierarchicalConfig{})

	_, err := s.Summarize(context.Background(), []domain.Chunk{{Kind: domain.KindText, Text: "short"}})
	assert.ErrorIs(t, err, domain.ErrSummarization)
	assert.Len(t, fc.requests, 1)
}

func TestSummarize_ThresholdIsInclusive(t *testing.T) {
	fc := &fakeClient{}
	s := NewHierarchicalSummarizer(fc, HierarchicalConfig{})

	_, err := s.Summarize(context.Background(), []domain.Chunk{{Kind: domain.KindText, Text: strings.Repeat("é", DefaultShortDocMaxChars)}})
	require.NoError(t, err)
	assert.Len(t, fc.requests, 1)
}

func TestSummarize_LongDocumentWithFailingGroup(t *testing.T) {
	var reduceInput string
	fc := &fakeClient{}
	fc.respond = func(req llm.Request) (string, error) {
		p := promptOf(req)
		switch {
		case strings.HasPrefix(p, "Based on the following section summaries"):
			reduceInput = p
			return "final summary", nil
		case strings.Contains(p, "marker-10 "):
			return "", errors.New("group exploded")
		default:
			return "summary of " + p[strings.Index(p, "marker-"):strings.Index(p, "marker-")+9], nil
		}
	}
	s := NewHierarchicalSummarizer(fc, HierarchicalConfig{Concurrency: 3})

	out, err := s.Summarize(context.Background(), longChunks(30))
	require.NoError(t, err)
	assert.Equal(t, "final summary", out)
	assert.Len(t, fc.requests, 7)

	last := -1
	for n := 1; n <= 6; n++ {
		label := fmt.Sprintf("Section %d: ", n)
		pos := strings.Index(reduceInput, label)
		require.GreaterOrEqual(t, pos, 0, label)
		assert.Greater(t, pos, last, "sections in ascending order")
		last = pos
	}
	assert.Contains(t, reduceInput, "Section 3: [Error summarizing this section: group exploded]")
	assert.Contains(t, reduceInput, "Section 1: summary of marker-00")
	assert.Contains(t, reduceInput, "Section 6: summary of marker-25")
}

func TestSummarize_ReductionFallback(t *testing.T) {
	fc := &fakeClient{}
	fc.respond = func(req llm.Request) (string, error) {
		if strings.HasPrefix(promptOf(req), "Based on the following section summaries") {
			return "", errors.New("reduction failed")
		}
		return "part", nil
	}
	s := NewHierarchicalSummarizer(fc, HierarchicalConfig{})

	out, err := s.Summarize(context.Background(), longChunks(20))
	require.NoError(t, err)
	assert.Equal(t, "Document Summary (Section-based):\n\nSection 1: part\n\nSection 2: part\n\nSection 3: part\n\nSection 4: part", out)
}

func TestSummarize_GroupOrderIndependentOfCompletion(t *testing.T) {
	fc := &fakeClient{}
	var reduceInput string
	fc.respond = func(req llm.Request) (string, error) {
		p := promptOf(req)
		if strings.HasPrefix(p, "Based on the following section summaries") {
			reduceInput = p
			return "done", nil
		}
		// Earlier groups finish later.
		if strings.Contains(p, "marker-00 ") {
			time.Sleep(30 * time.Millisecond)
			return "first", nil
		}
		return "later", nil
	}
	s := NewHierarchicalSummarizer(fc, HierarchicalConfig{Concurrency: 4})

	_, err := s.Summarize(context.Background(), longChunks(20))
	require.NoError(t, err)
	assert.True(t, strings.Index(reduceInput, "Section 1: first") < strings.Index(reduceInput, "Section 2: later"))
}

func TestSummarize_GroupTruncation(t *testing.T) {
	groups := groupTexts([]string{strings.Repeat("x", 4000), strings.Repeat("y", 4000)}, 5, 6000)
	require.Len(t, groups, 1)
	assert.Equal(t, 6003, len([]rune(groups[0])))
	assert.True(t, strings.HasSuffix(groups[0], "y..."))

	groups = groupTexts([]string{"a", "b", "c", "d", "e", "f"}, 5, 6000)
	assert.Equal(t, []string{"a\nb\nc\nd\ne", "f"}, groups)
}

func TestSummarize_ImageUsesVisionModel(t *testing.T) {
	fc := &fakeClient{respond: func(llm.Request) (string, error) { return "a diagram", nil }}
	s := NewHierarchicalSummarizer(fc, HierarchicalConfig{Model: "text", VisionModel: "vision"})

	first := &domain.Image{MIME: "image/png", Data: []byte{1}}
	second := &domain.Image{MIME: "image/png", Data: []byte{2}}
	chunks := []domain.Chunk{
		{Kind: domain.KindText, Text: "ignored text"},
		{Kind: domain.KindImage, Image: first},
		{Kind: domain.KindImage, Image: second},
	}
	out, err := s.Summarize(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, "a diagram", out)
	require.Len(t, fc.requests, 1)
	req := fc.requests[0]
	assert.Equal(t, "vision", req.Model)
	require.Len(t, req.Messages[0].Parts, 2)
	assert.Same(t, first, req.Messages[0].Parts[1].Image)
	assert.NotContains(t, req.Messages[0].Parts[0].Text, "ignored text")
}

func TestSummarize_NoChunks(t *testing.T) {
	s := NewHierarchicalSummarizer(&fakeClient{}, HierarchicalConfig{})
	_, err := s.Summarize(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrSummarization)
}

func TestSummarize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fc := &fakeClient{}
	fc.respond = func(llm.Request) (string, error) {
		cancel()
		return "", context.Canceled
	}
	s := NewHierarchicalSummarizer(fc, HierarchicalConfig{Concurrency: 1})

	_, err := s.Summarize(ctx, longChunks(20))
	assert.ErrorIs(t, err, domain.ErrSummarization)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFrequencySummarizer(t *testing.T) {
	s := NewFrequencySummarizer(2)
	chunks := []domain.Chunk{
		{Kind: domain.KindText, Text: "Go has goroutines. Goroutines are cheap threads in Go."},
		{Kind: domain.KindImage, Image: &domain.Image{MIME: "image/png", Data: []byte{1}}},
		{Kind: domain.KindText, Text: "The weather was nice. Channels connect goroutines in Go."},
	}
	out, err := s.Summarize(context.Background(), chunks)
	require.NoError(t, err)
	assert.NotContains(t, out, "weather")
	assert.Contains(t, out, "goroutines")

	_, err = s.Summarize(context.Background(), chunks[1:2])
	assert.ErrorIs(t, err, domain.ErrSummarization)
}

func TestFrequencySummarizer_NoSentenceTerminator(t *testing.T) {
	out, err := NewFrequencySummarizer(0).Summarize(context.Background(), []domain.Chunk{{Kind: domain.KindText, Text: "  just a fragment  "}})
	require.NoError(t, err)
	assert.Equal(t, "just a fragment", out)
}
