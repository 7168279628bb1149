package chunker

import (
	"regexp"
	"strings"

	"docchat/internal/domain"
)

// SentenceChunker groups consecutive sentences into chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// Split turns units into sentence-group chunks. Image units pass through.
func (c *SentenceChunker) Split(units []domain.Unit) ([]domain.Chunk, error) {
	return splitUnits(units, c.splitText)
}

func (c *SentenceChunker) splitText(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	sentences := c.splitter.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{trimmed}
	} else if tail := strings.TrimSpace(text[strings.LastIndexAny(text, ".!?")+1:]); tail != "" {
		// unterminated trailing sentence
		sentences = append(sentences, tail)
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	var pieces []string
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		pieces = append(pieces, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return pieces
}
