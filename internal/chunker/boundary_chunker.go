package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"docchat/internal/domain"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// boundaryLevels lists cut points from coarsest to finest: paragraph, line,
// sentence, word. A hard cut is used when none of them fit.
var boundaryLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
}

// BoundaryChunker cuts text into windows of at most size runes, placing each
// cut on the coarsest boundary available inside the window. Consecutive
// chunks of a unit share exactly overlap runes.
type BoundaryChunker struct {
	size    int
	overlap int
}

func NewBoundaryChunker(size, overlap int) *BoundaryChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &BoundaryChunker{size: size, overlap: overlap}
}

// Split turns units into chunks. Image units become exactly one chunk each.
func (c *BoundaryChunker) Split(units []domain.Unit) ([]domain.Chunk, error) {
	return splitUnits(units, c.splitText)
}

func (c *BoundaryChunker) splitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	var pieces []string
	start := 0
	for {
		end := n
		if n-start > c.size {
			end = c.cut(runes, start)
		}
		piece := string(runes[start:end])
		if strings.TrimSpace(piece) != "" {
			pieces = append(pieces, piece)
		}
		if end == n {
			break
		}
		start = end - c.overlap
	}
	return pieces
}

// cut returns the end of the window starting at start. The end always lies
// beyond start+overlap so the next window makes progress.
func (c *BoundaryChunker) cut(runes []rune, start int) int {
	limit := start + c.size
	minEnd := start + c.overlap + 1
	window := string(runes[minEnd:limit])
	for _, seps := range boundaryLevels {
		best := -1
		for _, sep := range seps {
			if i := strings.LastIndex(window, sep); i >= 0 {
				if e := i + len(sep); e > best {
					best = e
				}
			}
		}
		if best > 0 {
			return minEnd + utf8.RuneCountInString(window[:best])
		}
	}
	return limit
}

// splitUnits applies a text splitter to each text unit and numbers the
// resulting chunks in document order.
func splitUnits(units []domain.Unit, split func(string) []string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for i, u := range units {
		switch u.Kind {
		case domain.KindImage:
			if u.Image == nil {
				return nil, fmt.Errorf("unit %d: image unit without payload", i)
			}
			chunks = append(chunks, domain.Chunk{
				Kind:   domain.KindImage,
				Image:  u.Image,
				Source: u.Source,
				Page:   u.Page,
			})
		case domain.KindText, "":
			for _, piece := range split(u.Text) {
				chunks = append(chunks, domain.Chunk{
					Kind:   domain.KindText,
					Text:   piece,
					Source: u.Source,
					Page:   u.Page,
				})
			}
		default:
			return nil, fmt.Errorf("unit %d: unknown kind %q", i, u.Kind)
		}
	}
	for i := range chunks {
		chunks[i].Seq = i
	}
	return chunks, nil
}
