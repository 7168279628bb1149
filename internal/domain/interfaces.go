package domain

import (
	"context"
	"time"
)

// Kind tells text content apart from image content.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Image is a raw image payload together with its MIME type.
type Image struct {
	MIME string
	Data []byte
}

// Unit is one normalized piece of extracted document content: a page, the
// whole text of a file, or one image.
type Unit struct {
	Kind   Kind
	Text   string
	Image  *Image
	Source string
	// Page is the 1-based page number for paged formats, 0 otherwise.
	Page int
}

// IsImage reports whether u carries an image payload.
func (u Unit) IsImage() bool { return u.Kind == KindImage }

// Chunk is a bounded piece of a unit, the atomic item that gets indexed and
// handed to the language model.
type Chunk struct {
	ID     string
	Kind   Kind
	Text   string
	Image  *Image
	Source string
	Page   int
	// Seq is the position of the chunk within its document.
	Seq int
}

// IsImage reports whether c carries an image payload.
func (c Chunk) IsImage() bool { return c.Kind == KindImage }

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a session's conversation.
type Turn struct {
	Role    Role
	Content string
	At      time.Time
}

// Chunker splits extracted units into chunks suitable for retrieval indexing.
type Chunker interface {
	Split(units []Unit) ([]Chunk, error)
}

// Summarizer produces a single summary for a document's chunks.
type Summarizer interface {
	Summarize(ctx context.Context, chunks []Chunk) (string, error)
}
