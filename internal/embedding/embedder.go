package embedding

import "context"

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Preparer is implemented by embedders whose vector space is derived from
// the indexed corpus. Prepare returns a new embedder frozen on that corpus;
// the receiver is left untouched.
type Preparer interface {
	Prepare(corpus []string) (Embedder, error)
}

// BatchEmbedder embeds several texts in one backend round trip.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}
