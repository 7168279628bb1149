package index

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"docchat/internal/domain"
	"docchat/internal/embedding"
	"docchat/internal/vectorstore"
)

// Options tune index construction.
type Options struct {
	// BatchSize bounds texts per EmbedBatch call. Zero means all at once.
	BatchSize int
	Logger    *zerolog.Logger
}

// Index is a queryable vector index over one document's chunks.
// It owns the embedder it was built with.
type Index struct {
	mu       sync.RWMutex
	embedder embedding.Embedder
	store    vectorstore.Storage
	text     []domain.Chunk
	images   []domain.Chunk
	closed   bool
	log      zerolog.Logger
}

// Build embeds every text chunk and writes the vectors to store.
// On any embedding failure the store is left untouched.
func Build(ctx context.Context, emb embedding.Embedder, store vectorstore.Storage, chunks []domain.Chunk, opts Options) (*Index, error) {
	if emb == nil || store == nil {
		return nil, errors.New("index: embedder and store are required")
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	idx := &Index{store: store, log: log}
	for _, c := range chunks {
		if c.IsImage() {
			idx.images = append(idx.images, c)
		} else {
			idx.text = append(idx.text, c)
		}
	}

	texts := make([]string, len(idx.text))
	for i, c := range idx.text {
		texts[i] = c.Text
	}

	if p, ok := emb.(embedding.Preparer); ok && len(texts) > 0 {
		prepared, err := p.Prepare(texts)
		if err != nil {
			return nil, fmt.Errorf("%w: prepare %s: %w", domain.ErrEmbedding, emb.Name(), err)
		}
		emb = prepared
	}
	idx.embedder = emb

	if len(texts) == 0 {
		log.Debug().Int("images", len(idx.images)).Msg("index has no text chunks")
		return idx, nil
	}

	vectors, err := embedAll(ctx, emb, texts, opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector for chunk %s", domain.ErrEmbedding, idx.text[i].ID)
		}
		if len(v) != dim {
			return nil, fmt.Errorf("%w: chunk %s has dimension %d, want %d", domain.ErrEmbedding, idx.text[i].ID, len(v), dim)
		}
	}

	if err := store.Init(ctx, dim); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := store.Upsert(ctx, idx.text, vectors); err != nil {
		return nil, fmt.Errorf("upsert vectors: %w", err)
	}
	log.Debug().
		Str("embedder", emb.Name()).
		Int("chunks", len(idx.text)).
		Int("images", len(idx.images)).
		Int("dimension", dim).
		Msg("index built")
	return idx, nil
}

func embedAll(ctx context.Context, emb embedding.Embedder, texts []string, batchSize int) ([][]float64, error) {
	if be, ok := emb.(embedding.BatchEmbedder); ok {
		if batchSize <= 0 {
			batchSize = len(texts)
		}
		out := make([][]float64, 0, len(texts))
		for start := 0; start < len(texts); start += batchSize {
			end := min(start+batchSize, len(texts))
			vecs, err := be.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return nil, err
			}
			if len(vecs) != end-start {
				return nil, fmt.Errorf("got %d vectors for %d texts", len(vecs), end-start)
			}
			out = append(out, vecs...)
		}
		return out, nil
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := emb.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Search returns the k text chunks most similar to query.
func (x *Index) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, domain.ErrIndexClosed
	}
	if k <= 0 || len(x.text) == 0 {
		return nil, nil
	}
	q, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", domain.ErrEmbedding, err)
	}
	return x.store.Search(ctx, q, min(k, len(x.text)))
}

// Images returns the image chunks of the document in document order.
func (x *Index) Images() []domain.Chunk {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]domain.Chunk(nil), x.images...)
}

// Len reports the number of indexed text chunks.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.text)
}

func (x *Index) Embedder() embedding.Embedder { return x.embedder }

// Close invalidates the index and clears its store. It is idempotent.
func (x *Index) Close(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	if len(x.text) == 0 {
		return nil
	}
	if err := x.store.Clear(ctx); err != nil {
		x.log.Warn().Err(err).Msg("clear vector store")
		return err
	}
	return nil
}
