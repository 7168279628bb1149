package vectorstore

import (
	"context"

	"docchat/internal/domain"
)

// Storage persists vectors and supports similarity search.
// Search returns results in non-increasing score order; equal scores keep
// the order in which chunks were upserted where the backend allows it.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	Clear(ctx context.Context) error
}
