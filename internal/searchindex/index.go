package searchindex

import (
	"context"

	"github.com/mycelian/mycelian-persona/internal/model"
)

// Index is the vector similarity index populated by ingestion and read by retrieval.
type Index interface {
	// Upsert writes chunks keyed by ChunkKey; writing an existing key overwrites it.
	Upsert(ctx context.Context, chunks []model.IndexedChunk) error
	// Query returns up to topK nearest chunks with their metadata, best first.
	Query(ctx context.Context, vec []float32, topK int) ([]model.RetrievedMatch, error)
}
