package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-persona/internal/model"
	"github.com/mycelian/mycelian-persona/internal/searchindex"
)

// DefaultTopK is used when callers pass a non-positive topK.
const DefaultTopK = 5

// Embedder must be the same provider and model the index was built with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever returns the stored chunks most similar to a query text.
type Retriever struct {
	embedder Embedder
	index    searchindex.Index
	log      zerolog.Logger
}

func New(embedder Embedder, index searchindex.Index, log zerolog.Logger) *Retriever {
	return &Retriever{embedder: embedder, index: index, log: log.With().Str("component", "retriever").Logger()}
}

// Retrieve returns up to topK matches, best first. It returns nil, not an
// empty slice, when nothing matched.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]model.RetrievedMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := r.index.Query(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if len(matches) == 0 {
		r.log.Debug().Int("top_k", topK).Msg("no matches")
		return nil, nil
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	r.log.Debug().Int("top_k", topK).Int("matches", len(matches)).Msg("retrieved")
	return matches, nil
}
