package app

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-persona/internal/chunker"
	"github.com/mycelian/mycelian-persona/internal/config"
	"github.com/mycelian/mycelian-persona/internal/contextwindow"
	"github.com/mycelian/mycelian-persona/internal/embeddings"
	"github.com/mycelian/mycelian-persona/internal/events"
	"github.com/mycelian/mycelian-persona/internal/health"
	"github.com/mycelian/mycelian-persona/internal/ingest"
	"github.com/mycelian/mycelian-persona/internal/llm"
	"github.com/mycelian/mycelian-persona/internal/pipeline"
	"github.com/mycelian/mycelian-persona/internal/profiles"
	"github.com/mycelian/mycelian-persona/internal/responder"
	"github.com/mycelian/mycelian-persona/internal/retrieve"
	"github.com/mycelian/mycelian-persona/internal/searchindex"
	"github.com/mycelian/mycelian-persona/internal/store"
)

// Components holds every long-lived dependency of a process.
type Components struct {
	Config   *config.Config
	Store    store.Store
	Index    searchindex.Index
	Embedder embeddings.Provider
	Backend  profiles.Backend
	Bus      *events.Bus

	db           *sql.DB
	closeBackend func() error
	log          zerolog.Logger
}

// Build opens the store, index, embedder and profile cache backend.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Components, error) {
	st, db, err := NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("store unavailable")
		return nil, err
	}
	idx, err := NewSearchIndex(ctx, cfg, log)
	if err != nil {
		_ = db.Close()
		log.Error().Stack().Err(err).Msg("search index unavailable")
		return nil, err
	}
	emb, err := NewEmbedder(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	backend, closeBackend, err := NewProfileBackend(ctx, cfg)
	if err != nil {
		_ = db.Close()
		log.Error().Stack().Err(err).Msg("profile cache unavailable")
		return nil, err
	}
	return &Components{
		Config:       cfg,
		Store:        st,
		Index:        idx,
		Embedder:     emb,
		Backend:      backend,
		Bus:          events.NewBus(256),
		db:           db,
		closeBackend: closeBackend,
		log:          log,
	}, nil
}

// Close releases connections opened by Build.
func (c *Components) Close() error {
	return errors.Join(c.closeBackend(), c.db.Close())
}

// Batcher returns an ingestion batcher over the components.
func (c *Components) Batcher() *ingest.Batcher {
	return ingest.New(
		ingest.Config{Interval: c.Config.IngestInterval, Once: c.Config.IngestOnce},
		c.Store.Records(),
		chunker.New(c.Config.ChunkSize, c.Config.ChunkOverlap),
		c.Embedder,
		c.Index,
		c.log,
	)
}

// Retriever returns a similarity retriever over the components.
func (c *Components) Retriever() *retrieve.Retriever {
	return retrieve.New(c.Embedder, c.Index, c.log)
}

// Assembler returns a context window assembler resolving names through
// the profile cache.
func (c *Components) Assembler() *contextwindow.Assembler {
	names := profiles.NewCache(c.Store.Profiles(), c.Backend, c.Config.ProfileCacheTTL, c.log)
	return contextwindow.New(c.Store.Records(), names, c.log)
}

// Pipeline wires the full trigger pipeline around completer.
func (c *Components) Pipeline(completer llm.Completer) *pipeline.Service {
	assembler := c.Assembler()
	sink := responder.NewSink(c.Store.Replies(), c.Bus, c.log)
	gen := responder.NewGenerator(completer, sink, c.Config.ChatTemperature, c.Config.FanOutLimit, c.log)
	return pipeline.NewService(c.Store.Profiles(), c.Retriever(), assembler, gen, c.Config.TopK, c.log)
}

// Completer returns the configured chat model client.
func (c *Components) Completer() llm.Completer {
	return llm.NewOpenAIClient(c.Config.OpenAIAPIKey, c.Config.OpenAIBaseURL, c.Config.ChatModel, c.log)
}

// HealthCheckers returns one probe per external dependency.
func (c *Components) HealthCheckers() []health.HealthChecker {
	to := c.Config.HealthProbeTimeout
	checkers := []health.HealthChecker{
		health.NewProbeChecker("store", health.PingProbe(c.Store), c.log, to),
		health.NewProbeChecker("searchindex", indexProbe(c.Index), c.log, to),
		health.NewProbeChecker("embedder", health.PingProbe(c.Embedder), c.log, to),
	}
	if _, ok := c.Backend.(health.HealthPinger); ok {
		checkers = append(checkers, health.NewProbeChecker("profile_cache", health.PingProbe(c.Backend), c.log, to))
	}
	return checkers
}

// indexProbe pings indexes that support it; the in-process index is always up.
func indexProbe(idx searchindex.Index) func(ctx context.Context) error {
	if _, ok := idx.(health.HealthPinger); ok {
		return health.PingProbe(idx)
	}
	return func(context.Context) error { return nil }
}
