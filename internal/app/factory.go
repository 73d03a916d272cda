package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-persona/internal/config"
	"github.com/mycelian/mycelian-persona/internal/embeddings"
	"github.com/mycelian/mycelian-persona/internal/profiles"
	"github.com/mycelian/mycelian-persona/internal/searchindex"
	"github.com/mycelian/mycelian-persona/internal/store"
	"github.com/mycelian/mycelian-persona/internal/store/sqlstore"
)

const bootstrapTimeout = 15 * time.Second

// NewStore opens the configured relational store and ensures its schema.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, *sql.DB, error) {
	var (
		db      *sql.DB
		dialect sqlstore.Dialect
		err     error
	)
	switch cfg.DBDriver {
	case "sqlite":
		db, err = sqlstore.OpenSQLite(cfg.SQLitePath)
		dialect = sqlstore.DialectSQLite
	case "postgres":
		db, err = sqlstore.OpenPostgres(ctx, cfg.PostgresDSN)
		dialect = sqlstore.DialectPostgres
	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}

	bctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()
	if err := sqlstore.EnsureSchema(bctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Debug().Str("driver", cfg.DBDriver).Msg("store ready")
	return sqlstore.New(db, dialect), db, nil
}

// NewSearchIndex returns the configured index. The Weaviate class is
// bootstrapped in the background so startup is not blocked on it.
func NewSearchIndex(ctx context.Context, cfg *config.Config, log zerolog.Logger) (searchindex.Index, error) {
	if cfg.SearchBackend == "memory" {
		log.Warn().Msg("using in-process search index; contents are lost on restart")
		return searchindex.NewMemoryIndex(), nil
	}
	idx, err := searchindex.NewWeaviateIndex(cfg.WeaviateURL, cfg.WeaviateClass, log)
	if err != nil {
		return nil, err
	}
	go func() {
		bctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
		defer cancel()
		if err := searchindex.Bootstrap(bctx, idx); err != nil {
			log.Warn().Err(err).Str("url", cfg.WeaviateURL).Msg("search index bootstrap failed")
		} else {
			log.Debug().Str("url", cfg.WeaviateURL).Msg("search index bootstrap completed")
		}
	}()
	return idx, nil
}

// NewEmbedder returns the embedding provider shared by ingestion and retrieval.
func NewEmbedder(cfg *config.Config) (embeddings.Provider, error) {
	return embeddings.NewProvider(cfg.EmbedProvider, cfg.EmbedModel, embeddings.Options{
		OllamaURL:     cfg.OllamaURL,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	})
}

// NewProfileBackend returns the cache backend for display names. The
// returned closer is never nil.
func NewProfileBackend(ctx context.Context, cfg *config.Config) (profiles.Backend, func() error, error) {
	if cfg.ProfileCache == "redis" {
		rb, err := profiles.NewRedisBackend(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return rb, rb.Close, nil
	}
	return profiles.NewMemoryBackend(), func() error { return nil }, nil
}
