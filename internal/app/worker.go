package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/mycelian/mycelian-persona/internal/config"
	"github.com/mycelian/mycelian-persona/internal/logger"
)

// RunWorker runs the scheduled ingestion loop until shutdown, or a single
// pass when PERSONA_INGEST_ONCE is set.
func RunWorker() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	log := logger.New("ingest-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if vec, err := c.Embedder.Embed(ctx, "worker-startup-check"); err != nil || len(vec) == 0 {
		log.Error().Err(err).Int("vec_len", len(vec)).Str("provider", cfg.EmbedProvider).Str("model", cfg.EmbedModel).Msg("embedder not ready")
		if err == nil {
			err = errors.New("embedder returned an empty vector")
		}
		return err
	}

	if err := c.Batcher().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("ingest worker exit")
		return err
	}
	return nil
}
