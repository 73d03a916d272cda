package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-persona/internal/api"
	"github.com/mycelian/mycelian-persona/internal/config"
	"github.com/mycelian/mycelian-persona/internal/events"
	"github.com/mycelian/mycelian-persona/internal/health"
	"github.com/mycelian/mycelian-persona/internal/logger"
)

// RunService starts the persona HTTP service and blocks until shutdown or error.
func RunService() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	log := logger.New("persona-service", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close components")
		}
	}()

	svcHealth := health.NewServiceHealthChecker(log, c.HealthCheckers()...)
	svcHealth.StartAll(ctx, cfg.HealthInterval)
	go consumeNotifications(ctx, c.Bus, log)

	router := api.NewRouter(c.Pipeline(c.Completer()), c.Batcher(), svcHealth, log)
	server := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			log.Error().Stack().Err(err).Msg("server forced to shutdown")
			return err
		}
		log.Info().Msg("server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return fmt.Errorf("http server: %w", err)
	}
}

// consumeNotifications drains post-persist events. Downstream side effects
// hook in here; the trigger path never waits on them.
func consumeNotifications(ctx context.Context, bus *events.Bus, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-bus.Subscribe():
			log.Debug().
				Str("kind", string(evt.Kind)).
				Str("reply_id", evt.ReplyID).
				Str("table", string(evt.Destination.Table)).
				Str("container", evt.Destination.ContainerID).
				Msg("reply persisted")
		}
	}
}
