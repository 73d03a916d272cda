package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-persona/internal/api/recovery"
	"github.com/mycelian/mycelian-persona/internal/ingest"
	"github.com/mycelian/mycelian-persona/internal/pipeline"
)

// Pipeline handles the three trigger surfaces.
type Pipeline interface {
	HandleChannelMessage(ctx context.Context, t pipeline.ChannelTrigger) (pipeline.Result, error)
	HandleThreadReply(ctx context.Context, t pipeline.ThreadTrigger) (pipeline.Result, error)
	HandleDirectMessage(ctx context.Context, t pipeline.DirectTrigger) (pipeline.Result, error)
}

// Ingester runs a single ingestion pass.
type Ingester interface {
	RunOnce(ctx context.Context) (ingest.Result, error)
}

// HealthReporter exposes cached service health.
type HealthReporter interface {
	IsHealthy() bool
}

// NewRouter wires every HTTP route of the persona service.
func NewRouter(p Pipeline, ing Ingester, health HealthReporter, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware(log))

	triggers := NewTriggerHandler(p, log)
	ingestHandler := NewIngestHandler(ing, log)
	healthHandler := NewHealthHandler(health)

	router.HandleFunc("/v1/health", healthHandler.CheckHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/v1/triggers/channel-messages", triggers.ChannelMessage).Methods(http.MethodPost)
	router.HandleFunc("/v1/triggers/thread-replies", triggers.ThreadReply).Methods(http.MethodPost)
	router.HandleFunc("/v1/triggers/direct-messages", triggers.DirectMessage).Methods(http.MethodPost)

	router.HandleFunc("/v1/ingest", ingestHandler.Run).Methods(http.MethodPost)

	return router
}
