package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-persona/internal/api/respond"
	"github.com/mycelian/mycelian-persona/internal/model"
	"github.com/mycelian/mycelian-persona/internal/pipeline"
)

// maxBodyBytes bounds trigger request bodies.
const maxBodyBytes = 1 << 20

// TriggerHandler exposes the pipeline entry points over HTTP.
type TriggerHandler struct {
	pipeline Pipeline
	log      zerolog.Logger
}

func NewTriggerHandler(p Pipeline, log zerolog.Logger) *TriggerHandler {
	return &TriggerHandler{pipeline: p, log: log.With().Str("component", "triggers").Logger()}
}

// ChannelMessage handles POST /v1/triggers/channel-messages
func (h *TriggerHandler) ChannelMessage(w http.ResponseWriter, r *http.Request) {
	var t pipeline.ChannelTrigger
	if !decode(w, r, &t) {
		return
	}
	res, err := h.pipeline.HandleChannelMessage(r.Context(), t)
	h.write(w, "channel", res, err)
}

// ThreadReply handles POST /v1/triggers/thread-replies
func (h *TriggerHandler) ThreadReply(w http.ResponseWriter, r *http.Request) {
	var t pipeline.ThreadTrigger
	if !decode(w, r, &t) {
		return
	}
	res, err := h.pipeline.HandleThreadReply(r.Context(), t)
	h.write(w, "thread", res, err)
}

// DirectMessage handles POST /v1/triggers/direct-messages
func (h *TriggerHandler) DirectMessage(w http.ResponseWriter, r *http.Request) {
	var t pipeline.DirectTrigger
	if !decode(w, r, &t) {
		return
	}
	res, err := h.pipeline.HandleDirectMessage(r.Context(), t)
	h.write(w, "direct", res, err)
}

func (h *TriggerHandler) write(w http.ResponseWriter, surface string, res pipeline.Result, err error) {
	switch {
	case err == nil:
		respond.WriteJSON(w, http.StatusOK, res)
	case errors.Is(err, model.ErrValidation):
		respond.WriteBadRequest(w, err.Error())
	default:
		h.log.Error().Err(err).Str("surface", surface).Msg("trigger failed")
		respond.WriteInternalError(w)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// IngestHandler triggers an ingestion pass. Only one pass runs at a time.
type IngestHandler struct {
	ingester Ingester
	running  sync.Mutex
	log      zerolog.Logger
}

func NewIngestHandler(ing Ingester, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{ingester: ing, log: log.With().Str("component", "ingest_handler").Logger()}
}

// Run handles POST /v1/ingest
func (h *IngestHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.running.TryLock() {
		respond.WriteConflict(w, "ingestion already running")
		return
	}
	defer h.running.Unlock()

	res, err := h.ingester.RunOnce(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("ingest run failed")
		respond.WriteInternalError(w)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// HealthHandler reports aggregated dependency health.
type HealthHandler struct {
	health HealthReporter
}

func NewHealthHandler(health HealthReporter) *HealthHandler {
	return &HealthHandler{health: health}
}

// CheckHealth handles GET /v1/health
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if h.health == nil || !h.health.IsHealthy() {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	respond.WriteJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
