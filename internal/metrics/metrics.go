package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "persona"

var (
	ChunksUploadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks_uploaded_total",
			Help:      "Chunks upserted into the vector index.",
		},
		[]string{"table"},
	)

	RecordsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "records_failed_total",
			Help:      "Records left unindexed because embedding or upsert failed.",
		},
		[]string{"table"},
	)

	IngestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Ingestion runs by result.",
		},
		[]string{"result"},
	)

	TriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "triggers_total",
			Help:      "Trigger invocations by surface and terminal status.",
		},
		[]string{"surface", "status"},
	)

	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "responder",
			Name:      "replies_total",
			Help:      "Per-responder outcomes by result.",
		},
		[]string{"result"},
	)

	ProfileCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "profiles",
			Name:      "cache_lookups_total",
			Help:      "Profile cache lookups by outcome (hit, miss).",
		},
		[]string{"outcome"},
	)

	PanicsRecoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "panics_recovered_total",
			Help:      "Handler panics converted into 500 responses, by route template.",
		},
		[]string{"route"},
	)
)
