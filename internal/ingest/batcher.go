package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-persona/internal/metrics"
	"github.com/mycelian/mycelian-persona/internal/model"
	"github.com/mycelian/mycelian-persona/internal/searchindex"
	"github.com/mycelian/mycelian-persona/internal/store"
)

// Embedder turns chunk text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Splitter breaks record text into chunks.
type Splitter interface {
	Split(text string) ([]string, error)
}

// Result summarises one ingestion run.
type Result struct {
	ChunksUploaded int `json:"chunksUploaded"`
	RecordsIndexed int `json:"recordsIndexed"`
	RecordsFailed  int `json:"recordsFailed"`
	RecordsSkipped int `json:"recordsSkipped"`
}

// Config controls the scheduled loop.
type Config struct {
	Interval time.Duration
	Once     bool
}

// Batcher moves unindexed content into the vector index.
type Batcher struct {
	records  store.Records
	splitter Splitter
	embedder Embedder
	index    searchindex.Index
	log      zerolog.Logger

	interval   time.Duration
	once       bool
	backoffMin time.Duration
	backoffMax time.Duration
}

func New(cfg Config, records store.Records, splitter Splitter, embedder Embedder, index searchindex.Index, log zerolog.Logger) *Batcher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Batcher{
		records:    records,
		splitter:   splitter,
		embedder:   embedder,
		index:      index,
		log:        log.With().Str("component", "ingest").Logger(),
		interval:   interval,
		once:       cfg.Once,
		backoffMin: 2 * time.Second,
		backoffMax: 30 * time.Second,
	}
}

// RunOnce indexes every record currently flagged unindexed. Per-record
// failures leave the record unindexed and do not abort the run; only a
// failure to list records does. Mark failures are aggregated into the
// returned error alongside a populated Result.
func (b *Batcher) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	pending := make(map[model.SourceTable][]model.ContentRecord, len(model.AllTables))
	for _, table := range model.AllTables {
		recs, err := b.records.ListUnindexed(ctx, table, 0)
		if err != nil {
			metrics.IngestRunsTotal.WithLabelValues("error").Inc()
			return res, fmt.Errorf("list unindexed %s: %w", table, err)
		}
		pending[table] = recs
	}

	b.log.Info().
		Int("channel_messages", len(pending[model.TableChannelMessage])).
		Int("direct_messages", len(pending[model.TableDirectMessage])).
		Int("thread_replies", len(pending[model.TableThreadReply])).
		Msg("scan results")

	var markErrs []error
	for _, table := range model.AllTables {
		done := make([]string, 0, len(pending[table]))
		for _, rec := range pending[table] {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if strings.TrimSpace(rec.Text) == "" {
				done = append(done, rec.ID)
				res.RecordsSkipped++
				continue
			}
			n, err := b.indexRecord(ctx, rec)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return res, err
				}
				b.log.Warn().Err(err).Str("table", string(table)).Str("id", rec.ID).Msg("record indexing failed; will retry next run")
				metrics.RecordsFailedTotal.WithLabelValues(string(table)).Inc()
				res.RecordsFailed++
				continue
			}
			metrics.ChunksUploadedTotal.WithLabelValues(string(table)).Add(float64(n))
			res.ChunksUploaded += n
			res.RecordsIndexed++
			done = append(done, rec.ID)
		}
		if len(done) == 0 {
			continue
		}
		if err := b.records.MarkIndexed(ctx, table, done); err != nil {
			b.log.Error().Err(err).Str("table", string(table)).Int("records", len(done)).Msg("mark indexed failed; records will be re-embedded")
			markErrs = append(markErrs, fmt.Errorf("mark indexed %s: %w", table, err))
		}
	}

	if err := errors.Join(markErrs...); err != nil {
		metrics.IngestRunsTotal.WithLabelValues("error").Inc()
		return res, err
	}
	metrics.IngestRunsTotal.WithLabelValues("ok").Inc()
	b.log.Info().
		Int("chunks_uploaded", res.ChunksUploaded).
		Int("records_indexed", res.RecordsIndexed).
		Int("records_failed", res.RecordsFailed).
		Int("records_skipped", res.RecordsSkipped).
		Msg("ingest run complete")
	return res, nil
}

// indexRecord embeds every chunk of rec and upserts them in one batch.
func (b *Batcher) indexRecord(ctx context.Context, rec model.ContentRecord) (int, error) {
	parts, err := b.splitter.Split(rec.Text)
	if err != nil {
		return 0, fmt.Errorf("split: %w", err)
	}
	if len(parts) == 0 {
		return 0, nil
	}
	chunks := make([]model.IndexedChunk, 0, len(parts))
	for n, text := range parts {
		vec, err := b.embedder.Embed(ctx, text)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d: %w", n, err)
		}
		chunks = append(chunks, model.IndexedChunk{
			ChunkKey: model.ChunkKey(rec.Table, rec.ID, n, len(parts)),
			Table:    rec.Table,
			SourceID: rec.ID,
			AuthorID: rec.AuthorID,
			Text:     text,
			Vector:   vec,
		})
	}
	if err := b.index.Upsert(ctx, chunks); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	return len(chunks), nil
}

// Run blocks until ctx is cancelled, invoking RunOnce every interval and
// backing off exponentially after failed runs. In once mode it returns
// after the first run.
func (b *Batcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.log.Info().Dur("interval", b.interval).Bool("once", b.once).Msg("ingest worker started")

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.backoffMin
	exp.Multiplier = 2
	exp.MaxInterval = b.backoffMax
	exp.MaxElapsedTime = 0
	exp.Reset()

	for {
		_, err := b.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				b.log.Info().Err(err).Msg("context cancelled, shutting down ingest worker")
				return err
			}
			if b.once {
				return err
			}
			wait := exp.NextBackOff()
			b.log.Error().Err(err).Dur("sleep", wait).Msg("run error, backing off")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				b.log.Info().Msg("ingest worker shutting down")
				return ctx.Err()
			}
			continue
		}
		exp.Reset()

		if b.once {
			b.log.Info().Msg("once mode complete; exiting")
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			b.log.Info().Msg("ingest worker shutting down")
			return ctx.Err()
		}
	}
}
