package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelian/mycelian-persona/internal/chunker"
	"github.com/mycelian/mycelian-persona/internal/metrics"
	"github.com/mycelian/mycelian-persona/internal/model"
	"github.com/mycelian/mycelian-persona/internal/searchindex"
	"github.com/mycelian/mycelian-persona/internal/store"
	"github.com/mycelian/mycelian-persona/internal/store/storetest"
)

type mockEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.fail != "" && strings.Contains(text, m.fail) {
		return nil, errors.New("embedding backend unavailable")
	}
	return []float32{float32(len(text)), 1}, nil
}

type flakyIndex struct {
	*searchindex.MemoryIndex
	failSource string
}

func (f *flakyIndex) Upsert(ctx context.Context, chunks []model.IndexedChunk) error {
	for _, c := range chunks {
		if c.SourceID == f.failSource {
			return errors.New("index rejected batch")
		}
	}
	return f.MemoryIndex.Upsert(ctx, chunks)
}

type markFailingRecords struct {
	store.Records
}

func (markFailingRecords) MarkIndexed(context.Context, model.SourceTable, []string) error {
	return errors.New("db locked")
}

func unindexed(t *testing.T, s store.Store, table model.SourceTable) []string {
	t.Helper()
	recs, err := s.Records().ListUnindexed(context.Background(), table, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestRunOnce_IndexesAllTablesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	storetest.Insert(t, s, model.TableChannelMessage, "m1", "c1", "u1", "deploy is green", 0)
	storetest.Insert(t, s, model.TableDirectMessage, "d1", "conv1", "u2", "lunch?", 1)
	storetest.Insert(t, s, model.TableThreadReply, "r1", "m1", "u3", "nice", 2)

	idx := searchindex.NewMemoryIndex()
	emb := &mockEmbedder{}
	b := New(Config{Once: true}, s.Records(), chunker.New(1000, 200), emb, idx, zerolog.Nop())

	res, err := b.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{ChunksUploaded: 3, RecordsIndexed: 3}, res)
	assert.ElementsMatch(t, []string{"channel_message-m1", "direct_message-d1", "thread_reply-r1"}, idx.Keys())
	for _, table := range model.AllTables {
		assert.Empty(t, unindexed(t, s, table))
	}

	res, err = b.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ChunksUploaded)
	assert.Equal(t, 3, emb.calls)
}

func TestRunOnce_MultiChunkRecordUsesSuffixedKeys(t *testing.T) {
	s := storetest.New(t)
	long := strings.Repeat("alpha beta gamma delta ", 20)
	storetest.Insert(t, s, model.TableChannelMessage, "m1", "c1", "u1", long, 0)

	idx := searchindex.NewMemoryIndex()
	b := New(Config{}, s.Records(), chunker.New(100, 10), &mockEmbedder{}, idx, zerolog.Nop())

	res, err := b.RunOnce(context.Background())
	require.NoError(t, err)
	require.Greater(t, res.ChunksUploaded, 1)
	assert.Equal(t, 1, res.RecordsIndexed)
	for i, key := range idx.Keys() {
		assert.Equal(t, model.ChunkKey(model.TableChannelMessage, "m1", i, res.ChunksUploaded), key)
	}
}

func TestRunOnce_BlankTextMarkedWithoutEmbedding(t *testing.T) {
	s := storetest.New(t)
	storetest.Insert(t, s, model.TableChannelMessage, "m1", "c1", "u1", "   ", 0)

	emb := &mockEmbedder{}
	idx := searchindex.NewMemoryIndex()
	b := New(Config{}, s.Records(), chunker.New(1000, 200), emb, idx, zerolog.Nop())

	res, err := b.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{RecordsSkipped: 1}, res)
	assert.Zero(t, emb.calls)
	assert.Zero(t, idx.Len())
	assert.Empty(t, unindexed(t, s, model.TableChannelMessage))
}

func TestRunOnce_RecordFailuresAreIsolated(t *testing.T) {
	s := storetest.New(t)
	storetest.Insert(t, s, model.TableChannelMessage, "m1", "c1", "u1", "first fine", 0)
	storetest.Insert(t, s, model.TableChannelMessage, "m2", "c1", "u1", "poison embed", 1)
	storetest.Insert(t, s, model.TableChannelMessage, "m3", "c1", "u1", "third fine", 2)
	storetest.Insert(t, s, model.TableDirectMessage, "d1", "conv1", "u2", "rejected by index", 3)

	idx := &flakyIndex{MemoryIndex: searchindex.NewMemoryIndex(), failSource: "d1"}
	b := New(Config{}, s.Records(), chunker.New(1000, 200), &mockEmbedder{fail: "poison"}, idx, zerolog.Nop())

	res, err := b.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsIndexed)
	assert.Equal(t, 2, res.RecordsFailed)
	assert.Equal(t, []string{"m2"}, unindexed(t, s, model.TableChannelMessage))
	assert.Equal(t, []string{"d1"}, unindexed(t, s, model.TableDirectMessage))
}

func TestRunOnce_MarkFailureReturnsErrorWithResult(t *testing.T) {
	s := storetest.New(t)
	storetest.Insert(t, s, model.TableChannelMessage, "m1", "c1", "u1", "hello", 0)

	idx := searchindex.NewMemoryIndex()
	b := New(Config{}, markFailingRecords{s.Records()}, chunker.New(1000, 200), &mockEmbedder{}, idx, zerolog.Nop())

	res, err := b.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark indexed channel_message")
	assert.Equal(t, 1, res.ChunksUploaded)
	assert.Equal(t, []string{"m1"}, unindexed(t, s, model.TableChannelMessage))

	// Re-upload lands on the same key.
	_, _ = b.RunOnce(context.Background())
	assert.Equal(t, 1, idx.Len())
}

func TestRun_OnceModeReturnsAfterFirstRun(t *testing.T) {
	s := storetest.New(t)
	storetest.Insert(t, s, model.TableChannelMessage, "m1", "c1", "u1", "hello", 0)
	idx := searchindex.NewMemoryIndex()
	b := New(Config{Interval: time.Second, Once: true}, s.Records(), chunker.New(1000, 200), &mockEmbedder{}, idx, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, b.Run(ctx))
	assert.Equal(t, 1, idx.Len())
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := storetest.New(t)
	b := New(Config{Interval: 10 * time.Millisecond}, s.Records(), chunker.New(1000, 200), &mockEmbedder{}, searchindex.NewMemoryIndex(), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRunOnce_CountsChunksAndFailures(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	storetest.Insert(t, s, model.TableThreadReply, "ok", "p1", "u1", "works", 0)
	storetest.Insert(t, s, model.TableThreadReply, "bad", "p1", "u1", "boom", 1)

	uploaded := metrics.ChunksUploadedTotal.WithLabelValues(string(model.TableThreadReply))
	failed := metrics.RecordsFailedTotal.WithLabelValues(string(model.TableThreadReply))
	uploadedBefore := testutil.ToFloat64(uploaded)
	failedBefore := testutil.ToFloat64(failed)

	b := New(Config{Once: true}, s.Records(), chunker.New(1000, 200), &mockEmbedder{fail: "boom"}, searchindex.NewMemoryIndex(), zerolog.Nop())
	_, err := b.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(uploaded)-uploadedBefore)
	assert.Equal(t, 1.0, testutil.ToFloat64(failed)-failedBefore)
}
