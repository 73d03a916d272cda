package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelian/mycelian-persona/internal/api/respond"
	"github.com/mycelian/mycelian-persona/internal/ingest"
	"github.com/mycelian/mycelian-persona/internal/metrics"
	"github.com/mycelian/mycelian-persona/internal/model"
	"github.com/mycelian/mycelian-persona/internal/pipeline"
)

type fakePipeline struct {
	channel pipeline.ChannelTrigger
	dm      pipeline.DirectTrigger
	result  pipeline.Result
	err     error
	panics  bool
}

func (f *fakePipeline) HandleChannelMessage(_ context.Context, t pipeline.ChannelTrigger) (pipeline.Result, error) {
	f.channel = t
	return f.result, f.err
}

func (f *fakePipeline) HandleThreadReply(_ context.Context, t pipeline.ThreadTrigger) (pipeline.Result, error) {
	if f.panics {
		panic("nil map write")
	}
	return f.result, f.err
}

func (f *fakePipeline) HandleDirectMessage(_ context.Context, t pipeline.DirectTrigger) (pipeline.Result, error) {
	f.dm = t
	return f.result, f.err
}

type fakeIngester struct {
	res     ingest.Result
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeIngester) RunOnce(context.Context) (ingest.Result, error) {
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	return f.res, f.err
}

type staticHealth bool

func (s staticHealth) IsHealthy() bool { return bool(s) }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChannelTrigger_OK(t *testing.T) {
	p := &fakePipeline{result: pipeline.Result{
		Status:   pipeline.StatusOK,
		Replies:  []model.GeneratedReply{{ID: "r1", Text: "hey"}},
		Failures: []pipeline.Failure{},
	}}
	router := NewRouter(p, &fakeIngester{}, staticHealth(true), zerolog.Nop())

	rec := do(t, router, http.MethodPost, "/v1/triggers/channel-messages",
		`{"channelId":"c1","messageId":"m1","senderId":"u1","text":"hi","mentionedIds":["bot"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"bot"}, p.channel.MentionedIDs)

	var body pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, pipeline.StatusOK, body.Status)
	require.Len(t, body.Replies, 1)
	assert.Equal(t, "hey", body.Replies[0].Text)
}

func TestDirectTrigger_NoDocumentsStatus(t *testing.T) {
	p := &fakePipeline{result: pipeline.Result{Status: pipeline.StatusNoDocuments}}
	router := NewRouter(p, &fakeIngester{}, staticHealth(true), zerolog.Nop())

	rec := do(t, router, http.MethodPost, "/v1/triggers/direct-messages",
		`{"conversationId":"conv","senderId":"u1","recipientId":"bot","text":"yo"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"no_documents"`)
	assert.Equal(t, "bot", p.dm.RecipientID)
}

func TestTrigger_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		body string
		code int
	}{
		{"malformed", nil, `{"channelId":`, http.StatusBadRequest},
		{"validation", fmt.Errorf("%w: missing text", model.ErrValidation), `{}`, http.StatusBadRequest},
		{"internal", errors.New("weaviate: connection refused"), `{}`, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := NewRouter(&fakePipeline{err: tc.err}, &fakeIngester{}, staticHealth(true), zerolog.Nop())
			rec := do(t, router, http.MethodPost, "/v1/triggers/channel-messages", tc.body)
			assert.Equal(t, tc.code, rec.Code)

			var env respond.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, tc.code, env.Code)
			assert.NotContains(t, env.Message, "weaviate")
		})
	}
}

func TestTrigger_PanicRecovered(t *testing.T) {
	panics := metrics.PanicsRecoveredTotal.WithLabelValues("/v1/triggers/thread-replies")
	before := testutil.ToFloat64(panics)

	router := NewRouter(&fakePipeline{panics: true}, &fakeIngester{}, staticHealth(true), zerolog.Nop())
	rec := do(t, router, http.MethodPost, "/v1/triggers/thread-replies", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","code":500}`, rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(panics)-before)
}

func TestIngest(t *testing.T) {
	router := NewRouter(&fakePipeline{}, &fakeIngester{res: ingest.Result{ChunksUploaded: 4, RecordsIndexed: 2}}, staticHealth(true), zerolog.Nop())
	rec := do(t, router, http.MethodPost, "/v1/ingest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"chunksUploaded":4,"recordsIndexed":2,"recordsFailed":0,"recordsSkipped":0}`, rec.Body.String())

	router = NewRouter(&fakePipeline{}, &fakeIngester{err: errors.New("list failed")}, staticHealth(true), zerolog.Nop())
	rec = do(t, router, http.MethodPost, "/v1/ingest", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIngest_ConcurrentRunRejected(t *testing.T) {
	ing := &fakeIngester{started: make(chan struct{}), release: make(chan struct{})}
	router := NewRouter(&fakePipeline{}, ing, staticHealth(true), zerolog.Nop())

	done := make(chan int)
	go func() {
		done <- do(t, router, http.MethodPost, "/v1/ingest", "").Code
	}()
	<-ing.started

	rec := do(t, router, http.MethodPost, "/v1/ingest", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(ing.release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestHealthAndMetrics(t *testing.T) {
	up := NewRouter(&fakePipeline{}, &fakeIngester{}, staticHealth(true), zerolog.Nop())
	rec := do(t, up, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	down := NewRouter(&fakePipeline{}, &fakeIngester{}, staticHealth(false), zerolog.Nop())
	rec = do(t, down, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, up, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestUnknownMethod(t *testing.T) {
	router := NewRouter(&fakePipeline{}, &fakeIngester{}, staticHealth(true), zerolog.Nop())
	rec := do(t, router, http.MethodGet, "/v1/triggers/channel-messages", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
