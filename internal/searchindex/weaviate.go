package searchindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/mycelian/mycelian-persona/internal/model"
)

// DefaultClass is the Weaviate class holding content chunks.
const DefaultClass = "ContentChunk"

// upsertBatchSize bounds objects per batch request.
const upsertBatchSize = 50

// weaviateIndex implements Index using the Weaviate Go client.
type weaviateIndex struct {
	client    *weaviate.Client
	className string
	log       zerolog.Logger
}

// NewWeaviateIndex constructs an Index backed by Weaviate at baseURL.
// baseURL should be host:port (without scheme), e.g., "localhost:8081".
func NewWeaviateIndex(baseURL, className string, log zerolog.Logger) (Index, error) {
	if className == "" {
		className = DefaultClass
	}
	host := strings.TrimPrefix(strings.TrimPrefix(baseURL, "http://"), "https://")
	cl, err := weaviate.NewClient(weaviate.Config{Scheme: "http", Host: host})
	if err != nil {
		return nil, err
	}
	return &weaviateIndex{
		client:    cl,
		className: className,
		log:       log.With().Str("component", "weaviate").Logger(),
	}, nil
}

// Bootstrap ensures the chunk class exists. Safe to call repeatedly.
func Bootstrap(ctx context.Context, idx Index) error {
	w, ok := idx.(*weaviateIndex)
	if !ok {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	ex, err := w.client.Schema().ClassGetter().WithClassName(w.className).Do(cctx)
	if err == nil && ex != nil {
		return nil
	}
	cls := &models.Class{
		Class:      w.className,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "chunkKey", DataType: []string{"text"}},
			{Name: "sourceTable", DataType: []string{"text"}},
			{Name: "sourceId", DataType: []string{"text"}},
			{Name: "authorId", DataType: []string{"text"}},
			{Name: "text", DataType: []string{"text"}},
		},
	}
	if err := w.client.Schema().ClassCreator().WithClass(cls).Do(cctx); err != nil {
		return fmt.Errorf("create class %s: %w", w.className, err)
	}
	return nil
}

// ObjectID derives the deterministic Weaviate object id for a chunk key.
func ObjectID(chunkKey string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkKey)).String())
}

func (w *weaviateIndex) Upsert(ctx context.Context, chunks []model.IndexedChunk) error {
	for offset := 0; offset < len(chunks); offset += upsertBatchSize {
		end := offset + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		objs := make([]*models.Object, 0, end-offset)
		for _, c := range chunks[offset:end] {
			objs = append(objs, &models.Object{
				Class: w.className,
				ID:    ObjectID(c.ChunkKey),
				Properties: map[string]interface{}{
					"chunkKey":    c.ChunkKey,
					"sourceTable": string(c.Table),
					"sourceId":    c.SourceID,
					"authorId":    c.AuthorID,
					"text":        c.Text,
				},
				Vector: c.Vector,
			})
		}

		resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
		if err != nil {
			w.log.Error().Err(err).Int("batch_size", len(objs)).Str("first_chunk", chunks[offset].ChunkKey).Msg("batch upload failed")
			return err
		}
		for _, r := range resp {
			if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
				return fmt.Errorf("weaviate batch object %s: %s", r.ID, r.Result.Errors.Error[0].Message)
			}
		}
		w.log.Debug().Int("batch_size", len(objs)).Msg("batch uploaded")
	}
	return nil
}

func (w *weaviateIndex) Query(ctx context.Context, vec []float32, topK int) ([]model.RetrievedMatch, error) {
	nv := w.client.GraphQL().NearVectorArgBuilder().WithVector(vec)
	resp, err := w.client.GraphQL().Get().
		WithClassName(w.className).
		WithNearVector(nv).
		WithLimit(topK).
		WithFields(
			gql.Field{Name: "sourceTable"},
			gql.Field{Name: "sourceId"},
			gql.Field{Name: "authorId"},
			gql.Field{Name: "text"},
			gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "distance"}}},
		).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(resp.Errors))
	}
	return parseMatches(resp.Data, w.className, w.log), nil
}

// HealthPing implements HealthPinger via the Weaviate liveness endpoint.
func (w *weaviateIndex) HealthPing(ctx context.Context) error {
	live, err := w.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return err
	}
	if !live {
		return fmt.Errorf("weaviate not live")
	}
	return nil
}

// parseMatches converts a GraphQL Get payload into matches. Rows without a
// valid source table or id are skipped.
func parseMatches(data map[string]models.JSONObject, className string, log zerolog.Logger) []model.RetrievedMatch {
	safeString := func(v interface{}) string {
		s, _ := v.(string)
		return s
	}

	getData, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := getData[className].([]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}

	out := make([]model.RetrievedMatch, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		table := model.SourceTable(safeString(m["sourceTable"]))
		id := safeString(m["sourceId"])
		if !table.Valid() || id == "" {
			log.Warn().Interface("row", m).Msg("skipping chunk with invalid metadata")
			continue
		}
		var score float64
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			switch v := add["distance"].(type) {
			case float64:
				score = 1 - v
			case string:
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					score = 1 - f
				}
			}
		}
		out = append(out, model.RetrievedMatch{
			Table:    table,
			SourceID: id,
			AuthorID: safeString(m["authorId"]),
			Text:     safeString(m["text"]),
			Score:    score,
		})
	}
	return out
}

func formatGraphQLErrors(errs interface{}) string {
	if b, err := json.Marshal(errs); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", errs)
}
