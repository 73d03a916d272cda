package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelian/mycelian-persona/internal/config"
	"github.com/mycelian/mycelian-persona/internal/llm"
	"github.com/mycelian/mycelian-persona/internal/model"
	"github.com/mycelian/mycelian-persona/internal/pipeline"
	"github.com/mycelian/mycelian-persona/internal/searchindex"
)

type cannedCompleter struct{}

func (cannedCompleter) Complete(context.Context, []llm.Message, float32) (string, error) {
	return "Ada: sure", nil
}

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 1}, nil }

func TestBuild_WiresTestingConfig(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewForTesting()
	c, err := Build(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, isMemory := c.Index.(*searchindex.MemoryIndex)
	assert.True(t, isMemory)
	assert.Len(t, c.HealthCheckers(), 3)
	assert.NotNil(t, c.Completer())
}

func TestComponents_IngestThenRespond(t *testing.T) {
	ctx := context.Background()
	c, err := Build(ctx, config.NewForTesting(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	c.Embedder = constEmbedder{}

	require.NoError(t, c.Store.Profiles().Upsert(ctx, model.Profile{ID: "bot", DisplayName: "Ada", AutoRespond: true}))
	_, err = c.Store.Records().Insert(ctx, &model.ContentRecord{ID: "d1", Table: model.TableDirectMessage, ContainerID: "conv", AuthorID: "bot", Text: "morning!"})
	require.NoError(t, err)

	res, err := c.Batcher().RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksUploaded)

	out, err := c.Pipeline(cannedCompleter{}).HandleDirectMessage(ctx, pipeline.DirectTrigger{
		ConversationID: "conv", SenderID: "u1", RecipientID: "bot", Text: "hey",
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusOK, out.Status)
	require.Len(t, out.Replies, 1)
	assert.Equal(t, "sure", out.Replies[0].Text)

	evt := <-c.Bus.Subscribe()
	assert.Equal(t, out.Replies[0].ID, evt.ReplyID)
}
