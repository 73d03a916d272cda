package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"sounds good"}}],"usage":{"total_tokens":12}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key", srv.URL, "gpt-4o-mini", zerolog.Nop())
	out, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be Ada"},
		{Role: RoleUser, Content: "hi"},
	}, 0.3)
	require.NoError(t, err)
	assert.Equal(t, "sounds good", out)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.InDelta(t, 0.3, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hi", got.Messages[1].Content)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("k", srv.URL, "m", zerolog.Nop())
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, 0)
	assert.True(t, errors.Is(err, ErrEmptyCompletion))
}

func TestOpenAIClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("k", srv.URL, "m", zerolog.Nop())
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, 0)
	assert.ErrorContains(t, err, "chat completion")
}
