package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// Role of a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one entry of a chat completion request.
type Message struct {
	Role    Role
	Content string
}

// Completer produces a single chat completion.
type Completer interface {
	Complete(ctx context.Context, msgs []Message, temperature float32) (string, error)
}

// ErrEmptyCompletion is returned when the model produced no choices.
var ErrEmptyCompletion = errors.New("model returned no choices")

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAIClient builds a client for model. A non-empty baseURL points
// the client at a compatible gateway instead of api.openai.com.
func NewOpenAIClient(apiKey, baseURL, model string, log zerolog.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    log.With().Str("component", "llm").Str("model", model).Logger(),
	}
}

func (o *OpenAIClient) Complete(ctx context.Context, msgs []Message, temperature float32) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(msgs)),
		Temperature: temperature,
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	o.log.Debug().Str("finish_reason", string(resp.Choices[0].FinishReason)).Int("total_tokens", resp.Usage.TotalTokens).Msg("completion received")
	return resp.Choices[0].Message.Content, nil
}
