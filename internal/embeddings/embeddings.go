package embeddings

import (
	"context"
	"fmt"

	"github.com/mycelian/mycelian-persona/internal/embeddings/ollama"
	"github.com/mycelian/mycelian-persona/internal/embeddings/openai"
)

// Provider produces vector representations for text. Ingestion and
// retrieval must use the same provider and model.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options carries provider connection settings.
type Options struct {
	OllamaURL     string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// NewProvider returns a Provider for the given provider/model.
func NewProvider(provider, model string, opts Options) (Provider, error) {
	switch provider {
	case "ollama":
		return ollama.New(opts.OllamaURL, model), nil
	case "openai":
		if opts.OpenAIAPIKey == "" && opts.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("openai provider requires an API key or base URL")
		}
		return openai.New(opts.OpenAIAPIKey, opts.OpenAIBaseURL, model), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
