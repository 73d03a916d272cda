package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Provider calls the Ollama embeddings API.
type Provider struct {
	client *resty.Client
	model  string
}

// New creates a Provider for baseURL; an empty baseURL falls back to
// http://localhost:11434.
func New(baseURL, model string) *Provider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(2 * time.Minute)

	return &Provider{client: c, model: model}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error"`
}

// Embed generates a dense vector for the given text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text")
	}

	reqBody := embedRequest{Model: p.model, Prompt: text}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(&reqBody).
		Post("/api/embeddings")
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		// Ollama answers non-200 when the model is missing; pull once and retry.
		p.pullModel(ctx)
		resp2, err2 := p.client.R().SetContext(ctx).SetBody(&reqBody).Post("/api/embeddings")
		if err2 != nil {
			return nil, fmt.Errorf("ollama status %d: %s (after pull attempt; err=%v)", resp.StatusCode(), resp.String(), err2)
		}
		if resp2.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("ollama status %d: %s (after pull attempt)", resp2.StatusCode(), resp2.String())
		}
		resp = resp2
	}

	var er embedResponse
	if err := json.Unmarshal(resp.Body(), &er); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if er.Error != "" {
		return nil, fmt.Errorf("ollama: %s", er.Error)
	}
	if len(er.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding")
	}

	vec := make([]float32, len(er.Embedding))
	for i, v := range er.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// pullModel is best-effort and silent on failure.
func (p *Provider) pullModel(ctx context.Context) {
	body := map[string]string{"name": p.model}
	_, _ = p.client.R().SetContext(ctx).SetBody(body).Post("/api/pull")
}
