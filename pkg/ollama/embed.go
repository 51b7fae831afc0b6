// Package ollama provides an embedding client for Ollama's HTTP API.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fuelme/vendorprobe/engine/domain"
)

const provider = "ollama"

// EmbedClient embeds text with a fixed model via POST /api/embeddings.
type EmbedClient struct {
	model  string
	client *resty.Client
}

// NewEmbedClient creates an Ollama embedding client. A nil httpClient gets an
// otel-instrumented default.
func NewEmbedClient(baseURL, model string, httpClient *http.Client) *EmbedClient {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	c := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json")
	return &EmbedClient{model: model, client: c}
}

// Model returns the model identifier sent with every request.
func (c *EmbedClient) Model() string { return c.model }

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding for text exactly as Ollama reports it.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("ollama embed: %w", domain.ErrEmptyText)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(embedReq{Model: c.model, Prompt: text}).
		Post("/api/embeddings")
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, domain.NewProviderError(provider, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	var out embedResp
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	return out.Embedding, nil
}

// HealthPing checks /api/tags for the configured model.
func (c *EmbedClient) HealthPing(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return fmt.Errorf("ollama tags: %w", err)
	}
	if !resp.IsSuccess() {
		return domain.NewProviderError(provider, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	var data struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return fmt.Errorf("ollama tags decode: %w", err)
	}
	want := canonicalModelName(c.model)
	for _, m := range data.Models {
		if canonicalModelName(m.Name) == want {
			return nil
		}
	}
	return fmt.Errorf("ollama: model %s not pulled", c.model)
}

// canonicalModelName appends the implicit ":latest" tag to untagged names.
// Other tags are significant.
func canonicalModelName(name string) string {
	if strings.IndexByte(name, ':') == -1 {
		return name + ":latest"
	}
	return name
}
