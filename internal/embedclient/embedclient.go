// Package embedclient embeds chunk text via a local or OpenAI-compatible
// HTTP backend, with an optional fallback decorator (spec §4.8).
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"norma-pipeline/internal/config"
)

// Embedder embeds a batch of text into vectors, one per input in order.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// New builds the primary embedder from config, wrapping it in a fallback
// decorator if a fallback backend is configured.
func New(cfg config.EmbeddingConfig) Embedder {
	primary := newBackend(cfg.Primary)
	if cfg.Fallback == nil {
		return primary
	}
	return &fallback{primary: primary, secondary: newBackend(*cfg.Fallback)}
}

func newBackend(b config.EmbeddingBackendConfig) Embedder {
	url := b.BaseURL + b.Path
	switch b.Provider {
	case "local":
		return &localBackend{baseURL: url, model: b.Model, timeout: b.Timeout()}
	default:
		return &remoteBackend{baseURL: url, apiKey: b.APIKey, apiHeader: b.APIHeader, model: b.Model, timeout: b.Timeout()}
	}
}

// fallback tries the primary backend, falling back to the secondary on any
// error.
type fallback struct {
	primary   Embedder
	secondary Embedder
}

func (f *fallback) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out, err := f.primary.Embed(ctx, inputs)
	if err == nil {
		return out, nil
	}
	return f.secondary.Embed(ctx, inputs)
}

// localBackend posts to a local embedding HTTP endpoint, tolerating both
// `{model, input}` and `{model, prompt}` request shapes.
type localBackend struct {
	baseURL string
	model   string
	timeout time.Duration
}

func (b *localBackend) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	out, err := b.tryShape(ctx, map[string]any{"model": b.model, "input": inputs}, len(inputs))
	if err == nil {
		return out, nil
	}
	if len(inputs) == 1 {
		return b.tryShape(ctx, map[string]any{"model": b.model, "prompt": inputs[0]}, 1)
	}
	return nil, err
}

func (b *localBackend) tryShape(ctx context.Context, body map[string]any, expect int) ([][]float32, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(b.timeout))
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, b.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embedclient: local backend status %s: %s", resp.Status, string(respBody))
	}
	vectors, err := parseEmbeddingResponse(respBody, expect)
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// remoteBackend posts to an OpenAI-compatible /embeddings endpoint.
type remoteBackend struct {
	baseURL   string
	apiKey    string
	apiHeader string
	model     string
	timeout   time.Duration
}

func (b *remoteBackend) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(map[string]any{"model": b.model, "input": inputs})
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(b.timeout))
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, b.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		header := b.apiHeader
		if header == "" || header == "Authorization" {
			req.Header.Set("Authorization", "Bearer "+b.apiKey)
		} else {
			req.Header.Set(header, b.apiKey)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embedclient: remote backend status %s: %s", resp.Status, string(respBody))
	}
	return parseEmbeddingResponse(respBody, len(inputs))
}

type embeddingResponseWire struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func parseEmbeddingResponse(body []byte, expect int) ([][]float32, error) {
	var wire embeddingResponseWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("embedclient: parse response: %w", err)
	}
	if len(wire.Data) != expect {
		return nil, fmt.Errorf("embedclient: expected %d embeddings, got %d", expect, len(wire.Data))
	}
	out := make([][]float32, len(wire.Data))
	for i := range wire.Data {
		out[i] = wire.Data[i].Embedding
	}
	return out, nil
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ProbeDimension embeds a short sample string to discover the embedding
// dimensionality, used by the indexer to size a freshly created collection.
func ProbeDimension(ctx context.Context, e Embedder) (int, error) {
	out, err := e.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("embedclient: probe returned no vectors")
	}
	return len(out[0]), nil
}
