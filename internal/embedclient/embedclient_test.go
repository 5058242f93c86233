package embedclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"norma-pipeline/internal/config"
)

func embeddingServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		n := 1
		if inputs, ok := body["input"].([]any); ok {
			n = len(inputs)
		}
		data := make([]map[string]any, n)
		for i := range data {
			vec := make([]float64, dims)
			data[i] = map[string]any{"embedding": vec}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestLocalBackendEmbedsInputShape(t *testing.T) {
	srv := embeddingServer(t, 4)
	defer srv.Close()

	e := New(config.EmbeddingConfig{
		Primary: config.EmbeddingBackendConfig{Provider: "local", BaseURL: srv.URL, Model: "m"},
	})
	out, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Len(t, out[0], 4)
}

func TestFallbackUsesSecondaryOnPrimaryFailure(t *testing.T) {
	bad := New(config.EmbeddingConfig{
		Primary: config.EmbeddingBackendConfig{Provider: "local", BaseURL: "http://127.0.0.1:1", Model: "m"},
	})
	srv := embeddingServer(t, 3)
	defer srv.Close()
	good := &remoteBackend{baseURL: srv.URL, model: "m"}

	fb := &fallback{primary: bad, secondary: good}
	out, err := fb.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Len(t, out[0], 3)
}

func TestProbeDimension(t *testing.T) {
	srv := embeddingServer(t, 8)
	defer srv.Close()
	e := &remoteBackend{baseURL: srv.URL, model: "m"}
	dim, err := ProbeDimension(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 8, dim)
}
