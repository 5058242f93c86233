package sourceclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"norma-pipeline/internal/config"
)

func newClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return New(config.HTTPConfig{
		SourceAPIBaseURL: srv.URL + "/",
		RetryCount:       3,
		RetryBackoffMS:   1,
		TimeoutMS:        2000,
	})
}

func TestDiscoverParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"status":{"code":"200"},"data":[{"identificador":"BOE-A-1","titulo":"t"}]}`))
	}))
	defer srv.Close()

	c := newClient(t, srv)
	items, err := c.Discover(context.Background(), DiscoverParams{Limit: 5})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "BOE-A-1", items[0].IDNorma)
}

func TestGetWithRetryRetriesOn500ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"status":{"code":"200"},"data":[]}`))
	}))
	defer srv.Close()

	c := newClient(t, srv)
	_, err := c.Discover(context.Background(), DiscoverParams{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestBloqueXMLReturnsErrNotFoundOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newClient(t, srv)
	_, _, err := c.BloqueXML(context.Background(), "BOE-A-1", "a1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetWithRetryDoesNotRetryOn400(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newClient(t, srv)
	_, err := c.Discover(context.Background(), DiscoverParams{})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
