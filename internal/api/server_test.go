package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/meshcache/internal/cache"
)

// nopClient satisfies cache.NodeClient for a single-node deployment.
type nopClient struct{}

func (nopClient) Apply(ctx context.Context, nodeID string, entry *cache.Entry) error { return nil }
func (nopClient) Delete(ctx context.Context, nodeID, key string) error               { return nil }
func (nopClient) Clear(ctx context.Context, nodeID string) error                     { return nil }
func (nopClient) Fingerprint(ctx context.Context, nodeID, key string) (string, error) {
	return "", nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	engine, err := cache.New(cache.DefaultConfig(), nopClient{}, nil, zap.NewNop())
	require.NoError(t, err)
	return NewServer(8080, engine, zap.NewNop())
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_CacheCRUD(t *testing.T) {
	s := newTestServer(t)

	t.Run("put then get", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPut, "/v1/cache/user:1", []byte("Alice"))
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(t, s, http.MethodGet, "/v1/cache/user:1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Alice", rec.Body.String())
	})

	t.Run("get missing key", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/v1/cache/ghost", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("put with ttl query", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodPut, "/v1/cache/brief?ttl=1s", []byte("v"))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(t, s, http.MethodPut, "/v1/cache/brief?ttl=bogus", []byte("v"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodDelete, "/v1/cache/user:1", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(t, s, http.MethodDelete, "/v1/cache/user:1", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("clear reports removed count", func(t *testing.T) {
		doRequest(t, s, http.MethodPut, "/v1/cache/a", []byte("1"))
		doRequest(t, s, http.MethodPut, "/v1/cache/b", []byte("2"))

		rec := doRequest(t, s, http.MethodPost, "/v1/clear", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var out map[string]int
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.GreaterOrEqual(t, out["removed"], 2)
	})
}

func TestServer_Nodes(t *testing.T) {
	s := newTestServer(t)

	t.Run("add and list", func(t *testing.T) {
		body := []byte(`{"id":"n1","address":"10.0.0.1:7000"}`)
		rec := doRequest(t, s, http.MethodPost, "/v1/nodes", body)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = doRequest(t, s, http.MethodGet, "/v1/nodes", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"n1"`)
	})

	t.Run("duplicate conflicts", func(t *testing.T) {
		body := []byte(`{"id":"n1","address":"10.0.0.1:7000"}`)
		rec := doRequest(t, s, http.MethodPost, "/v1/nodes", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid node rejected", func(t *testing.T) {
		body := []byte(`{"id":"","address":"nowhere"}`)
		rec := doRequest(t, s, http.MethodPost, "/v1/nodes", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("remove", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodDelete, "/v1/nodes/n1", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(t, s, http.MethodDelete, "/v1/nodes/n1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_StatsAndMetrics(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPut, "/v1/cache/k", []byte("v"))
	doRequest(t, s, http.MethodGet, "/v1/cache/k", nil)

	t.Run("stats json", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/v1/stats", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var stats cache.Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, int64(1), stats.Sets)
		assert.Equal(t, int64(1), stats.Hits)
	})

	t.Run("prometheus exposition", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/metrics", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "meshcache_hits_total"))
		assert.True(t, strings.Contains(rec.Body.String(), "meshcache_entries"))
	})

	t.Run("healthz", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("request id header", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})
}

func TestServer_CapacityError(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.MaxMemoryMB = 1
	engine, err := cache.New(cfg, nopClient{}, nil, zap.NewNop())
	require.NoError(t, err)
	s := NewServer(8080, engine, zap.NewNop())

	rec := doRequest(t, s, http.MethodPut, "/v1/cache/huge", make([]byte, 2<<20))
	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)
}

func TestServer_ValueTooLarge(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPut, "/v1/cache/oversized", make([]byte, maxValueBytes+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/v1/cache/oversized", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "truncated value must not be stored")
}
