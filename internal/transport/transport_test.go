package transport

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/meshcache/internal/cache"
)

func newPeer(t *testing.T) (*cache.DistributedCache, *httptest.Server) {
	t.Helper()
	cfg := cache.DefaultConfig()
	engine, err := cache.New(cfg, NewClient(time.Second, zap.NewNop()), nil, zap.NewNop())
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(engine, zap.NewNop()))
	t.Cleanup(srv.Close)
	return engine, srv
}

func TestClientServer_Apply(t *testing.T) {
	ctx := context.Background()
	peer, srv := newPeer(t)

	client := NewClient(time.Second, zap.NewNop())
	client.Register("peer-1", srv.URL)

	entry, err := cache.NewEntry("user:1", []byte("Alice"), time.Minute, 1)
	require.NoError(t, err)

	require.NoError(t, client.Apply(ctx, "peer-1", entry))

	// The peer stores the entry verbatim, fingerprint included.
	fp, ok := peer.LocalFingerprint("user:1")
	require.True(t, ok)
	assert.Equal(t, entry.Fingerprint, fp)

	remote, err := client.Fingerprint(ctx, "peer-1", "user:1")
	require.NoError(t, err)
	assert.Equal(t, entry.Fingerprint, remote)
}

func TestClientServer_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	peer, srv := newPeer(t)

	client := NewClient(time.Second, zap.NewNop())
	client.Register("peer-1", srv.URL)

	for _, key := range []string{"a", "b", "user:42"} {
		entry, err := cache.NewEntry(key, []byte("v"), 0, 1)
		require.NoError(t, err)
		require.NoError(t, client.Apply(ctx, "peer-1", entry))
	}
	require.Equal(t, 3, peer.Len())

	require.NoError(t, client.Delete(ctx, "peer-1", "user:42"))
	assert.Equal(t, 2, peer.Len())

	require.NoError(t, client.Clear(ctx, "peer-1"))
	assert.Zero(t, peer.Len())
}

func TestClient_Fingerprint_Missing(t *testing.T) {
	_, srv := newPeer(t)

	client := NewClient(time.Second, zap.NewNop())
	client.Register("peer-1", srv.URL)

	_, err := client.Fingerprint(context.Background(), "peer-1", "ghost")
	assert.Error(t, err)
}

func TestClient_Check(t *testing.T) {
	_, srv := newPeer(t)

	client := NewClient(time.Second, zap.NewNop())
	client.Register("peer-1", srv.URL)

	report, err := client.Check(context.Background(), "peer-1")
	require.NoError(t, err)
	assert.Equal(t, cache.NodeOnline, report.Status)
	assert.GreaterOrEqual(t, report.MemoryUsageMB, 0.0)
}

func TestClient_UnknownNode(t *testing.T) {
	client := NewClient(time.Second, zap.NewNop())

	err := client.Delete(context.Background(), "nobody", "k")
	assert.Error(t, err)

	entry, err := cache.NewEntry("k", []byte("v"), 0, 1)
	require.NoError(t, err)
	assert.Error(t, client.Apply(context.Background(), "nobody", entry))
}

func TestClient_UnreachablePeer(t *testing.T) {
	client := NewClient(100*time.Millisecond, zap.NewNop())
	client.Register("gone", "http://127.0.0.1:1")

	err := client.Clear(context.Background(), "gone")
	assert.Error(t, err, "transport errors stay errors; the engine decides to swallow them")
}
