package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func entryWithValue(t *testing.T, key string, size int) *Entry {
	t.Helper()
	e, err := NewEntry(key, make([]byte, size), 0, 1)
	require.NoError(t, err)
	return e
}

func TestEvictor_EnsureSpace(t *testing.T) {
	t.Run("no eviction under budget", func(t *testing.T) {
		ev := newEvictor(PolicyLRU, 10, zap.NewNop())
		entries := map[string]*Entry{}

		evicted, err := ev.ensureSpace(entries, entryWithValue(t, "k", 1024))
		require.NoError(t, err)
		assert.Zero(t, evicted)
	})

	t.Run("evicts batches until under budget", func(t *testing.T) {
		ev := newEvictor(PolicyFIFO, 1, zap.NewNop())
		entries := map[string]*Entry{}
		for i := 0; i < 50; i++ {
			e := entryWithValue(t, fmt.Sprintf("k%d", i), 32*1024)
			entries[e.Key] = e
			time.Sleep(time.Millisecond) // distinct creation order
		}
		before := len(entries)

		evicted, err := ev.ensureSpace(entries, entryWithValue(t, "new", 32*1024))
		require.NoError(t, err)
		assert.Greater(t, evicted, 0)
		assert.Less(t, len(entries), before)
	})

	t.Run("oversized entry fails immediately", func(t *testing.T) {
		ev := newEvictor(PolicyLRU, 1, zap.NewNop())
		entries := map[string]*Entry{}

		_, err := ev.ensureSpace(entries, entryWithValue(t, "huge", 2*1024*1024))
		assert.ErrorIs(t, err, ErrCapacityExceeded)
	})
}

func TestEvictor_Victims(t *testing.T) {
	t.Run("fifo and lru take oldest created", func(t *testing.T) {
		entries := map[string]*Entry{}
		for _, key := range []string{"old", "mid", "new"} {
			entries[key] = entryWithValue(t, key, 10)
			time.Sleep(2 * time.Millisecond)
		}

		for _, policy := range []EvictionPolicy{PolicyLRU, PolicyFIFO} {
			ev := newEvictor(policy, 1, zap.NewNop())
			assert.Equal(t, []string{"old"}, ev.victims(entries, 1), string(policy))
		}
	})

	t.Run("lfu takes least accessed", func(t *testing.T) {
		entries := map[string]*Entry{}
		for key, count := range map[string]int64{"cold": 1, "warm": 5, "hot": 50} {
			e := entryWithValue(t, key, 10)
			e.AccessCount = count
			entries[key] = e
		}

		ev := newEvictor(PolicyLFU, 1, zap.NewNop())
		assert.Equal(t, []string{"cold"}, ev.victims(entries, 1))
	})

	t.Run("batch is at least one entry", func(t *testing.T) {
		entries := map[string]*Entry{"only": entryWithValue(t, "only", 10)}
		ev := newEvictor(PolicyLRU, 1, zap.NewNop())
		assert.Len(t, ev.victims(entries, 1), 1)
	})
}
