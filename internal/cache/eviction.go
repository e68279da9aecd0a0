package cache

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// evictor enforces the memory budget over the local entry map. It always
// runs with the cache core's lock held and never touches replicas: eviction
// is a purely local memory-pressure response.
type evictor struct {
	policy      EvictionPolicy
	maxMemoryMB int
	logger      *zap.Logger
}

func newEvictor(policy EvictionPolicy, maxMemoryMB int, logger *zap.Logger) *evictor {
	return &evictor{
		policy:      policy,
		maxMemoryMB: maxMemoryMB,
		logger:      logger,
	}
}

// usedMB estimates the current footprint of the entry map in megabytes.
func usedMB(entries map[string]*Entry) float64 {
	var bytes int64
	for _, e := range entries {
		bytes += e.ApproxSize()
	}
	return float64(bytes) / (1024 * 1024)
}

// ensureSpace evicts entries until the map plus the incoming entry fits the
// budget, removing batches of roughly 10% of the entry count per pass (never
// fewer than one). It returns the number of evicted entries, or
// ErrCapacityExceeded when the budget cannot be met.
func (ev *evictor) ensureSpace(entries map[string]*Entry, incoming *Entry) (int, error) {
	incomingMB := float64(incoming.ApproxSize()) / (1024 * 1024)
	if incomingMB >= float64(ev.maxMemoryMB) {
		return 0, fmt.Errorf("%w: entry %q alone is %.2fMB against a %dMB budget",
			ErrCapacityExceeded, incoming.Key, incomingMB, ev.maxMemoryMB)
	}

	evicted := 0
	for usedMB(entries)+incomingMB >= float64(ev.maxMemoryMB) {
		if len(entries) == 0 {
			return evicted, fmt.Errorf("%w: %.2fMB needed against a %dMB budget",
				ErrCapacityExceeded, incomingMB, ev.maxMemoryMB)
		}

		batch := len(entries) / 10
		if batch < 1 {
			batch = 1
		}
		victims := ev.victims(entries, batch)
		for _, key := range victims {
			delete(entries, key)
			evicted++
		}

		ev.logger.Debug("evicted batch",
			zap.Int("count", len(victims)),
			zap.String("policy", string(ev.policy)))
	}
	return evicted, nil
}

// victims ranks entries by the configured policy and returns up to n keys.
// LRU here orders by creation time, not last access: the engine does not
// track true recency, so LRU and FIFO share the oldest-created ordering.
func (ev *evictor) victims(entries map[string]*Entry, n int) []string {
	candidates := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		candidates = append(candidates, e)
	}

	switch ev.policy {
	case PolicyLFU:
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].AccessCount != candidates[j].AccessCount {
				return candidates[i].AccessCount < candidates[j].AccessCount
			}
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		})
	default: // PolicyLRU, PolicyFIFO
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		})
	}

	if n > len(candidates) {
		n = len(candidates)
	}
	keys := make([]string, 0, n)
	for _, e := range candidates[:n] {
		keys = append(keys, e.Key)
	}
	return keys
}
