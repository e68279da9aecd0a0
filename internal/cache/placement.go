package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Placement maps keys to ordered replica sets over the current Online node
// set. Assignments are computed lazily and cached until a topology change
// invalidates them.
//
// Placement is hash-mod, not a hash ring: adding or removing a node shifts
// the bucket of most keys. That matches the engine's documented contract,
// where placement is explicitly unstable across topology changes.
type Placement struct {
	mu          sync.RWMutex
	factor      int
	registry    *Registry
	assignments map[string][]string
}

// NewPlacement creates a placement engine over the given registry.
func NewPlacement(registry *Registry, replicationFactor int) *Placement {
	return &Placement{
		factor:      replicationFactor,
		registry:    registry,
		assignments: make(map[string][]string),
	}
}

// NodesForKey returns the ordered replica set for a key, computing and
// caching it on first access. The result has min(replicationFactor,
// |online|) distinct ids, and is empty when no node is Online — callers
// treat that as local-only operation, not an error.
func (p *Placement) NodesForKey(key string) []string {
	p.mu.RLock()
	assigned, ok := p.assignments[key]
	p.mu.RUnlock()
	if ok {
		return assigned
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check: another caller may have placed the key meanwhile.
	if assigned, ok = p.assignments[key]; ok {
		return assigned
	}

	assigned = p.place(key, nil)
	if len(assigned) > 0 {
		p.assignments[key] = assigned
	}
	return assigned
}

// place computes the replica set for a key over the sorted Online set,
// excluding any ids in skip: hash(key) mod n picks the first replica, and
// subsequent replicas are drawn without replacement by walking forward.
func (p *Placement) place(key string, skip map[string]bool) []string {
	online := p.registry.OnlineIDs()
	if len(skip) > 0 {
		filtered := online[:0]
		for _, id := range online {
			if !skip[id] {
				filtered = append(filtered, id)
			}
		}
		online = filtered
	}
	if len(online) == 0 {
		return nil
	}

	count := p.factor
	if count > len(online) {
		count = len(online)
	}

	start := int(xxhash.Sum64String(key) % uint64(len(online)))
	assigned := make([]string, 0, count)
	for i := 0; i < count; i++ {
		assigned = append(assigned, online[(start+i)%len(online)])
	}
	return assigned
}

// Forget drops the cached assignment for one key.
func (p *Placement) Forget(key string) {
	p.mu.Lock()
	delete(p.assignments, key)
	p.mu.Unlock()
}

// Invalidate drops every cached assignment. Called when a node joins, since
// hash-mod placement may move any key's bucket.
func (p *Placement) Invalidate() {
	p.mu.Lock()
	p.assignments = make(map[string][]string)
	p.mu.Unlock()
}

// Rebalance rewrites every cached assignment that referenced the removed
// node, topping the set back up toward the replication factor from the
// remaining Online nodes. It returns the keys whose assignment changed.
func (p *Placement) Rebalance(removedID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var changed []string
	for key, assigned := range p.assignments {
		kept := make([]string, 0, len(assigned))
		hit := false
		for _, id := range assigned {
			if id == removedID {
				hit = true
				continue
			}
			kept = append(kept, id)
		}
		if !hit {
			continue
		}

		// Top up with replacements not already assigned.
		if len(kept) < p.factor {
			taken := make(map[string]bool, len(kept))
			for _, id := range kept {
				taken[id] = true
			}
			for _, id := range p.place(key, taken) {
				if len(kept) >= p.factor {
					break
				}
				kept = append(kept, id)
				taken[id] = true
			}
		}

		if len(kept) == 0 {
			delete(p.assignments, key)
		} else {
			p.assignments[key] = kept
		}
		changed = append(changed, key)
	}
	return changed
}

// Assignments returns a snapshot of the cached key-to-replica map.
func (p *Placement) Assignments() map[string][]string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string][]string, len(p.assignments))
	for k, v := range p.assignments {
		ids := make([]string, len(v))
		copy(ids, v)
		out[k] = ids
	}
	return out
}
