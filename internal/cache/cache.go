package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DistributedCache is the engine's public surface: a local authoritative
// key/value map with best-effort replication to the nodes the placement
// engine assigns per key.
//
// The local write always wins: replication and consistency failures are
// logged and counted, never surfaced to callers, and never roll back a
// local mutation.
type DistributedCache struct {
	mu      sync.Mutex
	entries map[string]*Entry

	config    Config
	registry  *Registry
	placement *Placement
	evictor   *evictor
	client    NodeClient
	transform ValueTransform
	logger    *zap.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
	syncOps   atomic.Int64
}

// Option customises cache construction.
type Option func(*DistributedCache)

// WithTransform installs a value transform (compression, encryption) applied
// around the local store.
func WithTransform(t ValueTransform) Option {
	return func(c *DistributedCache) { c.transform = t }
}

// New constructs the cache engine. The node client and health probe are the
// engine's only external capabilities; both may be exercised concurrently by
// caller operations and the scheduler.
func New(cfg Config, client NodeClient, probe HealthProbe, logger *zap.Logger, opts ...Option) (*DistributedCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("cache: node client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := NewRegistry(probe, logger)
	c := &DistributedCache{
		entries:   make(map[string]*Entry),
		config:    cfg,
		registry:  registry,
		placement: NewPlacement(registry, cfg.ReplicationFactor),
		evictor:   newEvictor(cfg.Eviction, cfg.MaxMemoryMB, logger),
		client:    client,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the engine configuration.
func (c *DistributedCache) Config() Config {
	return c.config
}

// Registry exposes the node table for the scheduler and admin surfaces.
func (c *DistributedCache) Registry() *Registry {
	return c.registry
}

// Placement exposes the placement engine, mainly for tests and diagnostics.
func (c *DistributedCache) Placement() *Placement {
	return c.placement
}

// AddNode registers a cluster node. Joining invalidates cached placements,
// since hash-mod placement may move any key's bucket.
func (c *DistributedCache) AddNode(node *Node) error {
	if err := c.registry.AddNode(node); err != nil {
		return err
	}
	c.placement.Invalidate()
	return nil
}

// RemoveNode removes a node and rebalances every key it was assigned to
// onto the remaining Online set.
func (c *DistributedCache) RemoveNode(id string) error {
	if err := c.registry.RemoveNode(id); err != nil {
		return err
	}
	moved := c.placement.Rebalance(id)
	if len(moved) > 0 {
		c.logger.Info("rebalanced keys after node removal",
			zap.String("node_id", id), zap.Int("keys", len(moved)))
	}
	return nil
}

// Get looks up a key in the local store. Expired entries are purged as a
// side effect and reported as misses. Under strong consistency a hit also
// triggers asynchronous fingerprint verification against the key's
// replicas; that check never blocks and never changes the returned value.
func (c *DistributedCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	if e.IsExpired() {
		delete(c.entries, key)
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	e.AccessCount++
	value := e.Value
	var snap *Entry
	if c.config.Consistency == Strong {
		snap = e.clone()
	}
	c.mu.Unlock()
	c.hits.Add(1)

	if snap != nil {
		// Fire-and-forget: verification runs on its own context so it
		// survives the caller's cancellation.
		go c.verifyAndRepair(context.Background(), snap)
	}

	if c.transform != nil {
		decoded, err := c.transform.Decode(value)
		if err != nil {
			c.logger.Error("value decode failed", zap.String("key", key), zap.Error(err))
			return nil, false
		}
		value = decoded
	}
	return value, true
}

// Set writes a key locally and fans the entry out to its assigned replicas.
// Overwrites increment the entry version. The only failures callers see are
// validation errors on the key or ttl, and ErrCapacityExceeded when eviction
// cannot bring memory under budget; replica failures are logged only.
func (c *DistributedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	version := int64(1)
	if prev, ok := c.entries[key]; ok {
		version = prev.Version + 1
	}

	e, err := NewEntry(key, value, ttl, version)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.transform != nil {
		encoded, encErr := c.transform.Encode(value)
		if encErr != nil {
			c.mu.Unlock()
			return fmt.Errorf("cache: encode %q: %w", key, encErr)
		}
		e.Value = encoded
	}

	evicted, err := c.evictor.ensureSpace(c.entries, e)
	c.evictions.Add(int64(evicted))
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.entries[key] = e
	// The stored entry stays behind the lock; replication gets a copy so the
	// node client never reads fields a concurrent Get is mutating.
	out := e.clone()
	c.mu.Unlock()
	c.sets.Add(1)

	for _, nodeID := range c.placement.NodesForKey(key) {
		if err := c.client.Apply(ctx, nodeID, out); err != nil {
			c.logger.Warn("replication apply failed",
				zap.String("key", key),
				zap.String("node_id", nodeID),
				zap.Error(err))
		}
	}
	return nil
}

// Delete removes a key locally and best-effort on its replicas. Deleting an
// absent key is a successful no-op.
func (c *DistributedCache) Delete(ctx context.Context, key string) error {
	replicas := c.placement.NodesForKey(key)

	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.placement.Forget(key)
	c.deletes.Add(1)

	for _, nodeID := range replicas {
		if err := c.client.Delete(ctx, nodeID, key); err != nil {
			c.logger.Warn("replication delete failed",
				zap.String("key", key),
				zap.String("node_id", nodeID),
				zap.Error(err))
		}
	}
	return nil
}

// Exists reports local presence with Get's expiry semantics: an expired
// entry is purged and reported absent. Exists does not count as a hit or
// miss.
func (c *DistributedCache) Exists(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if e.IsExpired() {
		delete(c.entries, key)
		return false
	}
	return true
}

// Clear drops every local entry and cached assignment, then best-effort
// clears every registered node. It returns the number of local entries
// removed.
func (c *DistributedCache) Clear(ctx context.Context) int {
	c.mu.Lock()
	removed := len(c.entries)
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
	c.placement.Invalidate()

	for _, node := range c.registry.Nodes() {
		if err := c.client.Clear(ctx, node.ID); err != nil {
			c.logger.Warn("replication clear failed",
				zap.String("node_id", node.ID),
				zap.Error(err))
		}
	}
	return removed
}

// Sweep deletes expired entries. Sweep removals are normal expiry, not
// evictions, and are not replicated; replicas expire on their own clocks.
func (c *DistributedCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.IsExpired() {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// verifyAndRepair compares the entry's fingerprint against each assigned
// replica and, on any mismatch, re-replicates the local entry to the whole
// replica set. Returns whether a repair was triggered. Fingerprint fetch
// errors are logged and skipped: an unreachable replica is not divergence.
func (c *DistributedCache) verifyAndRepair(ctx context.Context, e *Entry) bool {
	replicas := c.placement.NodesForKey(e.Key)
	if len(replicas) == 0 {
		return false
	}

	divergent := false
	for _, nodeID := range replicas {
		remote, err := c.client.Fingerprint(ctx, nodeID, e.Key)
		if err != nil {
			c.logger.Debug("fingerprint fetch failed",
				zap.String("key", e.Key),
				zap.String("node_id", nodeID),
				zap.Error(err))
			continue
		}
		if remote != e.Fingerprint {
			divergent = true
			break
		}
	}
	if !divergent {
		return false
	}

	c.syncOps.Add(1)
	c.logger.Info("repairing divergent replicas", zap.String("key", e.Key))
	for _, nodeID := range replicas {
		if err := c.client.Apply(ctx, nodeID, e); err != nil {
			c.logger.Warn("repair apply failed",
				zap.String("key", e.Key),
				zap.String("node_id", nodeID),
				zap.Error(err))
		}
	}
	return true
}

// snapshotEntries returns copies of the current live entries, so the sync
// loop can verify and re-replicate them without holding the store lock.
func (c *DistributedCache) snapshotEntries() []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.clone())
	}
	return out
}

// ApplyReplica stores an entry received from a peer verbatim, without
// version bumps, eviction fan-out or further replication. The transport
// server uses this to serve NodeClient.Apply.
func (c *DistributedCache) ApplyReplica(e *Entry) error {
	if e == nil || e.Key == "" {
		return fmt.Errorf("cache: replica entry requires a key")
	}
	c.mu.Lock()
	c.entries[e.Key] = e
	c.mu.Unlock()
	return nil
}

// DeleteReplica removes a key on behalf of a peer, without fan-out.
func (c *DistributedCache) DeleteReplica(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// ClearReplica drops all local entries on behalf of a peer.
func (c *DistributedCache) ClearReplica() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := len(c.entries)
	c.entries = make(map[string]*Entry)
	return removed
}

// LocalFingerprint returns the stored fingerprint for a key, if present and
// unexpired.
func (c *DistributedCache) LocalFingerprint(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.IsExpired() {
		return "", false
	}
	return e.Fingerprint, true
}

// UsedMemoryMB estimates the local store's footprint.
func (c *DistributedCache) UsedMemoryMB() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return usedMB(c.entries)
}

// Len returns the number of local entries, expired or not.
func (c *DistributedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetMetrics snapshots the engine counters and cluster gauges.
func (c *DistributedCache) GetMetrics() Stats {
	s := Stats{
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Sets:           c.sets.Load(),
		Deletes:        c.deletes.Load(),
		Evictions:      c.evictions.Load(),
		SyncOperations: c.syncOps.Load(),
		TotalEntries:   c.Len(),
		TotalNodes:     c.registry.Count(),
		OnlineNodes:    c.registry.OnlineCount(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// NodeStatusReport describes one node on the outward status surface.
type NodeStatusReport struct {
	Address       string    `json:"address"`
	Status        string    `json:"status"`
	MemoryUsageMB float64   `json:"memory_usage_mb"`
	HitRate       float64   `json:"hit_rate"`
	Load          float64   `json:"load"`
	HealthScore   float64   `json:"health_score"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Version       string    `json:"version,omitempty"`
}

// GetNodeStatus reports every registered node keyed by id.
func (c *DistributedCache) GetNodeStatus() map[string]NodeStatusReport {
	out := make(map[string]NodeStatusReport)
	for _, n := range c.registry.Nodes() {
		out[n.ID] = NodeStatusReport{
			Address:       n.Address,
			Status:        n.Status.String(),
			MemoryUsageMB: n.MemoryUsageMB,
			HitRate:       n.HitRate,
			Load:          n.Load,
			HealthScore:   n.HealthScore(),
			LastHeartbeat: n.LastHeartbeat,
			Version:       n.Version,
		}
	}
	return out
}
