package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry tracks the cluster's cache nodes and their health. Health data
// comes exclusively from the injected HealthProbe; the registry only records
// what the probe reports.
type Registry struct {
	mu     sync.RWMutex
	nodes  map[string]*Node
	probe  HealthProbe
	logger *zap.Logger
}

// NewRegistry creates an empty node registry.
func NewRegistry(probe HealthProbe, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		nodes:  make(map[string]*Node),
		probe:  probe,
		logger: logger,
	}
}

// AddNode registers a node. The node is validated and stored in the Online
// state; a duplicate id fails with ErrDuplicateNode.
func (r *Registry) AddNode(node *Node) error {
	if node == nil {
		return fmt.Errorf("cache: node is required")
	}
	if err := node.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[node.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
	}

	stored := node.clone()
	stored.Status = NodeOnline
	if stored.LastHeartbeat.IsZero() {
		stored.LastHeartbeat = time.Now()
	}
	r.nodes[node.ID] = stored

	r.logger.Info("node registered",
		zap.String("node_id", node.ID),
		zap.String("address", node.Address))
	return nil
}

// RemoveNode deletes a node from the table. An absent id fails with
// ErrUnknownNode. Key rebalancing is driven by the cache core, which owns
// the placement assignments.
func (r *Registry) RemoveNode(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[id]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	delete(r.nodes, id)

	r.logger.Info("node removed", zap.String("node_id", id))
	return nil
}

// Node returns a copy of the node with the given id.
func (r *Registry) Node(id string) (*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, exists := r.nodes[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n.clone(), nil
}

// HealthScore returns the [0,1] fitness figure for a node.
func (r *Registry) HealthScore(id string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, exists := r.nodes[id]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n.HealthScore(), nil
}

// OnlineIDs returns the ids of Online nodes in sorted order. Placement
// depends on this ordering being deterministic.
func (r *Registry) OnlineIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.nodes))
	for id, n := range r.nodes {
		if n.Status == NodeOnline {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Nodes returns a snapshot copy of every registered node.
func (r *Registry) Nodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered nodes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// OnlineCount returns the number of Online nodes.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.nodes {
		if n.Status == NodeOnline {
			count++
		}
	}
	return count
}

// Heartbeat refreshes every node's heartbeat timestamp and applies the
// probe's health report. A failed probe marks the node Offline until a later
// probe succeeds. Probe calls happen outside the registry lock.
func (r *Registry) Heartbeat(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	now := time.Now()
	for _, id := range ids {
		var report HealthReport
		var err error
		if r.probe != nil {
			report, err = r.probe.Check(ctx, id)
		}

		r.mu.Lock()
		n, exists := r.nodes[id]
		if !exists {
			// Removed while probing.
			r.mu.Unlock()
			continue
		}
		n.LastHeartbeat = now
		switch {
		case r.probe == nil:
			// No probe wired; heartbeat only refreshes the timestamp.
		case err != nil:
			n.Status = NodeOffline
			r.logger.Warn("health probe failed",
				zap.String("node_id", id), zap.Error(err))
		default:
			n.Status = report.Status
			n.MemoryUsageMB = report.MemoryUsageMB
			n.HitRate = report.HitRate
			n.Load = report.Load
		}
		r.mu.Unlock()
	}
}
