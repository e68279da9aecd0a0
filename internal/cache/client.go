package cache

import "context"

// NodeClient is the transport boundary to remote cache nodes. The engine
// treats every call as fallible and best-effort; implementations own their
// timeouts and must be safe for concurrent use from caller operations and
// the scheduler.
type NodeClient interface {
	// Apply replicates or overwrites an entry on a remote node.
	Apply(ctx context.Context, nodeID string, entry *Entry) error

	// Delete removes a key on a remote node.
	Delete(ctx context.Context, nodeID string, key string) error

	// Clear drops every entry held by a remote node.
	Clear(ctx context.Context, nodeID string) error

	// Fingerprint fetches a remote entry's fingerprint. Used only under
	// strong consistency.
	Fingerprint(ctx context.Context, nodeID string, key string) (string, error)
}

// HealthReport is the result of probing one node.
type HealthReport struct {
	Status        NodeStatus
	MemoryUsageMB float64
	HitRate       float64
	Load          float64
}

// HealthProbe supplies liveness and utilisation data for nodes. The registry
// never invents health data; everything comes from the probe.
type HealthProbe interface {
	Check(ctx context.Context, nodeID string) (HealthReport, error)
}
