package cache

import (
	"fmt"
	"time"
)

// ConsistencyLevel controls how aggressively replica divergence is detected
// and repaired.
type ConsistencyLevel int

const (
	// Eventual never actively checks replicas.
	Eventual ConsistencyLevel = iota
	// Strong verifies fingerprints on read and during sync passes, and
	// re-replicates on mismatch.
	Strong
	// Weak is reserved; it behaves like Eventual today.
	Weak
)

func (l ConsistencyLevel) String() string {
	switch l {
	case Eventual:
		return "eventual"
	case Strong:
		return "strong"
	case Weak:
		return "weak"
	default:
		return "unknown"
	}
}

// ParseConsistencyLevel maps a config string to a ConsistencyLevel.
func ParseConsistencyLevel(s string) (ConsistencyLevel, error) {
	switch s {
	case "eventual":
		return Eventual, nil
	case "strong":
		return Strong, nil
	case "weak":
		return Weak, nil
	default:
		return Eventual, fmt.Errorf("cache: invalid consistency level %q", s)
	}
}

// EvictionPolicy selects the victim ordering under memory pressure.
type EvictionPolicy string

const (
	// PolicyLRU evicts oldest-created entries first. True recency of
	// access is not tracked; this matches the documented approximation.
	PolicyLRU EvictionPolicy = "lru"
	// PolicyLFU evicts entries with the lowest access count first.
	PolicyLFU EvictionPolicy = "lfu"
	// PolicyFIFO evicts oldest-created entries first.
	PolicyFIFO EvictionPolicy = "fifo"
)

// Config carries the engine-wide settings, fixed at construction.
type Config struct {
	Consistency       ConsistencyLevel
	ReplicationFactor int
	SyncInterval      time.Duration
	HeartbeatInterval time.Duration
	MaxMemoryMB       int
	Eviction          EvictionPolicy
}

// DefaultConfig returns a config suitable for a single-process deployment.
func DefaultConfig() Config {
	return Config{
		Consistency:       Eventual,
		ReplicationFactor: 2,
		SyncInterval:      30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		MaxMemoryMB:       512,
		Eviction:          PolicyLRU,
	}
}

// Validate fails fast on out-of-range settings.
func (c Config) Validate() error {
	switch c.Consistency {
	case Eventual, Strong, Weak:
	default:
		return fmt.Errorf("cache: invalid consistency level %d", c.Consistency)
	}
	if c.ReplicationFactor < 1 {
		return fmt.Errorf("cache: replication factor must be at least 1, got %d", c.ReplicationFactor)
	}
	if c.SyncInterval < time.Second {
		return fmt.Errorf("cache: sync interval must be at least 1s, got %s", c.SyncInterval)
	}
	if c.HeartbeatInterval < time.Second {
		return fmt.Errorf("cache: heartbeat interval must be at least 1s, got %s", c.HeartbeatInterval)
	}
	if c.MaxMemoryMB < 1 {
		return fmt.Errorf("cache: max memory must be at least 1MB, got %d", c.MaxMemoryMB)
	}
	switch c.Eviction {
	case PolicyLRU, PolicyLFU, PolicyFIFO:
	default:
		return fmt.Errorf("cache: invalid eviction policy %q", c.Eviction)
	}
	return nil
}
