package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv applies MESHCACHE_* environment overrides on top of the
// file/default configuration. Unparseable values are ignored.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("MESHCACHE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("MESHCACHE_TRANSPORT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.TransportPort = p
		}
	}
	if v := os.Getenv("MESHCACHE_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("MESHCACHE_NODE_ID"); v != "" {
		cfg.Cluster.NodeID = v
	}
	if v := os.Getenv("MESHCACHE_CONSISTENCY"); v != "" {
		cfg.Cache.ConsistencyLevel = v
	}
	if v := os.Getenv("MESHCACHE_REPLICATION_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.ReplicationFactor = n
		}
	}
	if v := os.Getenv("MESHCACHE_MAX_MEMORY_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxMemoryMB = n
		}
	}
	if v := os.Getenv("MESHCACHE_EVICTION_POLICY"); v != "" {
		cfg.Cache.EvictionPolicy = v
	}
	if v := os.Getenv("MESHCACHE_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SyncInterval = Duration(d)
		}
	}
	if v := os.Getenv("MESHCACHE_HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.HeartbeatInterval = Duration(d)
		}
	}
	if v := os.Getenv("MESHCACHE_ENCRYPTION_KEY"); v != "" {
		cfg.Cache.EncryptionKey = v
	}
}
