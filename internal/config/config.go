package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/meshcache/internal/cache"
)

// Duration is a time.Duration that unmarshals from yaml strings like "30s"
// or from a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var secs int64
	if err := node.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the process-wide configuration, fixed at startup.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	Cluster ClusterConfig `yaml:"cluster"`
}

// ServerConfig configures the HTTP surfaces.
type ServerConfig struct {
	Port          int    `yaml:"port"`
	TransportPort int    `yaml:"transport_port"`
	LogLevel      string `yaml:"log_level"`
}

// CacheConfig configures the engine.
type CacheConfig struct {
	ConsistencyLevel  string   `yaml:"consistency_level"`
	ReplicationFactor int      `yaml:"replication_factor"`
	SyncInterval      Duration `yaml:"sync_interval"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	MaxMemoryMB       int      `yaml:"max_memory_mb"`
	EvictionPolicy    string   `yaml:"eviction_policy"`
	Compression       bool     `yaml:"compression"`
	// EncryptionKey is a hex-encoded 32-byte key; empty disables encryption.
	EncryptionKey string `yaml:"encryption_key"`
}

// SeedNode is a statically configured cluster peer.
type SeedNode struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

// ClusterConfig configures cluster membership.
type ClusterConfig struct {
	NodeID string     `yaml:"node_id"`
	Seeds  []SeedNode `yaml:"seeds"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          8080,
			TransportPort: 8081,
			LogLevel:      "info",
		},
		Cache: CacheConfig{
			ConsistencyLevel:  "eventual",
			ReplicationFactor: 2,
			SyncInterval:      Duration(30 * time.Second),
			HeartbeatInterval: Duration(10 * time.Second),
			MaxMemoryMB:       512,
			EvictionPolicy:    "lru",
		},
	}
}

// Load reads a yaml config file over the defaults, then applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on out-of-range settings.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server port %d out of range", c.Server.Port)
	}
	if c.Server.TransportPort < 1 || c.Server.TransportPort > 65535 {
		return fmt.Errorf("config: transport port %d out of range", c.Server.TransportPort)
	}
	if c.Cache.EncryptionKey != "" {
		key, err := hex.DecodeString(c.Cache.EncryptionKey)
		if err != nil {
			return fmt.Errorf("config: encryption key must be hex: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("config: encryption key must be 32 bytes, got %d", len(key))
		}
	}
	// Engine-level ranges are validated by cache.Config.
	engine, err := c.EngineConfig()
	if err != nil {
		return err
	}
	return engine.Validate()
}

// EngineConfig maps the yaml fields onto the engine's typed config.
func (c *Config) EngineConfig() (cache.Config, error) {
	level, err := cache.ParseConsistencyLevel(c.Cache.ConsistencyLevel)
	if err != nil {
		return cache.Config{}, err
	}
	return cache.Config{
		Consistency:       level,
		ReplicationFactor: c.Cache.ReplicationFactor,
		SyncInterval:      time.Duration(c.Cache.SyncInterval),
		HeartbeatInterval: time.Duration(c.Cache.HeartbeatInterval),
		MaxMemoryMB:       c.Cache.MaxMemoryMB,
		Eviction:          cache.EvictionPolicy(c.Cache.EvictionPolicy),
	}, nil
}

// Transform builds the configured value-transform chain, or nil when both
// compression and encryption are disabled.
func (c *Config) Transform() (cache.ValueTransform, error) {
	var chain cache.ChainTransform
	if c.Cache.Compression {
		chain = append(chain, cache.SnappyTransform{})
	}
	if c.Cache.EncryptionKey != "" {
		key, err := hex.DecodeString(c.Cache.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("config: encryption key must be hex: %w", err)
		}
		enc, err := cache.NewEncryptionTransform(key)
		if err != nil {
			return nil, err
		}
		chain = append(chain, enc)
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}
