// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// config.go — Config for the cache and its tiers, zero-value defaults,
// validation, and YAML file loading.

package envelope

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/AndrewDonelson/envelope/internal/clock"
	"github.com/AndrewDonelson/envelope/internal/codec"
	"github.com/AndrewDonelson/envelope/internal/compress"
	"github.com/AndrewDonelson/envelope/internal/l1"
	"github.com/AndrewDonelson/envelope/internal/metrics"
	"gopkg.in/yaml.v3"
)

// Re-export types so callers only import this package.
type (
	Clock           = clock.Clock
	MetricsRecorder = metrics.MetricsRecorder
)

// MemoryConfig configures the in-process L1 tier.
type MemoryConfig struct {
	Disabled bool `yaml:"disabled"`
	// MaxEntries bounds each of the 256 shards; zero means unbounded.
	MaxEntries    int           `yaml:"max_entries"`
	Eviction      string        `yaml:"eviction"` // lru | lfu | fifo
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RedisConfig configures the Redis L2 tier client.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig configures the PostgreSQL L3 tier pool.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	// ReplicaDSN, when set, opens a second pool that serves reads.
	ReplicaDSN      string        `yaml:"replica_dsn"`
	Table           string        `yaml:"table"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// DiskConfig configures the pebble on-disk tier.
type DiskConfig struct {
	Dir  string `yaml:"dir"`
	Sync bool   `yaml:"sync"`
}

// Config contains all cache configuration.
type Config struct {
	// Namespace prefixes every key as "<namespace>:<key>".
	Namespace string `yaml:"namespace"`
	// DefaultTTL applies when Set is called with ttl 0. Zero means no expiry.
	DefaultTTL time.Duration `yaml:"default_ttl"`
	// Compress sets the compression flag used for every envelope. Readers and
	// writers of the same keys must agree on it.
	Compress   bool   `yaml:"compress"`
	Serializer string `yaml:"serializer"` // msgpack | json
	Compressor string `yaml:"compressor"` // zlib | zstd | snappy
	// Debug turns caching off: lookups always miss and nothing is written.
	Debug bool `yaml:"debug"`

	Memory   MemoryConfig   `yaml:"memory"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Disk     DiskConfig     `yaml:"disk"`

	// InvalidationChannel is the Redis channel used to evict L1 entries
	// across processes.
	InvalidationChannel string `yaml:"invalidation_channel"`

	// EncryptionKey is a hex-encoded 32-byte AES key; empty disables sealing.
	EncryptionKey string `yaml:"encryption_key"`

	// Optional overrideable components
	Clock              Clock           `yaml:"-"`
	Metrics            MetricsRecorder `yaml:"-"`
	Logger             Logger          `yaml:"-"`
	IsLegacy           LegacyDetector  `yaml:"-"`
	LegacyDeserializer Deserializer    `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Namespace == "" {
		c.Namespace = "cache"
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop{}
	}
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
	if c.Memory.MaxEntries == 0 {
		c.Memory.MaxEntries = 1_000
	}
	if c.InvalidationChannel == "" {
		c.InvalidationChannel = defaultInvalidationChannel
	}
	if c.Postgres.MaxConns == 0 {
		c.Postgres.MaxConns = 10
	}
	if c.Postgres.MinConns == 0 {
		c.Postgres.MinConns = 1
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 30 * time.Minute
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 10 * time.Minute
	}
}

// Validate reports configuration errors wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if codec.ByName(c.Serializer) == nil {
		return fmt.Errorf("%w: unknown serializer %q", ErrInvalidConfig, c.Serializer)
	}
	if compress.ByName(c.Compressor) == nil {
		return fmt.Errorf("%w: unknown compressor %q", ErrInvalidConfig, c.Compressor)
	}
	if _, err := evictionPolicy(c.Memory.Eviction); err != nil {
		return err
	}
	if c.DefaultTTL < 0 {
		return fmt.Errorf("%w: negative default_ttl", ErrInvalidConfig)
	}
	if c.Postgres.ReplicaDSN != "" && c.Postgres.DSN == "" {
		return fmt.Errorf("%w: postgres replica_dsn without dsn", ErrInvalidConfig)
	}
	if c.EncryptionKey != "" {
		if _, err := c.encryptionKey(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) encryptionKey() ([]byte, error) {
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: encryption_key is not hex: %v", ErrInvalidConfig, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: encryption_key must decode to 32 bytes (got %d)", ErrInvalidConfig, len(key))
	}
	return key, nil
}

func evictionPolicy(name string) (l1.EvictionPolicy, error) {
	switch name {
	case "", "lru":
		return l1.LRU, nil
	case "lfu":
		return l1.LFU, nil
	case "fifo":
		return l1.FIFO, nil
	}
	return 0, fmt.Errorf("%w: unknown eviction policy %q", ErrInvalidConfig, name)
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("envelope: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
