package cache

import (
	"time"

	"github.com/goliatone/go-supply-cache/internal/cacheinfra"
	"go.uber.org/zap"
)

// StoreConfig exposes the durable store options for consumers of the cache package.
type StoreConfig struct {
	// Backend selects the implementation: "memory" or "sqlite".
	Backend string `toml:"backend" yaml:"backend"`
	// MaxBytes is the size budget (keys plus values).
	MaxBytes int `toml:"max_bytes" yaml:"max_bytes"`
	// DSN is the sqlite data source; ignored by the memory backend.
	DSN string `toml:"dsn" yaml:"dsn"`
	// Memory holds the sturdyc sizing used by the memory backend.
	Memory MemoryConfig `toml:"memory" yaml:"memory"`
}

// MemoryConfig mirrors the sturdyc sizing options.
type MemoryConfig struct {
	Capacity           int           `toml:"capacity" yaml:"capacity"`
	NumShards          int           `toml:"num_shards" yaml:"num_shards"`
	MaxAge             time.Duration `toml:"max_age" yaml:"max_age"`
	EvictionPercentage int           `toml:"eviction_percentage" yaml:"eviction_percentage"`
	EvictionInterval   time.Duration `toml:"eviction_interval" yaml:"eviction_interval"`
}

// Store backends.
const (
	BackendMemory = cacheinfra.BackendMemory
	BackendSQLite = cacheinfra.BackendSQLite
)

// DefaultStoreConfig returns a StoreConfig populated with sensible defaults.
func DefaultStoreConfig() StoreConfig {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c StoreConfig) Validate() error {
	return c.toInternal().Validate()
}

// NewStore constructs the configured Store implementation.
func NewStore(cfg StoreConfig, logger *zap.Logger) (Store, error) {
	internal := cfg.toInternal()
	if internal.Backend == cacheinfra.BackendSQLite {
		return cacheinfra.NewSQLStore(internal, logger)
	}
	return cacheinfra.NewMemoryStore(internal)
}

// NewMemoryStore constructs the sturdyc backed store.
func NewMemoryStore(cfg StoreConfig) (Store, error) {
	internal := cfg.toInternal()
	internal.Backend = cacheinfra.BackendMemory
	return cacheinfra.NewMemoryStore(internal)
}

// NewSQLStore constructs the sqlite backed store.
func NewSQLStore(cfg StoreConfig, logger *zap.Logger) (Store, error) {
	internal := cfg.toInternal()
	internal.Backend = cacheinfra.BackendSQLite
	return cacheinfra.NewSQLStore(internal, logger)
}

func (c StoreConfig) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Backend:            c.Backend,
		MaxBytes:           c.MaxBytes,
		DSN:                c.DSN,
		Capacity:           c.Memory.Capacity,
		NumShards:          c.Memory.NumShards,
		MaxAge:             c.Memory.MaxAge,
		EvictionPercentage: c.Memory.EvictionPercentage,
		EvictionInterval:   c.Memory.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) StoreConfig {
	return StoreConfig{
		Backend:  cfg.Backend,
		MaxBytes: cfg.MaxBytes,
		DSN:      cfg.DSN,
		Memory: MemoryConfig{
			Capacity:           cfg.Capacity,
			NumShards:          cfg.NumShards,
			MaxAge:             cfg.MaxAge,
			EvictionPercentage: cfg.EvictionPercentage,
			EvictionInterval:   cfg.EvictionInterval,
		},
	}
}
