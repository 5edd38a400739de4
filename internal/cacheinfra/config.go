package cacheinfra

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// DefaultDSN keeps the sqlite database in memory, shared across connections of the process.
const DefaultDSN = "file::memory:?cache=shared"

// Config holds the configuration for the durable store implementations.
type Config struct {
	// Backend selects the store implementation. Default: memory
	Backend string

	// MaxBytes is the size budget, counted as len(key)+len(value) over all entries.
	// Must be greater than 0. Default: 5 MiB
	MaxBytes int

	// DSN is the sqlite data source name used by the sqlite backend.
	DSN string

	// Capacity defines the maximum number of entries the memory backend can hold.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of sturdyc shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// MaxAge is the absolute age after which the memory backend drops an entry.
	// Component TTLs are enforced above the store; this is only a ceiling.
	MaxAge time.Duration

	// EvictionPercentage specifies what percentage of entries sturdyc evicts
	// when the memory backend reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Backend:            BackendMemory,
		MaxBytes:           5 << 20,
		DSN:                DefaultDSN,
		Capacity:           10000,
		NumShards:          256,
		MaxAge:             7 * 24 * time.Hour,
		EvictionPercentage: 10,
	}
}

// Validate checks if the configuration values are valid.
// The returned error is a go-errors validation error carrying one entry per field.
func (c Config) Validate() error {
	err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.Backend, validation.Required, validation.In(BackendMemory, BackendSQLite)),
			validation.Field(&c.MaxBytes, validation.Required, validation.Min(1)),
			validation.Field(&c.DSN, validation.When(c.Backend == BackendSQLite, validation.Required)),
			validation.Field(&c.Capacity, validation.When(c.Backend == BackendMemory, validation.Required, validation.Min(1))),
			validation.Field(&c.NumShards, validation.When(c.Backend == BackendMemory, validation.Required, validation.Min(1))),
			validation.Field(&c.MaxAge, validation.When(c.Backend == BackendMemory, validation.Required, validation.Min(time.Second))),
			validation.Field(&c.EvictionPercentage, validation.When(c.Backend == BackendMemory, validation.Required, validation.Min(1), validation.Max(100))),
			validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
		)
	}, "invalid store configuration")
	if err != nil {
		return err.WithTextCode("INVALID_STORE_CONFIG")
	}
	return nil
}

// ErrQuotaExceeded is returned when a write would push a store past its byte budget.
var ErrQuotaExceeded = goerrors.New("store size budget exceeded", goerrors.CategoryOperation).
	WithTextCode("QUOTA_EXCEEDED")

// entrySize is the budget cost of one entry.
func entrySize(key, value string) int {
	return len(key) + len(value)
}
