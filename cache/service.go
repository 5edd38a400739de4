package cache

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-supply-cache/internal/cacheinfra"
)

// ErrQuotaExceeded is returned by a Store when a write would push it past its byte budget.
// The write is not applied.
var ErrQuotaExceeded = cacheinfra.ErrQuotaExceeded

// ErrInvalidResultType is returned when a cached payload cannot be converted to the requested type.
var ErrInvalidResultType = goerrors.New("cached value has unexpected type", goerrors.CategoryInternal).
	WithTextCode("INVALID_RESULT_TYPE")

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

//go:generate mockgen -destination=mocks/store_mock.go -package=mocks github.com/goliatone/go-supply-cache/cache Store

// Store is the durable, string keyed store shared by the entity cache, the query cache,
// the stale markers and the offline queue. Each component owns a disjoint key prefix
// (see keys.go) and writes are last-writer-wins at key granularity.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. Implementations return ErrQuotaExceeded when the
	// write would exceed the configured size budget.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every key starting with prefix. An empty prefix lists all keys.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Clear removes every key.
	Clear(ctx context.Context) error

	// Size reports the bytes currently used (keys plus values).
	Size(ctx context.Context) (int, error)
}
