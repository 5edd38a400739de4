package testsupport

import (
	"testing"

	"github.com/goliatone/go-supply-cache/cache"
)

// NewStore returns a small sturdyc backed store with a 1 MiB budget.
func NewStore(t testing.TB) cache.Store {
	t.Helper()
	return NewStoreWithBudget(t, 1<<20)
}

// NewStoreWithBudget returns a sturdyc backed store limited to maxBytes.
func NewStoreWithBudget(t testing.TB, maxBytes int) cache.Store {
	t.Helper()

	cfg := cache.DefaultStoreConfig()
	cfg.MaxBytes = maxBytes
	cfg.Memory.Capacity = 1000
	cfg.Memory.NumShards = 4

	store, err := cache.NewMemoryStore(cfg)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	return store
}
