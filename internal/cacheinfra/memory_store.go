package cacheinfra

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/viccon/sturdyc"
)

// MemoryStore is a process local Store backed by a sturdyc client.
// sturdyc owns expiry and capacity eviction; MemoryStore layers the byte budget on top.
type MemoryStore struct {
	client   *sturdyc.Client[string]
	maxBytes int

	// mu serializes writes so the budget check and the write are atomic.
	mu sync.Mutex
}

// NewMemoryStore validates cfg and creates a sturdyc backed store.
func NewMemoryStore(cfg Config) (*MemoryStore, error) {
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var options []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[string](
		cfg.Capacity,
		cfg.NumShards,
		cfg.MaxAge,
		cfg.EvictionPercentage,
		options...,
	)

	return &MemoryStore{client: client, maxBytes: cfg.MaxBytes}, nil
}

// Get implements cache.Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	value, ok := s.client.Get(key)
	return value, ok, nil
}

// Set implements cache.Store. It returns ErrQuotaExceeded and leaves the store untouched
// when the write would exceed the byte budget.
func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used()
	if previous, ok := s.client.Get(key); ok {
		used -= entrySize(key, previous)
	}
	if used+entrySize(key, value) > s.maxBytes {
		return ErrQuotaExceeded
	}

	s.client.Set(key, value)
	return nil
}

// Delete implements cache.Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client.Delete(key)
	return nil
}

// Keys implements cache.Store. Keys are returned sorted.
func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear implements cache.Store.
func (s *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
	return nil
}

// Size implements cache.Store.
func (s *MemoryStore) Size(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.used(), nil
}

// used recomputes the budget from the live entries since sturdyc may evict on its own.
func (s *MemoryStore) used() int {
	total := 0
	for _, key := range s.client.ScanKeys() {
		if value, ok := s.client.Get(key); ok {
			total += entrySize(key, value)
		}
	}
	return total
}
