package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// JSONStore wraps a Store with JSON encoding and the cache error policy: storage
// failures are logged and reported as a miss or a no-op, and a payload that no longer
// decodes is deleted so the next read is a clean miss.
type JSONStore struct {
	store  Store
	logger *zap.Logger
}

// NewJSONStore creates a JSONStore. A nil logger discards output.
func NewJSONStore(store Store, logger *zap.Logger) *JSONStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONStore{store: store, logger: logger}
}

// Store returns the underlying raw store.
func (s *JSONStore) Store() Store {
	return s.store
}

// Logger returns the logger used for storage failures.
func (s *JSONStore) Logger() *zap.Logger {
	return s.logger
}

// Write encodes value and stores it. It reports whether the write landed.
func (s *JSONStore) Write(ctx context.Context, key string, value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return s.WriteRaw(ctx, key, string(data))
}

// WriteRaw stores an already encoded value.
func (s *JSONStore) WriteRaw(ctx context.Context, key, value string) bool {
	if err := s.store.Set(ctx, key, value); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			s.logger.Warn("cache write rejected: size budget exceeded", zap.String("key", key), zap.Int("bytes", len(value)))
		} else {
			s.logger.Error("cache write failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return true
}

// ReadRaw returns the raw value stored under key.
func (s *JSONStore) ReadRaw(ctx context.Context, key string) (string, bool) {
	value, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Error("cache read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return value, ok
}

// Remove deletes keys, logging failures.
func (s *JSONStore) Remove(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Error("cache delete failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Keys lists keys by prefix. A storage failure yields no keys.
func (s *JSONStore) Keys(ctx context.Context, prefix string) []string {
	keys, err := s.store.Keys(ctx, prefix)
	if err != nil {
		s.logger.Error("cache key scan failed", zap.String("prefix", prefix), zap.Error(err))
		return nil
	}
	return keys
}

// WriteTimestamp stores t as epoch milliseconds.
func (s *JSONStore) WriteTimestamp(ctx context.Context, key string, t time.Time) bool {
	return s.WriteRaw(ctx, key, strconv.FormatInt(t.UnixMilli(), 10))
}

// ReadTimestamp reads an epoch millisecond timestamp. A malformed value is discarded.
func (s *JSONStore) ReadTimestamp(ctx context.Context, key string) (time.Time, bool) {
	raw, ok := s.ReadRaw(ctx, key)
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.Warn("discarding corrupted timestamp", zap.String("key", key), zap.Error(err))
		s.Remove(ctx, key)
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Read decodes the JSON value stored under key into T. A payload that fails to decode
// is treated as corruption: the key is removed and the read reports a miss.
func Read[T any](ctx context.Context, s *JSONStore, key string) (T, bool) {
	var zero T

	raw, ok := s.ReadRaw(ctx, key)
	if !ok {
		return zero, false
	}

	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		s.logger.Warn("discarding corrupted cache entry", zap.String("key", key), zap.Error(err))
		s.Remove(ctx, key)
		return zero, false
	}
	return value, true
}
