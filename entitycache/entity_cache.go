package entitycache

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/goliatone/go-supply-cache/cache"
	"go.uber.org/zap"
)

// Default TTLs.
const (
	DefaultTTL        = 15 * time.Minute
	DefaultOfflineTTL = 24 * time.Hour
)

// EntityCache stores the whole working set of one entity type as a single collection
// plus its write time, an extended TTL offline copy and the offline mutation queue.
type EntityCache[T any] struct {
	store      *cache.JSONStore
	keys       cache.EntityKeys
	idOf       func(T) string
	ttl        time.Duration
	offlineTTL time.Duration
	maxRetries int
	now        func() time.Time
	logger     *zap.Logger

	// mu serializes read-modify-write cycles on the collection and the queue.
	mu sync.Mutex
}

// Option configures an EntityCache.
type Option[T any] func(*EntityCache[T])

// WithKeys overrides the storage keys, see cache.EntityKeysFor.
func WithKeys[T any](keys cache.EntityKeys) Option[T] {
	return func(c *EntityCache[T]) { c.keys = keys }
}

// WithIDFunc sets the primary key extractor.
func WithIDFunc[T any](fn func(T) string) Option[T] {
	return func(c *EntityCache[T]) { c.idOf = fn }
}

// WithTTL sets how long the online collection is trusted.
func WithTTL[T any](ttl time.Duration) Option[T] {
	return func(c *EntityCache[T]) { c.ttl = ttl }
}

// WithOfflineTTL sets how long the offline copy is trusted.
func WithOfflineTTL[T any](ttl time.Duration) Option[T] {
	return func(c *EntityCache[T]) { c.offlineTTL = ttl }
}

// WithMaxRetries sets the retry ceiling of offline queue items.
func WithMaxRetries[T any](n int) Option[T] {
	return func(c *EntityCache[T]) { c.maxRetries = n }
}

// WithClock sets the time source.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *EntityCache[T]) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger[T any](logger *zap.Logger) Option[T] {
	return func(c *EntityCache[T]) { c.logger = logger }
}

// New creates an entity cache over store. Without WithIDFunc the primary key is read
// from an ID (or Id) field by reflection.
func New[T any](store cache.Store, opts ...Option[T]) *EntityCache[T] {
	c := &EntityCache[T]{
		keys:       cache.DefaultEntityKeys(),
		idOf:       reflectID[T],
		ttl:        DefaultTTL,
		offlineTTL: DefaultOfflineTTL,
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.store = cache.NewJSONStore(store, c.logger)
	return c
}

// Keys returns the storage keys owned by this cache.
func (c *EntityCache[T]) Keys() cache.EntityKeys {
	return c.keys
}

// All returns the cached collection while it is inside its TTL.
func (c *EntityCache[T]) All(ctx context.Context) ([]T, bool) {
	if !c.IsValid(ctx) {
		return nil, false
	}
	return cache.Read[[]T](ctx, c.store, c.keys.Collection)
}

// IsValid reports whether a collection was written less than TTL ago.
func (c *EntityCache[T]) IsValid(ctx context.Context) bool {
	written, ok := c.store.ReadTimestamp(ctx, c.keys.Timestamp)
	if !ok {
		return false
	}
	return c.now().Sub(written) < c.ttl
}

// WrittenAt returns the write time of the collection.
func (c *EntityCache[T]) WrittenAt(ctx context.Context) (time.Time, bool) {
	return c.store.ReadTimestamp(ctx, c.keys.Timestamp)
}

// Get returns one entity by primary key. A missing entity, or a missing or expired
// collection, is a miss; the cache is not touched.
func (c *EntityCache[T]) Get(ctx context.Context, id string) (T, bool) {
	var zero T
	items, ok := c.All(ctx)
	if !ok {
		return zero, false
	}
	for _, item := range items {
		if c.idOf(item) == id {
			return item, true
		}
	}
	return zero, false
}

// Replace stores items as the whole collection and stamps the write time. Duplicate
// primary keys collapse to the last occurrence, kept at the first occurrence's position.
func (c *EntityCache[T]) Replace(ctx context.Context, items []T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.writeCollection(ctx, c.dedupe(items), true)
}

// Upsert patches item into the cached collection, appending it when absent. Without a
// cached collection it is a no-op: a single entity is not a working set.
func (c *EntityCache[T]) Upsert(ctx context.Context, item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, ok := cache.Read[[]T](ctx, c.store, c.keys.Collection)
	if !ok {
		return false
	}

	id := c.idOf(item)
	for i := range items {
		if c.idOf(items[i]) == id {
			items[i] = item
			return c.writeCollection(ctx, items, false)
		}
	}
	return c.writeCollection(ctx, append(items, item), false)
}

// Update applies fn to the entity with the given primary key. A missing entity is
// logged and ignored.
func (c *EntityCache[T]) Update(ctx context.Context, id string, fn func(T) T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, ok := cache.Read[[]T](ctx, c.store, c.keys.Collection)
	if !ok {
		return false
	}

	for i := range items {
		if c.idOf(items[i]) == id {
			items[i] = fn(items[i])
			return c.writeCollection(ctx, items, false)
		}
	}

	c.logger.Debug("entity not cached, update skipped",
		zap.String("key", c.keys.Collection),
		zap.String("id", id),
	)
	return false
}

// Remove drops one entity from the cached collection.
func (c *EntityCache[T]) Remove(ctx context.Context, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, ok := cache.Read[[]T](ctx, c.store, c.keys.Collection)
	if !ok {
		return false
	}

	kept := items[:0]
	removed := false
	for _, item := range items {
		if c.idOf(item) == id {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return false
	}
	return c.writeCollection(ctx, kept, false)
}

// Clear removes the collection and its timestamp. The offline copy and the queue stay.
func (c *EntityCache[T]) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Remove(ctx, c.keys.Collection, c.keys.Timestamp)
}

type offlineRecord[T any] struct {
	Collection []T   `json:"collection"`
	Timestamp  int64 `json:"timestamp"`
	ExpiresAt  int64 `json:"expiresAt"`
}

// SaveOffline stores the extended TTL copy used while the remote store is unreachable.
func (c *EntityCache[T]) SaveOffline(ctx context.Context, items []T) bool {
	now := c.now()
	return c.store.Write(ctx, c.keys.Offline, offlineRecord[T]{
		Collection: c.dedupe(items),
		Timestamp:  now.UnixMilli(),
		ExpiresAt:  now.Add(c.offlineTTL).UnixMilli(),
	})
}

// LoadOffline returns the offline copy unless it has expired. An expired copy is removed.
func (c *EntityCache[T]) LoadOffline(ctx context.Context) ([]T, bool) {
	record, ok := cache.Read[offlineRecord[T]](ctx, c.store, c.keys.Offline)
	if !ok {
		return nil, false
	}
	if c.now().UnixMilli() >= record.ExpiresAt {
		c.store.Remove(ctx, c.keys.Offline)
		return nil, false
	}
	return record.Collection, true
}

// ClearOffline removes the offline copy.
func (c *EntityCache[T]) ClearOffline(ctx context.Context) {
	c.store.Remove(ctx, c.keys.Offline)
}

func (c *EntityCache[T]) writeCollection(ctx context.Context, items []T, stamp bool) bool {
	if items == nil {
		items = []T{}
	}
	if !c.store.Write(ctx, c.keys.Collection, items) {
		return false
	}
	if stamp {
		return c.store.WriteTimestamp(ctx, c.keys.Timestamp, c.now())
	}
	return true
}

func (c *EntityCache[T]) dedupe(items []T) []T {
	out := make([]T, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		id := c.idOf(item)
		if pos, seen := index[id]; seen {
			out[pos] = item
			continue
		}
		index[id] = len(out)
		out = append(out, item)
	}
	return out
}

// reflectID reads an ID or Id field (or the same on the pointed-to struct).
func reflectID[T any](item T) string {
	v := reflect.ValueOf(item)
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.Kind() != reflect.Struct {
		return ""
	}

	for _, name := range []string{"ID", "Id"} {
		field := v.FieldByName(name)
		if !field.IsValid() || !field.CanInterface() {
			continue
		}
		if s, ok := field.Interface().(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprintf("%v", field.Interface())
	}
	return ""
}
