package querycache

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-supply-cache/cache"
	"github.com/goliatone/go-supply-cache/retry"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Defaults.
const (
	DefaultTTL             = 5 * time.Minute
	DefaultMetricsCapacity = 500
	DefaultSlowThreshold   = 2000 * time.Millisecond
	DefaultSweepAge        = 24 * time.Hour
)

// StaleTarget is the stale marker target type checked before serving a cached result.
const StaleTarget = "query_cache"

// ErrQueryInProgress is returned when the same query is already being fetched.
var ErrQueryInProgress = goerrors.New("query already in progress", goerrors.CategoryOperation).
	WithTextCode("QUERY_IN_PROGRESS")

// Config holds the tunables of a QueryCache.
type Config struct {
	DefaultTTL      time.Duration `toml:"default_ttl" yaml:"default_ttl"`
	MetricsCapacity int           `toml:"metrics_capacity" yaml:"metrics_capacity"`
	SlowThreshold   time.Duration `toml:"slow_threshold" yaml:"slow_threshold"`
	SweepAge        time.Duration `toml:"sweep_age" yaml:"sweep_age"`
}

// DefaultConfig returns 5 minute entries, 500 retained metrics, a 2s slow query
// threshold and a 24h sweep age.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      DefaultTTL,
		MetricsCapacity: DefaultMetricsCapacity,
		SlowThreshold:   DefaultSlowThreshold,
		SweepAge:        DefaultSweepAge,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.DefaultTTL, validation.Required, validation.Min(time.Millisecond)),
			validation.Field(&c.MetricsCapacity, validation.Required, validation.Min(1)),
			validation.Field(&c.SlowThreshold, validation.Required),
			validation.Field(&c.SweepAge, validation.Required),
		)
	}, "invalid query cache configuration")
	if err != nil {
		return err
	}
	return nil
}

// QueryCache stores parameterized read results keyed by query id, each with its own
// TTL, and keeps per query metrics.
type QueryCache struct {
	store    *cache.JSONStore
	markers  *cache.StaleMarkers
	cfg      Config
	retry    retry.Config
	breaker  *retry.CircuitBreaker
	now      func() time.Time
	logger   *zap.Logger
	inflight *xsync.MapOf[string, struct{}]
	metrics  *lru.Cache[string, Metric]
}

// Option configures a QueryCache.
type Option func(*QueryCache)

// WithConfig replaces the tunables.
func WithConfig(cfg Config) Option {
	return func(qc *QueryCache) { qc.cfg = cfg }
}

// WithClock sets the time source used for entry ages.
func WithClock(now func() time.Time) Option {
	return func(qc *QueryCache) { qc.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(qc *QueryCache) { qc.logger = logger }
}

// WithStaleMarkers makes cache hits check lazy invalidation markers.
func WithStaleMarkers(markers *cache.StaleMarkers) Option {
	return func(qc *QueryCache) { qc.markers = markers }
}

// WithMetricsCapacity bounds the number of retained query metrics.
func WithMetricsCapacity(n int) Option {
	return func(qc *QueryCache) { qc.cfg.MetricsCapacity = n }
}

// WithSlowThreshold sets the duration above which a query is reported as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(qc *QueryCache) { qc.cfg.SlowThreshold = d }
}

// WithSweepAge sets the age after which entries are swept on write.
func WithSweepAge(d time.Duration) Option {
	return func(qc *QueryCache) { qc.cfg.SweepAge = d }
}

// WithRetry sets the retry policy used for remote reads.
func WithRetry(cfg retry.Config) Option {
	return func(qc *QueryCache) { qc.retry = cfg }
}

// WithBreaker guards remote reads with a circuit breaker.
func WithBreaker(cb *retry.CircuitBreaker) Option {
	return func(qc *QueryCache) { qc.breaker = cb }
}

// New creates a query cache over store.
func New(store cache.Store, opts ...Option) (*QueryCache, error) {
	qc := &QueryCache{
		cfg:      DefaultConfig(),
		retry:    retry.DefaultConfig(),
		now:      time.Now,
		logger:   zap.NewNop(),
		inflight: xsync.NewMapOf[string, struct{}](),
	}
	for _, opt := range opts {
		opt(qc)
	}

	if err := qc.cfg.Validate(); err != nil {
		return nil, err
	}
	if qc.retry.Logger == nil {
		qc.retry.Logger = qc.logger
	}

	metrics, err := lru.New[string, Metric](qc.cfg.MetricsCapacity)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create metrics buffer")
	}
	qc.metrics = metrics
	qc.store = cache.NewJSONStore(store, qc.logger)
	return qc, nil
}

// Config returns the active tunables.
func (qc *QueryCache) Config() Config {
	return qc.cfg
}

// IDs returns the ids of every cached query.
func (qc *QueryCache) IDs(ctx context.Context) []string {
	var ids []string
	for _, key := range qc.store.Keys(ctx, cache.QueryKeyPrefix) {
		if cache.IsQueryTimestampKey(key) {
			continue
		}
		ids = append(ids, cache.QueryIDFromKey(key))
	}
	return ids
}

// Clear removes every cached query and returns how many entries were removed.
func (qc *QueryCache) Clear(ctx context.Context) int {
	keys := qc.store.Keys(ctx, cache.QueryKeyPrefix)
	qc.store.Remove(ctx, keys...)

	removed := 0
	for _, key := range keys {
		if !cache.IsQueryTimestampKey(key) {
			removed++
		}
	}
	qc.logger.Debug("query cache cleared", zap.Int("entries", removed))
	return removed
}

// ClearMatching removes the entries whose storage key matches the glob pattern. An
// empty pattern clears everything.
func (qc *QueryCache) ClearMatching(ctx context.Context, pattern string) int {
	if pattern == "" {
		return qc.Clear(ctx)
	}

	re := cache.CompilePattern(pattern)
	removed := 0
	for _, key := range qc.store.Keys(ctx, cache.QueryKeyPrefix) {
		if cache.IsQueryTimestampKey(key) || !re.MatchString(key) {
			continue
		}
		id := cache.QueryIDFromKey(key)
		qc.store.Remove(ctx, key, cache.QueryTimestampKey(id))
		removed++
	}

	qc.logger.Debug("query cache entries cleared",
		zap.String("pattern", pattern),
		zap.Int("entries", removed),
	)
	return removed
}

// Sweep removes entries older than the sweep age, and entries whose timestamp is
// missing. It returns the number of entries removed.
func (qc *QueryCache) Sweep(ctx context.Context) int {
	keys := qc.store.Keys(ctx, cache.QueryKeyPrefix)
	present := make(map[string]bool, len(keys))
	for _, key := range keys {
		present[key] = true
	}

	now := qc.now()
	removed := 0
	for _, key := range keys {
		if cache.IsQueryTimestampKey(key) {
			continue
		}
		id := cache.QueryIDFromKey(key)
		tsKey := cache.QueryTimestampKey(id)

		if present[tsKey] {
			written, ok := qc.store.ReadTimestamp(ctx, tsKey)
			if ok && now.Sub(written) <= qc.cfg.SweepAge {
				continue
			}
		}
		qc.store.Remove(ctx, key, tsKey)
		removed++
	}

	if removed > 0 {
		qc.logger.Debug("swept old query cache entries", zap.Int("entries", removed))
	}
	return removed
}

// writtenAt returns the write time of an entry.
func (qc *QueryCache) writtenAt(ctx context.Context, id string) (time.Time, bool) {
	return qc.store.ReadTimestamp(ctx, cache.QueryTimestampKey(id))
}

// isMarkedStale reports whether a lazy invalidation marker covers the entry.
func (qc *QueryCache) isMarkedStale(ctx context.Context, id string, written time.Time) bool {
	if qc.markers == nil {
		return false
	}
	return qc.markers.IsStale(ctx, StaleTarget, cache.QueryKey(id), written)
}

func ttlOrDefault(ttl, fallback time.Duration) time.Duration {
	if ttl <= 0 {
		return fallback
	}
	return ttl
}

func operationName(op string) string {
	if strings.TrimSpace(op) == "" {
		return "query"
	}
	return op
}
