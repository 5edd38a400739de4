package di

import (
	"context"
	"io"
	"os"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-supply-cache/cache"
	"github.com/goliatone/go-supply-cache/entitycache"
	"github.com/goliatone/go-supply-cache/invalidation"
	"github.com/goliatone/go-supply-cache/projects"
	"github.com/goliatone/go-supply-cache/querycache"
	"github.com/goliatone/go-supply-cache/retry"
	"go.uber.org/zap"
)

// Container is the explicit context object of the caching layer. It owns the single
// Store and the components built on it, so a process can hold several independent
// instances (one per test, for example) instead of package level singletons.
type Container struct {
	config Config
	logger *zap.Logger
	now    func() time.Time
	rules  []invalidation.Rule

	store    cache.Store
	json     *cache.JSONStore
	markers  *cache.StaleMarkers
	breaker  *retry.CircuitBreaker
	entities *entitycache.EntityCache[*projects.Project]
	queries  *querycache.QueryCache
	engine   *invalidation.Engine
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

// WithClock sets the time source handed to every component.
func WithClock(now func() time.Time) Option {
	return func(c *Container) { c.now = now }
}

// WithStore uses store instead of building one from the store configuration.
func WithStore(store cache.Store) Option {
	return func(c *Container) { c.store = store }
}

// WithRules adds rules on top of the default rule set.
func WithRules(rules ...invalidation.Rule) Option {
	return func(c *Container) { c.rules = append(c.rules, rules...) }
}

// NewContainer validates config and wires the store, stale markers, entity cache,
// query cache and invalidation engine.
func NewContainer(config Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		config: config,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store == nil {
		store, err := cache.NewStore(config.Store, c.logger)
		if err != nil {
			return nil, err
		}
		c.store = store
	}

	if config.RulesFile != "" {
		rules, err := loadRulesFile(config.RulesFile)
		if err != nil {
			return nil, err
		}
		c.rules = append(c.rules, rules...)
	}

	c.json = cache.NewJSONStore(c.store, c.logger)
	c.markers = cache.NewStaleMarkers(c.json, c.now)

	breakerCfg := config.Breaker
	breakerCfg.Now = c.now
	breakerCfg.Logger = c.logger
	c.breaker = retry.NewCircuitBreaker(breakerCfg)

	c.entities = entitycache.New[*projects.Project](c.store,
		entitycache.WithIDFunc(projects.Key),
		entitycache.WithTTL[*projects.Project](config.Entity.TTL),
		entitycache.WithOfflineTTL[*projects.Project](config.Entity.OfflineTTL),
		entitycache.WithMaxRetries[*projects.Project](config.Entity.MaxRetries),
		entitycache.WithClock[*projects.Project](c.now),
		entitycache.WithLogger[*projects.Project](c.logger),
	)

	queries, err := querycache.New(c.store,
		querycache.WithConfig(config.Query),
		querycache.WithClock(c.now),
		querycache.WithLogger(c.logger),
		querycache.WithStaleMarkers(c.markers),
		querycache.WithRetry(c.retryConfig()),
		querycache.WithBreaker(c.breaker),
	)
	if err != nil {
		return nil, err
	}
	c.queries = queries

	c.engine = invalidation.New(c.entities, c.queries, c.markers,
		invalidation.WithStateReader(projects.NewStateReader(c.entities)),
		invalidation.WithClock(c.now),
		invalidation.WithLogger(c.logger),
	)
	if err := c.engine.AddRules(c.rules...); err != nil {
		return nil, err
	}

	return c, nil
}

// NewContainerWithDefaults creates a container from DefaultConfig.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(DefaultConfig(), opts...)
}

func loadRulesFile(path string) ([]invalidation.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "open rules file").
			WithTextCode("RULES_UNREADABLE")
	}
	defer f.Close()
	return invalidation.LoadRules(f)
}

func (c *Container) retryConfig() retry.Config {
	cfg := c.config.Retry
	if cfg.Logger == nil {
		cfg.Logger = c.logger
	}
	return cfg
}

// Config returns the configuration the container was built with.
func (c *Container) Config() Config {
	return c.config
}

// Store returns the shared durable store.
func (c *Container) Store() cache.Store {
	return c.store
}

// JSONStore returns the JSON view over the shared store.
func (c *Container) JSONStore() *cache.JSONStore {
	return c.json
}

// StaleMarkers returns the lazy invalidation markers.
func (c *Container) StaleMarkers() *cache.StaleMarkers {
	return c.markers
}

// Breaker returns the circuit breaker shared by remote reads and writes.
func (c *Container) Breaker() *retry.CircuitBreaker {
	return c.breaker
}

// EntityCache returns the projects entity cache.
func (c *Container) EntityCache() *entitycache.EntityCache[*projects.Project] {
	return c.entities
}

// QueryCache returns the query result cache.
func (c *Container) QueryCache() *querycache.QueryCache {
	return c.queries
}

// Engine returns the invalidation engine.
func (c *Container) Engine() *invalidation.Engine {
	return c.engine
}

// NewProjectService wires a project service over repo with the container's caches,
// engine, retry policy and breaker.
func (c *Container) NewProjectService(repo repository.Repository[*projects.Project]) *projects.Service {
	return projects.NewService(repo, c.entities, c.queries,
		projects.WithConfig(c.config.Projects),
		projects.WithEngine(c.engine),
		projects.WithStaleMarkers(c.markers),
		projects.WithRetry(c.retryConfig()),
		projects.WithBreaker(c.breaker),
		projects.WithClock(c.now),
		projects.WithLogger(c.logger),
	)
}

// ClearAll empties every cache region and stale marker, keeping the offline queue and
// dead letters.
func (c *Container) ClearAll(ctx context.Context) {
	c.entities.Clear(ctx)
	c.queries.Clear(ctx)
	c.markers.Clear(ctx)
	c.logger.Info("all caches cleared")
}

// Close stops pending scheduled invalidations and releases the store.
func (c *Container) Close() error {
	c.engine.ClearScheduled()
	if closer, ok := c.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
