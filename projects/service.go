package projects

import (
	"context"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-supply-cache/cache"
	"github.com/goliatone/go-supply-cache/entitycache"
	"github.com/goliatone/go-supply-cache/invalidation"
	"github.com/goliatone/go-supply-cache/querycache"
	"github.com/goliatone/go-supply-cache/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OperationList is the query cache operation name of project listings.
const OperationList = "getProjects"

// OfflineMessage accompanies results served while the client is offline.
const OfflineMessage = "offline: showing the last synced data"

var (
	// ErrOffline is returned by reads with nothing cached to serve while offline.
	ErrOffline = goerrors.New("client is offline", goerrors.CategoryExternal).
			WithTextCode("OFFLINE")

	// ErrProjectRequired is returned when a nil project is written.
	ErrProjectRequired = goerrors.New("project is required", goerrors.CategoryBadInput).
				WithTextCode("PROJECT_REQUIRED")
)

// Config controls the service.
type Config struct {
	// RequestTimeout bounds every remote call attempt. Zero disables the timer.
	RequestTimeout time.Duration `toml:"request_timeout" yaml:"request_timeout"`

	// QueryTTL is the freshness window of cached listings.
	QueryTTL time.Duration `toml:"query_ttl" yaml:"query_ttl"`
}

// DefaultConfig returns a 10s request timeout and a 5m listing TTL.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 10 * time.Second,
		QueryTTL:       querycache.DefaultTTL,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.RequestTimeout, validation.Min(time.Duration(0))),
			validation.Field(&c.QueryTTL, validation.Min(time.Duration(0))),
		)
	}, "invalid projects configuration")
	if err != nil {
		return err
	}
	return nil
}

// ReadOptions tunes a read. The zero value reads through the caches with the default
// preset.
type ReadOptions struct {
	// Fresh skips cached data and goes to the remote store.
	Fresh  bool
	Preset Preset
	TTL    time.Duration
}

// Lookup is the outcome of a single project read.
type Lookup struct {
	Project   *Project
	FromCache bool
	Stale     bool
	Message   string
}

// Service reads projects through the entity and query caches and writes them to the
// remote repository, emitting a mutation event for every successful write.
type Service struct {
	repo     repository.Repository[*Project]
	entities *entitycache.EntityCache[*Project]
	queries  *querycache.QueryCache
	engine   *invalidation.Engine
	markers  *cache.StaleMarkers
	retry    retry.Config
	breaker  *retry.CircuitBreaker
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
	online   atomic.Bool
}

// Option configures a Service.
type Option func(*Service)

// WithConfig replaces the service configuration.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithEngine routes mutation events to engine.
func WithEngine(engine *invalidation.Engine) Option {
	return func(s *Service) { s.engine = engine }
}

// WithStaleMarkers makes entity reads honour lazy invalidation markers.
func WithStaleMarkers(markers *cache.StaleMarkers) Option {
	return func(s *Service) { s.markers = markers }
}

// WithRetry sets the retry policy of single record reads and writes.
func WithRetry(cfg retry.Config) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithBreaker guards single record reads and writes with cb.
func WithBreaker(cb *retry.CircuitBreaker) Option {
	return func(s *Service) { s.breaker = cb }
}

// WithClock sets the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a service over repo. The service starts online.
func NewService(
	repo repository.Repository[*Project],
	entities *entitycache.EntityCache[*Project],
	queries *querycache.QueryCache,
	opts ...Option,
) *Service {
	s := &Service{
		repo:     repo,
		entities: entities,
		queries:  queries,
		retry:    retry.DefaultConfig(),
		cfg:      DefaultConfig(),
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.online.Store(true)
	return s
}

// SetOnline records connectivity. Offline, reads are served from cached data only and
// mutations are queued for SyncOffline.
func (s *Service) SetOnline(online bool) {
	if s.online.Swap(online) != online {
		s.logger.Info("connectivity changed", zap.Bool("online", online))
	}
}

// IsOnline reports the recorded connectivity.
func (s *Service) IsOnline() bool {
	return s.online.Load()
}

// GetProjects lists projects through the query cache. An unfiltered full listing also
// refreshes the entity cache and its offline copy.
func (s *Service) GetProjects(ctx context.Context, filters Filters, opts ReadOptions) (querycache.Result[*Project], error) {
	if err := filters.Validate(); err != nil {
		return querycache.Result[*Project]{Data: []*Project{}}, err
	}

	preset := opts.Preset.orDefault()
	req := querycache.Request{
		Operation: OperationList,
		Filters:   filters.Map(),
		Preset:    string(preset),
		UseCache:  !opts.Fresh,
		TTL:       s.ttl(opts.TTL),
		Offset:    filters.Offset,
		Limit:     filters.Limit,
	}
	workingSet := preset == PresetFull && filters.isEmpty()

	if !s.IsOnline() {
		return s.offlineListing(ctx, req, workingSet)
	}

	criteria := append(filters.Criteria(), preset.Criteria())
	result, err := querycache.Execute(ctx, s.queries, req, func(ctx context.Context) (querycache.Page[*Project], error) {
		return retry.WithTimeout(ctx, s.cfg.RequestTimeout, func(ctx context.Context) (querycache.Page[*Project], error) {
			records, total, err := s.repo.List(ctx, criteria...)
			if err != nil {
				return querycache.Page[*Project]{}, err
			}
			return querycache.Page[*Project]{Data: records, TotalCount: &total}, nil
		})
	})
	if err != nil {
		return result, err
	}

	if workingSet && !result.FromCache {
		s.entities.Replace(ctx, result.Data)
		s.entities.SaveOffline(ctx, result.Data)
	}
	return result, nil
}

func (s *Service) offlineListing(ctx context.Context, req querycache.Request, workingSet bool) (querycache.Result[*Project], error) {
	if cached, ok := querycache.Get[*Project](ctx, s.queries, req.ID(), 2*req.TTL); ok {
		cached.FromCache = true
		cached.Stale = true
		cached.Message = OfflineMessage
		return cached, nil
	}
	if workingSet {
		if items, ok := s.entities.LoadOffline(ctx); ok {
			return querycache.Result[*Project]{
				Data:      items,
				Count:     len(items),
				FromCache: true,
				Stale:     true,
				Message:   OfflineMessage,
			}, nil
		}
	}
	return querycache.Result[*Project]{Data: []*Project{}}, ErrOffline
}

// GetProjectByID reads one project, entity cache first. The remote read defaults to the
// full preset; only full records are written back to the entity cache.
func (s *Service) GetProjectByID(ctx context.Context, id string, opts ReadOptions) (Lookup, error) {
	if !opts.Fresh {
		if project, ok := s.cached(ctx, id); ok {
			return Lookup{Project: project, FromCache: true}, nil
		}
	}

	if !s.IsOnline() {
		if project, ok := s.offline(ctx, id); ok {
			return Lookup{Project: project, FromCache: true, Stale: true, Message: OfflineMessage}, nil
		}
		return Lookup{}, ErrOffline
	}

	preset := opts.Preset
	if preset == "" {
		preset = PresetFull
	}

	project, err := call(ctx, s, "get_project", func(ctx context.Context) (*Project, error) {
		return s.repo.GetByID(ctx, id, preset.Criteria())
	})
	if err != nil {
		if project, ok := s.offline(ctx, id); ok {
			s.logger.Warn("serving offline copy of project", zap.String("id", id), zap.Error(err))
			return Lookup{Project: project, FromCache: true, Stale: true, Message: querycache.StaleMessage}, nil
		}
		return Lookup{}, err
	}

	if preset == PresetFull {
		s.entities.Upsert(ctx, project)
	}
	return Lookup{Project: project}, nil
}

func (s *Service) cached(ctx context.Context, id string) (*Project, bool) {
	project, ok := s.entities.Get(ctx, id)
	if !ok {
		return nil, false
	}
	if s.markers != nil {
		written, _ := s.entities.WrittenAt(ctx)
		if s.markers.IsStale(ctx, string(invalidation.TargetMainCache), id, written) ||
			s.markers.IsStale(ctx, string(invalidation.TargetSpecificEntity), id, written) {
			s.logger.Debug("cached project marked stale", zap.String("id", id))
			return nil, false
		}
	}
	return project, true
}

func (s *Service) offline(ctx context.Context, id string) (*Project, bool) {
	items, ok := s.entities.LoadOffline(ctx)
	if !ok {
		return nil, false
	}
	for _, item := range items {
		if Key(item) == id {
			return item, true
		}
	}
	return nil, false
}

// CreateProject writes a new project. A missing id is generated. Offline, the project
// is queued and returned as is.
func (s *Service) CreateProject(ctx context.Context, project *Project) (*Project, error) {
	if project == nil {
		return nil, ErrProjectRequired
	}
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	now := s.now()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	if err := project.Validate(); err != nil {
		return nil, err
	}

	if !s.IsOnline() {
		return project, s.enqueue(ctx, entitycache.OperationCreate, project)
	}
	return s.create(ctx, project)
}

func (s *Service) create(ctx context.Context, project *Project) (*Project, error) {
	created, err := call(ctx, s, "create_project", func(ctx context.Context) (*Project, error) {
		return s.repo.Create(ctx, project)
	})
	if err != nil {
		return nil, err
	}

	s.entities.Upsert(ctx, created)
	s.notify(ctx, invalidation.OperationInsert, Key(created), nil, created.Fields())
	return created, nil
}

// UpdateProject writes project over the stored record with the same id.
func (s *Service) UpdateProject(ctx context.Context, project *Project) (*Project, error) {
	if project == nil {
		return nil, ErrProjectRequired
	}
	project.UpdatedAt = s.now()
	if err := project.Validate(); err != nil {
		return nil, err
	}

	if !s.IsOnline() {
		return project, s.enqueue(ctx, entitycache.OperationUpdate, project)
	}
	return s.update(ctx, project)
}

func (s *Service) update(ctx context.Context, project *Project) (*Project, error) {
	id := Key(project)
	previous := s.previous(ctx, id)

	updated, err := call(ctx, s, "update_project", func(ctx context.Context) (*Project, error) {
		return s.repo.Update(ctx, project)
	})
	if err != nil {
		return nil, err
	}

	s.entities.Upsert(ctx, updated)
	s.notify(ctx, invalidation.OperationUpdate, id, previous.Fields(), updated.Fields())
	return updated, nil
}

// DeleteProject removes the project with id.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid project id").
			WithTextCode("INVALID_PROJECT_ID")
	}

	if !s.IsOnline() {
		return s.enqueue(ctx, entitycache.OperationDelete, &Project{ID: uid})
	}
	return s.remove(ctx, uid)
}

func (s *Service) remove(ctx context.Context, uid uuid.UUID) error {
	id := uid.String()
	previous := s.previous(ctx, id)

	_, err := call(ctx, s, "delete_project", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.Delete(ctx, &Project{ID: uid})
	})
	if err != nil {
		return err
	}

	s.entities.Remove(ctx, id)
	s.notify(ctx, invalidation.OperationDelete, id, previous.Fields(), nil)
	return nil
}

// previous returns the last known state of a record for change detection. The remote
// read is best effort and not retried.
func (s *Service) previous(ctx context.Context, id string) *Project {
	if project, ok := s.entities.Get(ctx, id); ok {
		return project
	}
	project, err := retry.WithTimeout(ctx, s.cfg.RequestTimeout, func(ctx context.Context) (*Project, error) {
		return s.repo.GetByID(ctx, id)
	})
	if err != nil {
		s.logger.Debug("previous project state unavailable", zap.String("id", id), zap.Error(err))
		return nil
	}
	return project
}

func (s *Service) notify(ctx context.Context, op invalidation.Operation, id string, oldData, newData map[string]any) {
	if s.engine == nil {
		return
	}
	s.engine.ProcessDataChange(ctx, invalidation.MutationEvent{
		Table:     Table,
		Operation: op,
		RecordID:  id,
		OldData:   oldData,
		NewData:   newData,
	})
}

func (s *Service) ttl(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	if s.cfg.QueryTTL > 0 {
		return s.cfg.QueryTTL
	}
	return querycache.DefaultTTL
}

// call runs one remote call through the retry policy, the breaker when set, and the
// per attempt timeout.
func call[T any](ctx context.Context, s *Service, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := func(ctx context.Context) (T, error) {
		return retry.WithTimeout(ctx, s.cfg.RequestTimeout, fn)
	}
	guarded := attempt
	if s.breaker != nil {
		guarded = func(ctx context.Context) (T, error) {
			return retry.Guard(ctx, s.breaker, attempt)
		}
	}

	outcome := retry.Execute(ctx, guarded, s.retry)
	if !outcome.Success {
		s.logger.Warn("project operation failed",
			zap.String("operation", operation),
			zap.Int("attempts", outcome.Attempts),
			zap.Error(outcome.Err),
		)
	}
	return outcome.Unwrap()
}

func (f Filters) isEmpty() bool {
	return f.Status == "" && f.Stage == "" && f.Priority == "" && f.SupplierID == "" &&
		f.Search == "" && f.Offset == 0 && f.Limit == 0
}
