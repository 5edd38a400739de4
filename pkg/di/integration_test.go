package di

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-supply-cache/cache"
	"github.com/goliatone/go-supply-cache/invalidation"
	"github.com/goliatone/go-supply-cache/projects"
	"github.com/goliatone/go-supply-cache/retry"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func seedProjects() []*projects.Project {
	return []*projects.Project{
		{ID: uuid.MustParse("5f0e4a4e-0d7e-4b43-9a0a-1c2d3e4f5a01"), Name: "Bracket", Status: projects.StatusActive, Stage: projects.StageRFQ},
		{ID: uuid.MustParse("5f0e4a4e-0d7e-4b43-9a0a-1c2d3e4f5a02"), Name: "Housing", Status: projects.StatusDraft, Stage: projects.StagePlanning},
	}
}

// mockProjectRepository provides a fake repository implementation for testing
type mockProjectRepository struct {
	mu        sync.RWMutex
	records   map[string]*projects.Project
	callCount map[string]int
}

func newMockProjectRepository() *mockProjectRepository {
	m := &mockProjectRepository{
		records:   make(map[string]*projects.Project),
		callCount: make(map[string]int),
	}
	for _, p := range seedProjects() {
		m.records[projects.Key(p)] = p
	}
	return m
}

func (m *mockProjectRepository) trackCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[method]++
}

func (m *mockProjectRepository) getCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount[method]
}

func (m *mockProjectRepository) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*projects.Project, error) {
	m.trackCall("GetByID")
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.records[id]
	if !ok {
		return nil, retry.NewError(retry.KindNotFound, "project not found")
	}
	cp := *p
	return &cp, nil
}

func (m *mockProjectRepository) Get(ctx context.Context, criteria ...repository.SelectCriteria) (*projects.Project, error) {
	m.trackCall("Get")
	return nil, retry.NewError(retry.KindNotFound, "project not found")
}

func (m *mockProjectRepository) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]*projects.Project, int, error) {
	m.trackCall("List")
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*projects.Project, 0, len(m.records))
	for _, p := range m.records {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (m *mockProjectRepository) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.trackCall("Count")
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *mockProjectRepository) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*projects.Project, error) {
	return m.GetByID(ctx, identifier, criteria...)
}

func (m *mockProjectRepository) Create(ctx context.Context, record *projects.Project, criteria ...repository.InsertCriteria) (*projects.Project, error) {
	m.trackCall("Create")
	return m.put(record), nil
}

func (m *mockProjectRepository) Update(ctx context.Context, record *projects.Project, criteria ...repository.UpdateCriteria) (*projects.Project, error) {
	m.trackCall("Update")
	return m.put(record), nil
}

func (m *mockProjectRepository) put(record *projects.Project) *projects.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.records[projects.Key(record)] = &cp
	out := cp
	return &out
}

func (m *mockProjectRepository) Delete(ctx context.Context, record *projects.Project) error {
	m.trackCall("Delete")
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, projects.Key(record))
	return nil
}

func (m *mockProjectRepository) CreateTx(ctx context.Context, tx bun.IDB, record *projects.Project, criteria ...repository.InsertCriteria) (*projects.Project, error) {
	return m.Create(ctx, record)
}
func (m *mockProjectRepository) CreateMany(ctx context.Context, records []*projects.Project, criteria ...repository.InsertCriteria) ([]*projects.Project, error) {
	return records, nil
}
func (m *mockProjectRepository) CreateManyTx(ctx context.Context, tx bun.IDB, records []*projects.Project, criteria ...repository.InsertCriteria) ([]*projects.Project, error) {
	return records, nil
}
func (m *mockProjectRepository) GetOrCreate(ctx context.Context, record *projects.Project) (*projects.Project, error) {
	return record, nil
}
func (m *mockProjectRepository) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *projects.Project) (*projects.Project, error) {
	return record, nil
}
func (m *mockProjectRepository) UpdateTx(ctx context.Context, tx bun.IDB, record *projects.Project, criteria ...repository.UpdateCriteria) (*projects.Project, error) {
	return m.Update(ctx, record)
}
func (m *mockProjectRepository) UpdateMany(ctx context.Context, records []*projects.Project, criteria ...repository.UpdateCriteria) ([]*projects.Project, error) {
	return records, nil
}
func (m *mockProjectRepository) UpdateManyTx(ctx context.Context, tx bun.IDB, records []*projects.Project, criteria ...repository.UpdateCriteria) ([]*projects.Project, error) {
	return records, nil
}
func (m *mockProjectRepository) Upsert(ctx context.Context, record *projects.Project, criteria ...repository.UpdateCriteria) (*projects.Project, error) {
	return record, nil
}
func (m *mockProjectRepository) UpsertTx(ctx context.Context, tx bun.IDB, record *projects.Project, criteria ...repository.UpdateCriteria) (*projects.Project, error) {
	return record, nil
}
func (m *mockProjectRepository) UpsertMany(ctx context.Context, records []*projects.Project, criteria ...repository.UpdateCriteria) ([]*projects.Project, error) {
	return records, nil
}
func (m *mockProjectRepository) UpsertManyTx(ctx context.Context, tx bun.IDB, records []*projects.Project, criteria ...repository.UpdateCriteria) ([]*projects.Project, error) {
	return records, nil
}
func (m *mockProjectRepository) DeleteTx(ctx context.Context, tx bun.IDB, record *projects.Project) error {
	return m.Delete(ctx, record)
}
func (m *mockProjectRepository) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return nil
}
func (m *mockProjectRepository) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return nil
}
func (m *mockProjectRepository) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return nil
}
func (m *mockProjectRepository) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return nil
}
func (m *mockProjectRepository) ForceDelete(ctx context.Context, record *projects.Project) error {
	return m.Delete(ctx, record)
}
func (m *mockProjectRepository) ForceDeleteTx(ctx context.Context, tx bun.IDB, record *projects.Project) error {
	return m.Delete(ctx, record)
}
func (m *mockProjectRepository) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (*projects.Project, error) {
	return m.Get(ctx, criteria...)
}
func (m *mockProjectRepository) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*projects.Project, error) {
	return m.GetByID(ctx, id, criteria...)
}
func (m *mockProjectRepository) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]*projects.Project, int, error) {
	return m.List(ctx, criteria...)
}
func (m *mockProjectRepository) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return m.Count(ctx, criteria...)
}
func (m *mockProjectRepository) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*projects.Project, error) {
	return m.GetByIdentifier(ctx, identifier, criteria...)
}
func (m *mockProjectRepository) Raw(ctx context.Context, sql string, args ...any) ([]*projects.Project, error) {
	return nil, nil
}
func (m *mockProjectRepository) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]*projects.Project, error) {
	return nil, nil
}
func (m *mockProjectRepository) Handlers() repository.ModelHandlers[*projects.Project] {
	return repository.ModelHandlers[*projects.Project]{}
}

func TestEndToEndProjectFlow(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("Failed to create DI container: %v", err)
	}
	defer container.Close()

	mockRepo := newMockProjectRepository()
	svc := container.NewProjectService(mockRepo)
	ctx := context.Background()
	active := projects.Filters{Status: projects.StatusActive}

	// First listing hits the repository
	first, err := svc.GetProjects(ctx, active, projects.ReadOptions{})
	if err != nil {
		t.Fatalf("First GetProjects failed: %v", err)
	}
	if first.FromCache || len(first.Data) != 2 {
		t.Errorf("unexpected first result: fromCache=%v, %d projects", first.FromCache, len(first.Data))
	}

	// Same listing is served from the query cache
	second, err := svc.GetProjects(ctx, active, projects.ReadOptions{})
	if err != nil {
		t.Fatalf("Second GetProjects failed: %v", err)
	}
	if !second.FromCache {
		t.Error("Expected the second listing to be served from cache")
	}
	if callCount := mockRepo.getCallCount("List"); callCount != 1 {
		t.Errorf("Expected List to be called once, got %d calls", callCount)
	}

	// An update invalidates the listing
	changed := *seedProjects()[1]
	changed.Status = projects.StatusActive
	if _, err := svc.UpdateProject(ctx, &changed); err != nil {
		t.Fatalf("UpdateProject failed: %v", err)
	}

	third, err := svc.GetProjects(ctx, active, projects.ReadOptions{})
	if err != nil {
		t.Fatalf("Third GetProjects failed: %v", err)
	}
	if third.FromCache {
		t.Error("Expected the listing to be fetched again after the update")
	}
	if callCount := mockRepo.getCallCount("List"); callCount != 2 {
		t.Errorf("Expected List to be called twice, got %d calls", callCount)
	}

	history := container.Engine().History()
	if len(history) != 1 {
		t.Fatalf("Expected one history event, got %d", len(history))
	}
	if history[0].Trigger.Table != projects.Table {
		t.Errorf("Expected event for %s, got %s", projects.Table, history[0].Trigger.Table)
	}

	if ids := container.QueryCache().IDs(ctx); len(ids) != 1 {
		t.Errorf("Expected one cached listing, got %v", ids)
	}
}

func TestSharedStoreKeyLayout(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("Failed to create DI container: %v", err)
	}
	defer container.Close()

	svc := container.NewProjectService(newMockProjectRepository())
	ctx := context.Background()

	if _, err := svc.GetProjects(ctx, projects.Filters{}, projects.ReadOptions{Preset: projects.PresetFull}); err != nil {
		t.Fatalf("GetProjects failed: %v", err)
	}
	container.Engine().ProcessDataChange(ctx, invalidation.MutationEvent{
		Table:     invalidation.TableProjectNotes,
		Operation: invalidation.OperationUpdate,
	})

	keys, err := container.Store().Keys(ctx, "")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	present := map[string]bool{}
	for _, key := range keys {
		switch {
		case key == cache.KeyEntityCache, key == cache.KeyEntityCacheTimestamp, key == cache.KeyOfflineCache:
			present[key] = true
		case len(key) > len(cache.QueryKeyPrefix) && key[:len(cache.QueryKeyPrefix)] == cache.QueryKeyPrefix:
			present["query"] = true
		case len(key) > len(cache.StaleKeyPrefix) && key[:len(cache.StaleKeyPrefix)] == cache.StaleKeyPrefix:
			present["stale"] = true
		}
	}

	for _, want := range []string{cache.KeyEntityCache, cache.KeyEntityCacheTimestamp, cache.KeyOfflineCache, "query", "stale"} {
		if !present[want] {
			t.Errorf("Expected %s in the store, keys: %v", want, keys)
		}
	}
}

func TestSQLiteContainerPersists(t *testing.T) {
	config := DefaultConfig()
	config.Store.Backend = cache.BackendSQLite
	config.Store.DSN = filepath.Join(t.TempDir(), "supply.db")

	ctx := context.Background()
	mockRepo := newMockProjectRepository()

	first, err := NewContainer(config)
	if err != nil {
		t.Fatalf("Failed to create sqlite container: %v", err)
	}
	if _, err := first.NewProjectService(mockRepo).GetProjects(ctx, projects.Filters{}, projects.ReadOptions{}); err != nil {
		t.Fatalf("GetProjects failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := NewContainer(config)
	if err != nil {
		t.Fatalf("Failed to reopen sqlite container: %v", err)
	}
	defer second.Close()

	result, err := second.NewProjectService(mockRepo).GetProjects(ctx, projects.Filters{}, projects.ReadOptions{})
	if err != nil {
		t.Fatalf("GetProjects after reopen failed: %v", err)
	}
	if !result.FromCache {
		t.Error("Expected the listing to survive a restart")
	}
	if callCount := mockRepo.getCallCount("List"); callCount != 1 {
		t.Errorf("Expected List to be called once, got %d calls", callCount)
	}
}

func TestScheduledInvalidationThroughContainer(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("Failed to create DI container: %v", err)
	}
	defer container.Close()

	ctx := context.Background()
	container.Engine().ProcessDataChange(ctx, invalidation.MutationEvent{
		Table:     invalidation.TableProjectContacts,
		Operation: invalidation.OperationUpdate,
		RecordID:  "c1",
	})

	if pending := container.Engine().PendingScheduled(); len(pending) != 1 {
		t.Fatalf("Expected one pending invalidation, got %v", pending)
	}

	// Close stops the timer before it fires.
	if err := container.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if pending := container.Engine().PendingScheduled(); len(pending) != 0 {
		t.Errorf("Expected no pending invalidations after Close, got %v", pending)
	}
}
