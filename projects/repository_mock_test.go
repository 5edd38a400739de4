package projects_test

import (
	"context"
	"sort"
	"sync"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-supply-cache/projects"
	"github.com/goliatone/go-supply-cache/retry"
	"github.com/uptrace/bun"
)

// mockRepository keeps projects in memory and records every call. Criteria are not
// evaluated; List returns every record ordered by name.
type mockRepository struct {
	mu      sync.Mutex
	calls   []string
	records map[string]*projects.Project

	listError   error
	getError    error
	createError error
	updateError error
	deleteError error
}

func newMockRepository(seed ...*projects.Project) *mockRepository {
	m := &mockRepository{records: make(map[string]*projects.Project)}
	for _, p := range seed {
		cp := *p
		m.records[projects.Key(p)] = &cp
	}
	return m
}

func (m *mockRepository) recordCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

func (m *mockRepository) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.calls))
	copy(result, m.calls)
	return result
}

func (m *mockRepository) countCalls(method string) int {
	n := 0
	for _, call := range m.getCalls() {
		if call == method {
			n++
		}
	}
	return n
}

func (m *mockRepository) stored(id string) (*projects.Project, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[id]
	return p, ok
}

func (m *mockRepository) setError(field *error, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field = err
}

func notFound(id string) error {
	return retry.NewError(retry.KindNotFound, "project "+id+" not found")
}

func (m *mockRepository) Get(ctx context.Context, criteria ...repository.SelectCriteria) (*projects.Project, error) {
	m.recordCall("Get")
	return nil, notFound("")
}

func (m *mockRepository) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*projects.Project, error) {
	m.recordCall("GetByID")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	p, ok := m.records[id]
	if !ok {
		return nil, notFound(id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepository) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]*projects.Project, int, error) {
	m.recordCall("List")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listError != nil {
		return nil, 0, m.listError
	}
	out := make([]*projects.Project, 0, len(m.records))
	for _, p := range m.records {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (m *mockRepository) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.recordCall("Count")
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func (m *mockRepository) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*projects.Project, error) {
	m.recordCall("GetByIdentifier")
	return m.GetByID(ctx, identifier, criteria...)
}

func (m *mockRepository) Create(ctx context.Context, record *projects.Project, criteria ...repository.InsertCriteria) (*projects.Project, error) {
	m.recordCall("Create")
	return m.save(record, m.createError)
}

func (m *mockRepository) Update(ctx context.Context, record *projects.Project, criteria ...repository.UpdateCriteria) (*projects.Project, error) {
	m.recordCall("Update")
	return m.save(record, m.updateError)
}

func (m *mockRepository) save(record *projects.Project, failure error) (*projects.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if failure != nil {
		return nil, failure
	}
	cp := *record
	m.records[projects.Key(record)] = &cp
	out := cp
	return &out, nil
}

func (m *mockRepository) Delete(ctx context.Context, record *projects.Project) error {
	m.recordCall("Delete")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteError != nil {
		return m.deleteError
	}
	delete(m.records, projects.Key(record))
	return nil
}

// Remaining methods satisfy repository.Repository and are not used by the service.

func (m *mockRepository) Raw(ctx context.Context, sql string, args ...any) ([]*projects.Project, error) {
	return nil, nil
}
func (m *mockRepository) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]*projects.Project, error) {
	return nil, nil
}
func (m *mockRepository) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (*projects.Project, error) {
	return nil, nil
}
func (m *mockRepository) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*projects.Project, error) {
	return nil, nil
}
func (m *mockRepository) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]*projects.Project, int, error) {
	return nil, 0, nil
}
func (m *mockRepository) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return 0, nil
}
func (m *mockRepository) CreateTx(ctx context.Context, tx bun.IDB, record *projects.Project, criteria ...repository.InsertCriteria) (*projects.Project, error) {
	return record, nil
}
func (m *mockRepository) CreateMany(ctx context.Context, records []*projects.Project, criteria ...repository.InsertCriteria) ([]*projects.Project, error) {
	return records, nil
}
func (m *mockRepository) CreateManyTx(ctx context.Context, tx bun.IDB, records []*projects.Project, criteria ...repository.InsertCriteria) ([]*projects.Project, error) {
	return records, nil
}
func (m *mockRepository) GetOrCreate(ctx context.Context, record *projects.Project) (*projects.Project, error) {
	return record, nil
}
func (m *mockRepository) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *projects.Project) (*projects.Project, error) {
	return record, nil
}
func (m *mockRepository) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*projects.Project, error) {
	return nil, nil
}
func (m *mockRepository) UpdateTx(ctx context.Context, tx bun.IDB, record *projects.Project, criteria ...repository.UpdateCriteria) (*projects.Project, error) {
	return record, nil
}
func (m *mockRepository) UpdateMany(ctx context.Context, records []*projects.Project, criteria ...repository.UpdateCriteria) ([]*projects.Project, error) {
	return records, nil
}
func (m *mockRepository) UpdateManyTx(ctx context.Context, tx bun.IDB, records []*projects.Project, criteria ...repository.UpdateCriteria) ([]*projects.Project, error) {
	return records, nil
}
func (m *mockRepository) Upsert(ctx context.Context, record *projects.Project, criteria ...repository.UpdateCriteria) (*projects.Project, error) {
	return record, nil
}
func (m *mockRepository) UpsertTx(ctx context.Context, tx bun.IDB, record *projects.Project, criteria ...repository.UpdateCriteria) (*projects.Project, error) {
	return record, nil
}
func (m *mockRepository) UpsertMany(ctx context.Context, records []*projects.Project, criteria ...repository.UpdateCriteria) ([]*projects.Project, error) {
	return records, nil
}
func (m *mockRepository) UpsertManyTx(ctx context.Context, tx bun.IDB, records []*projects.Project, criteria ...repository.UpdateCriteria) ([]*projects.Project, error) {
	return records, nil
}
func (m *mockRepository) DeleteTx(ctx context.Context, tx bun.IDB, record *projects.Project) error {
	return nil
}
func (m *mockRepository) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return nil
}
func (m *mockRepository) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return nil
}
func (m *mockRepository) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return nil
}
func (m *mockRepository) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return nil
}
func (m *mockRepository) ForceDelete(ctx context.Context, record *projects.Project) error {
	return nil
}
func (m *mockRepository) ForceDeleteTx(ctx context.Context, tx bun.IDB, record *projects.Project) error {
	return nil
}
func (m *mockRepository) Handlers() repository.ModelHandlers[*projects.Project] {
	return repository.ModelHandlers[*projects.Project]{}
}

var _ repository.Repository[*projects.Project] = (*mockRepository)(nil)
