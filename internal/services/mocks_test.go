package services

import (
	"context"
	"sort"
	"sync"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/asakaida/warehouse/internal/repositories"
)

// In-memory ProjectRepository
type mockProjectRepository struct {
	mu       sync.Mutex
	projects map[int64]*entities.Project
	nextID   int64
	created  []entities.AttributeInput
	attrs    *mockAttributeRepository
	getCalls int
	// beforeView runs ahead of GetWithAttributes, e.g. to delete the project concurrently
	beforeView func(id int64)
}

func newMockProjectRepository(attrs *mockAttributeRepository) *mockProjectRepository {
	return &mockProjectRepository{projects: make(map[int64]*entities.Project), attrs: attrs}
}

func (m *mockProjectRepository) add(p entities.Project) *entities.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	m.projects[p.ID] = &p
	if m.attrs != nil {
		m.attrs.addProject(p.ID)
	}
	return &p
}

func (m *mockProjectRepository) Create(ctx context.Context, project *entities.Project, attrs []entities.AttributeInput) (*entities.Project, error) {
	p := *project
	if err := p.Validate(); err != nil {
		return nil, err
	}
	created := m.add(p)
	m.created = attrs
	for _, a := range attrs {
		if _, err := m.attrs.Upsert(ctx, created.ID, a.Key, a.Value, false); err != nil {
			return nil, err
		}
	}
	return created, nil
}

func (m *mockProjectRepository) Get(ctx context.Context, id int64) (*entities.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	p, ok := m.projects[id]
	if !ok {
		return nil, entities.NewNotFoundError("project", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockProjectRepository) GetWithAttributes(ctx context.Context, id int64) (*entities.Project, []*entities.ProjectAttribute, error) {
	if m.beforeView != nil {
		m.beforeView(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	p, ok := m.projects[id]
	if !ok {
		return nil, nil, entities.NewNotFoundError("project", id)
	}
	cp := *p
	var rows []*entities.ProjectAttribute
	if m.attrs != nil {
		rows, _ = m.attrs.List(ctx, id)
	}
	return &cp, rows, nil
}

func (m *mockProjectRepository) GetByName(ctx context.Context, name string) (*entities.Project, error) {
	return m.find(func(p *entities.Project) bool { return p.Name == name }, name)
}

func (m *mockProjectRepository) GetByAddress(ctx context.Context, address string) (*entities.Project, error) {
	return m.find(func(p *entities.Project) bool { return p.ContractAddress == address }, address)
}

func (m *mockProjectRepository) find(match func(*entities.Project) bool, key string) (*entities.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.sorted() {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, entities.NewNotFoundError("project", key)
}

func (m *mockProjectRepository) sorted() []*entities.Project {
	out := make([]*entities.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockProjectRepository) List(ctx context.Context, filter *repositories.ProjectFilter) ([]*entities.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.Project
	for _, p := range m.sorted() {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if p.ID <= filter.AfterID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProjectRepository) Update(ctx context.Context, project *entities.Project) (*entities.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[project.ID]; !ok {
		return nil, entities.NewNotFoundError("project", project.ID)
	}
	p := *project
	m.projects[p.ID] = &p
	return &p, nil
}

func (m *mockProjectRepository) Delete(ctx context.Context, id int64) (*entities.CascadeSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return nil, entities.NewNotFoundError("project", id)
	}
	delete(m.projects, id)
	n := int64(0)
	if m.attrs != nil {
		n = m.attrs.dropProject(id)
	}
	return &entities.CascadeSummary{Projects: 1, Attributes: n}, nil
}

// In-memory AttributeRepository honouring the kind guard
type mockAttributeRepository struct {
	mu         sync.Mutex
	rows       map[int64]map[string]*entities.ProjectAttribute
	nextID     int64
	upsertErr  error
	upsertHits int
}

func newMockAttributeRepository() *mockAttributeRepository {
	return &mockAttributeRepository{rows: make(map[int64]map[string]*entities.ProjectAttribute)}
}

func (m *mockAttributeRepository) addProject(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		m.rows[id] = make(map[string]*entities.ProjectAttribute)
	}
}

func (m *mockAttributeRepository) dropProject(id int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.rows[id]))
	delete(m.rows, id)
	return n
}

// putRaw writes a row without validation
func (m *mockAttributeRepository) putRaw(projectID int64, key, value, valueType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.rows[projectID][key] = &entities.ProjectAttribute{ID: m.nextID, ProjectID: projectID, Key: key, Value: value, ValueType: valueType}
}

func (m *mockAttributeRepository) Upsert(ctx context.Context, projectID int64, key string, value entities.StoredValue, allowKindChange bool) (*repositories.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertHits++
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	project, ok := m.rows[projectID]
	if !ok {
		return nil, entities.NewNotFoundError("project", projectID)
	}
	if row, ok := project[key]; ok {
		prev := entities.ValueKind(row.ValueType)
		if prev != value.Kind() && !allowKindChange {
			return nil, entities.NewConflictError("attribute", key, "stored as %s", prev)
		}
		row.Value, row.ValueType = value.Text(), string(value.Kind())
		return &repositories.UpsertResult{PreviousKind: prev}, nil
	}
	m.nextID++
	project[key] = &entities.ProjectAttribute{ID: m.nextID, ProjectID: projectID, Key: key, Value: value.Text(), ValueType: string(value.Kind())}
	return &repositories.UpsertResult{Inserted: true}, nil
}

func (m *mockAttributeRepository) Get(ctx context.Context, projectID int64, key string) (*entities.ProjectAttribute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[projectID][key]
	if !ok {
		return nil, entities.NewNotFoundError("attribute", key)
	}
	cp := *row
	return &cp, nil
}

func (m *mockAttributeRepository) List(ctx context.Context, projectID int64) ([]*entities.ProjectAttribute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.ProjectAttribute
	for _, row := range m.rows[projectID] {
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *mockAttributeRepository) Delete(ctx context.Context, projectID int64, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[projectID][key]; !ok {
		return false, nil
	}
	delete(m.rows[projectID], key)
	return true, nil
}

func (m *mockAttributeRepository) Scan(ctx context.Context, afterID int64, limit int) ([]*entities.ProjectAttribute, error) {
	return nil, nil
}

// Mock EntityRepository
type mockEntityRepository struct {
	upsertFunc func(ctx context.Context, name string) (*entities.Entity, error)
	getFunc    func(ctx context.Context, id int64) (*entities.Entity, error)
	deleteFunc func(ctx context.Context, id int64) (*entities.CascadeSummary, error)
}

func (m *mockEntityRepository) Upsert(ctx context.Context, name string) (*entities.Entity, error) {
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, name)
	}
	return &entities.Entity{ID: 1, Name: name}, nil
}

func (m *mockEntityRepository) Get(ctx context.Context, id int64) (*entities.Entity, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return &entities.Entity{ID: id, Name: "entity"}, nil
}

func (m *mockEntityRepository) GetByName(ctx context.Context, name string) (*entities.Entity, error) {
	return &entities.Entity{ID: 1, Name: name}, nil
}

func (m *mockEntityRepository) Delete(ctx context.Context, id int64) (*entities.CascadeSummary, error) {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return &entities.CascadeSummary{}, nil
}

// Mock AccountRepository
type mockAccountRepository struct {
	upsertFunc       func(ctx context.Context, address string, entityID *int64, reassign bool) (*entities.Account, error)
	getByAddressFunc func(ctx context.Context, address string) (*entities.Account, error)
	listFunc         func(ctx context.Context, entityID int64) ([]*entities.Account, error)
	deleteFunc       func(ctx context.Context, address string) (*entities.CascadeSummary, error)
}

func (m *mockAccountRepository) Upsert(ctx context.Context, address string, entityID *int64, reassign bool) (*entities.Account, error) {
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, address, entityID, reassign)
	}
	return &entities.Account{ID: 1, Address: address, EntityID: entityID}, nil
}

func (m *mockAccountRepository) Get(ctx context.Context, id int64) (*entities.Account, error) {
	return &entities.Account{ID: id}, nil
}

func (m *mockAccountRepository) GetByAddress(ctx context.Context, address string) (*entities.Account, error) {
	if m.getByAddressFunc != nil {
		return m.getByAddressFunc(ctx, address)
	}
	return nil, entities.NewNotFoundError("account", address)
}

func (m *mockAccountRepository) ListByEntity(ctx context.Context, entityID int64) ([]*entities.Account, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, entityID)
	}
	return nil, nil
}

func (m *mockAccountRepository) Delete(ctx context.Context, address string) (*entities.CascadeSummary, error) {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, address)
	}
	return &entities.CascadeSummary{}, nil
}

// spyCache is a ProjectCache that records invalidations
type spyCache struct {
	mu            sync.Mutex
	views         map[int64]*entities.ProjectView
	generation    uint64
	invalidated   []int64
	invalidateAll int
}

func newSpyCache() *spyCache {
	return &spyCache{views: make(map[int64]*entities.ProjectView)}
}

func (c *spyCache) Get(ctx context.Context, id int64) (*entities.ProjectView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[id]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

func (c *spyCache) Token() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *spyCache) Set(ctx context.Context, view *entities.ProjectView, token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.generation {
		return
	}
	c.views[view.Project.ID] = view.Clone()
}

func (c *spyCache) Invalidate(ctx context.Context, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.invalidated = append(c.invalidated, id)
	delete(c.views, id)
}

func (c *spyCache) InvalidateAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.invalidateAll++
	c.views = make(map[int64]*entities.ProjectView)
}

type spyRecorder struct {
	mu          sync.Mutex
	writes      map[string]int
	kindChanges int
}

func newSpyRecorder() *spyRecorder {
	return &spyRecorder{writes: make(map[string]int)}
}

func (r *spyRecorder) RecordAttributeWrite(valueType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes[valueType]++
}

func (r *spyRecorder) RecordKindChange() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kindChanges++
}
