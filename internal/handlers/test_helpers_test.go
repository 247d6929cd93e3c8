package handlers

import (
	"context"
	"net"
	"testing"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/asakaida/warehouse/internal/repositories"
	"github.com/asakaida/warehouse/internal/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// Mock IdentityService
type mockIdentityService struct {
	upsertEntityFunc  func(ctx context.Context, name string) (*entities.Entity, error)
	getEntityFunc     func(ctx context.Context, id int64) (*entities.Entity, error)
	deleteEntityFunc  func(ctx context.Context, id int64) (*entities.CascadeSummary, error)
	upsertAccountFunc func(ctx context.Context, address string, entityID *int64, reassign bool) (*entities.Account, error)
	listAccountsFunc  func(ctx context.Context, entityID int64) ([]*entities.Account, error)
}

func (m *mockIdentityService) UpsertEntity(ctx context.Context, name string) (*entities.Entity, error) {
	if m.upsertEntityFunc != nil {
		return m.upsertEntityFunc(ctx, name)
	}
	return &entities.Entity{ID: 1, Name: name}, nil
}

func (m *mockIdentityService) GetEntity(ctx context.Context, id int64) (*entities.Entity, error) {
	if m.getEntityFunc != nil {
		return m.getEntityFunc(ctx, id)
	}
	return &entities.Entity{ID: id, Name: "entity"}, nil
}

func (m *mockIdentityService) GetEntityByName(ctx context.Context, name string) (*entities.Entity, error) {
	return &entities.Entity{ID: 1, Name: name}, nil
}

func (m *mockIdentityService) DeleteEntity(ctx context.Context, id int64) (*entities.CascadeSummary, error) {
	if m.deleteEntityFunc != nil {
		return m.deleteEntityFunc(ctx, id)
	}
	return &entities.CascadeSummary{}, nil
}

func (m *mockIdentityService) UpsertAccount(ctx context.Context, address string, entityID *int64, reassign bool) (*entities.Account, error) {
	if m.upsertAccountFunc != nil {
		return m.upsertAccountFunc(ctx, address, entityID, reassign)
	}
	return &entities.Account{ID: 1, Address: address, EntityID: entityID}, nil
}

func (m *mockIdentityService) GetAccount(ctx context.Context, id int64) (*entities.Account, error) {
	return &entities.Account{ID: id, Address: "0xabc"}, nil
}

func (m *mockIdentityService) GetAccountByAddress(ctx context.Context, address string) (*entities.Account, error) {
	return &entities.Account{ID: 1, Address: address}, nil
}

func (m *mockIdentityService) ListAccounts(ctx context.Context, entityID int64) ([]*entities.Account, error) {
	if m.listAccountsFunc != nil {
		return m.listAccountsFunc(ctx, entityID)
	}
	return nil, nil
}

func (m *mockIdentityService) DeleteAccount(ctx context.Context, address string) (*entities.CascadeSummary, error) {
	return &entities.CascadeSummary{Accounts: 1}, nil
}

// Mock ProjectService
type mockProjectService struct {
	createFunc func(ctx context.Context, project *entities.Project, attrs []entities.AttributeInput) (*entities.ProjectView, error)
	getFunc    func(ctx context.Context, id int64) (*entities.ProjectView, error)
	listFunc   func(ctx context.Context, filter *repositories.ProjectFilter) ([]*entities.Project, error)
	updateFunc func(ctx context.Context, id int64, update *entities.ProjectUpdate) (*entities.Project, error)
}

func (m *mockProjectService) CreateProject(ctx context.Context, project *entities.Project, attrs []entities.AttributeInput) (*entities.ProjectView, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, project, attrs)
	}
	p := *project
	p.ID = 1
	return &entities.ProjectView{Project: p, Attributes: entities.NewAttributeSet()}, nil
}

func (m *mockProjectService) GetProject(ctx context.Context, id int64) (*entities.ProjectView, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return &entities.ProjectView{
		Project:    entities.Project{ID: id, Name: "Pancake", Token: "CAKE", Category: "dex", ContractAddress: "0xabc"},
		Attributes: entities.NewAttributeSet(),
	}, nil
}

func (m *mockProjectService) GetProjectByName(ctx context.Context, name string) (*entities.ProjectView, error) {
	return m.GetProject(ctx, 1)
}

func (m *mockProjectService) GetProjectByAddress(ctx context.Context, address string) (*entities.ProjectView, error) {
	return m.GetProject(ctx, 1)
}

func (m *mockProjectService) ListProjects(ctx context.Context, filter *repositories.ProjectFilter) ([]*entities.Project, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return nil, nil
}

func (m *mockProjectService) UpdateProject(ctx context.Context, id int64, update *entities.ProjectUpdate) (*entities.Project, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, id, update)
	}
	return &entities.Project{ID: id}, nil
}

func (m *mockProjectService) DeleteProject(ctx context.Context, id int64) (*entities.CascadeSummary, error) {
	return &entities.CascadeSummary{Projects: 1}, nil
}

// Mock AttributeService
type mockAttributeService struct {
	setFunc    func(ctx context.Context, projectID int64, key, value, valueType string, opts services.SetOptions) (entities.TypedValue, error)
	getFunc    func(ctx context.Context, projectID int64, key string) (entities.TypedValue, error)
	listFunc   func(ctx context.Context, projectID int64) (*entities.AttributeSet, error)
	deleteFunc func(ctx context.Context, projectID int64, key string) error
}

func (m *mockAttributeService) SetAttribute(ctx context.Context, projectID int64, key, value, valueType string, opts services.SetOptions) (entities.TypedValue, error) {
	if m.setFunc != nil {
		return m.setFunc(ctx, projectID, key, value, valueType, opts)
	}
	kind, err := entities.ParseKind(valueType)
	if err != nil {
		return entities.TypedValue{}, err
	}
	return entities.Parse(kind, value)
}

func (m *mockAttributeService) SetTypedAttribute(ctx context.Context, projectID int64, key string, value entities.TypedValue, opts services.SetOptions) (entities.TypedValue, error) {
	return value, nil
}

func (m *mockAttributeService) GetAttribute(ctx context.Context, projectID int64, key string) (entities.TypedValue, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, projectID, key)
	}
	return entities.TypedValue{}, entities.NewNotFoundError("attribute", key)
}

func (m *mockAttributeService) ListAttributes(ctx context.Context, projectID int64) (*entities.AttributeSet, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, projectID)
	}
	return entities.NewAttributeSet(), nil
}

func (m *mockAttributeService) DeleteAttribute(ctx context.Context, projectID int64, key string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, projectID, key)
	}
	return nil
}

// startServer serves h over an in-memory listener and returns a client
func startServer(t *testing.T, h WarehouseServer, interceptors ...grpc.UnaryServerInterceptor) *WarehouseClient {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	RegisterWarehouseServer(server, h)
	go func() {
		_ = server.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		server.Stop()
	})
	return NewWarehouseClient(conn)
}
