package handlers

import (
	"context"
	"math"
	"testing"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/asakaida/warehouse/internal/repositories"
	"github.com/asakaida/warehouse/internal/services"
	"github.com/asakaida/warehouse/internal/services/category"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("structpb.NewStruct: %v", err)
	}
	return s
}

func newTestHandler(t *testing.T, identity *mockIdentityService, projects *mockProjectService, attrs *mockAttributeService) *WarehouseHandler {
	t.Helper()
	registry, err := category.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	if identity == nil {
		identity = &mockIdentityService{}
	}
	if projects == nil {
		projects = &mockProjectService{}
	}
	if attrs == nil {
		attrs = &mockAttributeService{}
	}
	return NewWarehouseHandler(identity, projects, attrs, registry, nil)
}

func TestWarehouseHandler_SetAttribute(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		req       map[string]interface{}
		wantCode  codes.Code
		wantKind  string
		wantValue interface{}
		wantText  string
	}{
		{
			name:      "正常系: float travels as a number",
			req:       map[string]interface{}{"project_id": 1, "key": "total_value_locked", "value_type": "float", "value": "1234.5"},
			wantCode:  codes.OK,
			wantKind:  "float",
			wantValue: 1234.5,
			wantText:  "1234.5",
		},
		{
			name:      "正常系: native number as integer",
			req:       map[string]interface{}{"project_id": 1, "key": "code_commits", "value_type": "integer", "value": 10},
			wantCode:  codes.OK,
			wantKind:  "integer",
			wantValue: float64(10),
			wantText:  "10",
		},
		{
			name:      "正常系: large integer travels as a string",
			req:       map[string]interface{}{"project_id": 1, "key": "token_max_supply", "value_type": "integer", "value": "9007199254740993"},
			wantCode:  codes.OK,
			wantKind:  "integer",
			wantValue: "9007199254740993",
			wantText:  "9007199254740993",
		},
		{
			name:     "異常系: unparseable integer",
			req:      map[string]interface{}{"project_id": 1, "key": "num_chains", "value_type": "integer", "value": "abc"},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "異常系: category constraint",
			req:      map[string]interface{}{"project_id": 1, "key": "num_chains", "value_type": "integer", "value": 0},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "異常系: category kind",
			req:      map[string]interface{}{"project_id": 1, "key": "total_value_locked", "value_type": "string", "value": "1234.5"},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "異常系: fractional number as integer",
			req:      map[string]interface{}{"project_id": 1, "key": "website_visits", "value_type": "integer", "value": 1.5},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "異常系: unknown value type",
			req:      map[string]interface{}{"project_id": 1, "key": "x", "value_type": "array", "value": "[]"},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "異常系: missing project id",
			req:      map[string]interface{}{"key": "x", "value_type": "string", "value": "v"},
			wantCode: codes.InvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stored string
			attrs := &mockAttributeService{
				setFunc: func(ctx context.Context, projectID int64, key, value, valueType string, opts services.SetOptions) (entities.TypedValue, error) {
					stored = value
					kind, _ := entities.ParseKind(valueType)
					return entities.Parse(kind, value)
				},
			}
			client := startServer(t, newTestHandler(t, nil, nil, attrs))

			resp, err := client.Call(ctx, MethodSetAttribute, mustStruct(t, tt.req))
			if status.Code(err) != tt.wantCode {
				t.Fatalf("SetAttribute() code = %v (%v), want %v", status.Code(err), err, tt.wantCode)
			}
			if tt.wantCode != codes.OK {
				if stored != "" {
					t.Error("attribute service called for rejected write")
				}
				return
			}

			if stored != tt.wantText {
				t.Errorf("stored text = %q, want %q", stored, tt.wantText)
			}
			value := resp.Fields["value"].GetStructValue().AsMap()
			if value["kind"] != tt.wantKind || value["value"] != tt.wantValue {
				t.Errorf("value = %v, want {%v %v}", value, tt.wantKind, tt.wantValue)
			}
		})
	}
}

func TestWarehouseHandler_SetAttribute_AllowKindChange(t *testing.T) {
	var got services.SetOptions
	attrs := &mockAttributeService{
		setFunc: func(ctx context.Context, projectID int64, key, value, valueType string, opts services.SetOptions) (entities.TypedValue, error) {
			got = opts
			return entities.StringValue(value), nil
		},
	}
	client := startServer(t, newTestHandler(t, nil, nil, attrs))

	_, err := client.Call(context.Background(), MethodSetAttribute, mustStruct(t, map[string]interface{}{
		"project_id": 1, "key": "note", "value_type": "string", "value": "x", "allow_kind_change": true,
	}))
	if err != nil {
		t.Fatalf("SetAttribute() error: %v", err)
	}
	if !got.AllowKindChange {
		t.Error("allow_kind_change not passed through")
	}
}

func TestWarehouseHandler_ErrorMapping(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
	}{
		{name: "validation", err: entities.NewValidationError("value", "bad"), wantCode: codes.InvalidArgument},
		{name: "not found", err: entities.NewNotFoundError("attribute", "tvl"), wantCode: codes.NotFound},
		{name: "conflict", err: entities.NewConflictError("attribute", "tvl", "stored as integer"), wantCode: codes.AlreadyExists},
		{name: "corruption", err: &entities.CorruptionError{Key: "tvl", ValueType: "float", Value: "x"}, wantCode: codes.DataLoss},
		{name: "other", err: context.Canceled, wantCode: codes.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := &mockAttributeService{
				getFunc: func(ctx context.Context, projectID int64, key string) (entities.TypedValue, error) {
					return entities.TypedValue{}, tt.err
				},
			}
			client := startServer(t, newTestHandler(t, nil, nil, attrs))

			_, err := client.Call(ctx, MethodGetAttribute, mustStruct(t, map[string]interface{}{"project_id": 1, "key": "tvl"}))
			if status.Code(err) != tt.wantCode {
				t.Errorf("GetAttribute() code = %v, want %v", status.Code(err), tt.wantCode)
			}
		})
	}
}

func TestWarehouseHandler_GetProject(t *testing.T) {
	projects := &mockProjectService{
		getFunc: func(ctx context.Context, id int64) (*entities.ProjectView, error) {
			return &entities.ProjectView{
				Project: entities.Project{ID: id, Name: "Pancake", Token: "CAKE", Category: "dex", ContractAddress: "0xabc"},
				Attributes: entities.BuildAttributeSet([]*entities.ProjectAttribute{
					{ProjectID: id, Key: "num_chains", Value: "3", ValueType: "integer"},
					{ProjectID: id, Key: "total_value_locked", Value: "1234.5", ValueType: "float"},
					{ProjectID: id, Key: "code_commits", Value: "abc", ValueType: "integer"},
				}),
			}, nil
		},
	}
	client := startServer(t, newTestHandler(t, nil, projects, nil))

	resp, err := client.Call(context.Background(), MethodGetProject, mustStruct(t, map[string]interface{}{"id": 7}))
	if err != nil {
		t.Fatalf("GetProject() error: %v", err)
	}
	out := resp.AsMap()

	project := out["project"].(map[string]interface{})
	if project["id"] != float64(7) || project["category"] != "dex" {
		t.Errorf("project = %v", project)
	}

	attrs := out["attributes"].(map[string]interface{})
	tvl := attrs["total_value_locked"].(map[string]interface{})
	if tvl["kind"] != "float" || tvl["value"] != 1234.5 {
		t.Errorf("total_value_locked = %v", tvl)
	}

	corrupt := out["corrupt"].(map[string]interface{})
	commits, ok := corrupt["code_commits"].(map[string]interface{})
	if !ok || commits["value"] != "abc" || commits["value_type"] != "integer" || commits["error"] == "" {
		t.Errorf("corrupt = %v", corrupt)
	}

	missing := out["missing_attributes"].([]interface{})
	for _, k := range missing {
		if k == "num_chains" || k == "code_commits" || k == "total_value_locked" {
			t.Errorf("%v reported missing", k)
		}
	}
	if len(missing) != 8 {
		t.Errorf("missing_attributes = %v, want 8 keys", missing)
	}
}

func TestWarehouseHandler_CreateProject(t *testing.T) {
	var (
		gotAttrs   []entities.AttributeInput
		gotOwner   *int64
		gotAddress string
	)
	identity := &mockIdentityService{
		upsertEntityFunc: func(ctx context.Context, name string) (*entities.Entity, error) {
			return &entities.Entity{ID: 42, Name: name}, nil
		},
		upsertAccountFunc: func(ctx context.Context, address string, entityID *int64, reassign bool) (*entities.Account, error) {
			gotAddress, gotOwner = address, entityID
			return &entities.Account{ID: 1, Address: address, EntityID: entityID}, nil
		},
	}
	projects := &mockProjectService{
		createFunc: func(ctx context.Context, project *entities.Project, attrs []entities.AttributeInput) (*entities.ProjectView, error) {
			gotAttrs = attrs
			p := *project
			p.ID = 9
			return &entities.ProjectView{Project: p, Attributes: entities.NewAttributeSet()}, nil
		},
	}
	client := startServer(t, newTestHandler(t, identity, projects, nil))

	t.Run("正常系: resolves owner and encodes attributes", func(t *testing.T) {
		_, err := client.Call(context.Background(), MethodCreateProject, mustStruct(t, map[string]interface{}{
			"name": "Pancake", "token": "CAKE", "category": "dex", "contract_address": "0xabc",
			"entity_name": "Pancake Labs",
			"attributes": map[string]interface{}{
				"num_chains":         map[string]interface{}{"kind": "integer", "value": 3},
				"total_value_locked": map[string]interface{}{"kind": "float", "value": "1234.50"},
				"chains":             map[string]interface{}{"kind": "json", "value": []interface{}{"bsc", "eth"}},
			},
		}))
		if err != nil {
			t.Fatalf("CreateProject() error: %v", err)
		}
		if gotAddress != "0xabc" || gotOwner == nil || *gotOwner != 42 {
			t.Errorf("account upsert = (%q, %v)", gotAddress, gotOwner)
		}
		if len(gotAttrs) != 3 {
			t.Fatalf("attributes = %v", gotAttrs)
		}
		want := map[string]string{"chains": `["bsc","eth"]`, "num_chains": "3", "total_value_locked": "1234.5"}
		for _, a := range gotAttrs {
			if a.Value.Text() != want[a.Key] {
				t.Errorf("%s = %q, want %q", a.Key, a.Value.Text(), want[a.Key])
			}
		}
	})

	t.Run("異常系: attribute violates category", func(t *testing.T) {
		gotAttrs = nil
		_, err := client.Call(context.Background(), MethodCreateProject, mustStruct(t, map[string]interface{}{
			"name": "Pancake", "token": "CAKE", "category": "dex", "contract_address": "0xabc",
			"attributes": map[string]interface{}{
				"market_cap": map[string]interface{}{"kind": "float", "value": -5},
			},
		}))
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("CreateProject() code = %v, want InvalidArgument", status.Code(err))
		}
		if gotAttrs != nil {
			t.Error("project service called for rejected create")
		}
	})
}

func TestWarehouseHandler_ListProjects(t *testing.T) {
	var got *repositories.ProjectFilter
	projects := &mockProjectService{
		listFunc: func(ctx context.Context, filter *repositories.ProjectFilter) ([]*entities.Project, error) {
			got = filter
			return []*entities.Project{{ID: 3, Name: "A"}, {ID: 5, Name: "B"}}, nil
		},
	}
	client := startServer(t, newTestHandler(t, nil, projects, nil))

	resp, err := client.Call(context.Background(), MethodListProjects, mustStruct(t, map[string]interface{}{
		"category": "dex", "limit": 2, "after_id": 1,
	}))
	if err != nil {
		t.Fatalf("ListProjects() error: %v", err)
	}
	if got.Category != "dex" || got.Limit != 2 || got.AfterID != 1 {
		t.Errorf("filter = %+v", got)
	}
	if len(resp.Fields["projects"].GetListValue().GetValues()) != 2 {
		t.Errorf("projects = %v", resp.Fields["projects"])
	}
	if resp.Fields["next_after_id"].GetNumberValue() != 5 {
		t.Errorf("next_after_id = %v", resp.Fields["next_after_id"])
	}
}

func TestWarehouseHandler_UpdateProject(t *testing.T) {
	var got *entities.ProjectUpdate
	projects := &mockProjectService{
		updateFunc: func(ctx context.Context, id int64, update *entities.ProjectUpdate) (*entities.Project, error) {
			got = update
			return &entities.Project{ID: id, Token: *update.Token}, nil
		},
	}
	client := startServer(t, newTestHandler(t, nil, projects, nil))

	_, err := client.Call(context.Background(), MethodUpdateProject, mustStruct(t, map[string]interface{}{"id": 1, "token": "CAKE2"}))
	if err != nil {
		t.Fatalf("UpdateProject() error: %v", err)
	}
	if got.Token == nil || *got.Token != "CAKE2" || got.Name != nil || got.Category != nil || got.ContractAddress != nil {
		t.Errorf("update = %+v", got)
	}
}

func TestWarehouseHandler_DeleteEntity(t *testing.T) {
	identity := &mockIdentityService{
		deleteEntityFunc: func(ctx context.Context, id int64) (*entities.CascadeSummary, error) {
			return &entities.CascadeSummary{Accounts: 2, Projects: 2, Attributes: 4}, nil
		},
	}
	client := startServer(t, newTestHandler(t, identity, nil, nil))

	resp, err := client.Call(context.Background(), MethodDeleteEntity, mustStruct(t, map[string]interface{}{"id": 1}))
	if err != nil {
		t.Fatalf("DeleteEntity() error: %v", err)
	}
	deleted := resp.Fields["deleted"].GetStructValue().AsMap()
	if deleted["accounts"] != float64(2) || deleted["projects"] != float64(2) || deleted["attributes"] != float64(4) {
		t.Errorf("deleted = %v", deleted)
	}
}

func TestWarehouseHandler_UpsertAccount_ExclusiveOwner(t *testing.T) {
	client := startServer(t, newTestHandler(t, nil, nil, nil))

	_, err := client.Call(context.Background(), MethodUpsertAccount, mustStruct(t, map[string]interface{}{
		"address": "0xabc", "entity_id": 1, "entity_name": "Acme",
	}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("UpsertAccount() code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestNativeValue_IntegerPrecision(t *testing.T) {
	tests := []struct {
		name string
		v    int64
		want interface{}
	}{
		{name: "small", v: 42, want: float64(42)},
		{name: "boundary", v: 1 << 53, want: float64(1 << 53)},
		{name: "above boundary", v: 1<<53 + 1, want: "9007199254740993"},
		{name: "min int64", v: math.MinInt64, want: "-9223372036854775808"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pv, err := nativeValue(entities.IntegerValue(tt.v))
			if err != nil {
				t.Fatalf("nativeValue() error: %v", err)
			}
			if got := pv.AsInterface(); got != tt.want {
				t.Errorf("nativeValue(%d) = %v (%T), want %v", tt.v, got, got, tt.want)
			}
		})
	}
}
