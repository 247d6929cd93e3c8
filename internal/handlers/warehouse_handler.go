package handlers

import (
	"context"
	"sort"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/asakaida/warehouse/internal/repositories"
	"github.com/asakaida/warehouse/internal/services"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

// CategoryPolicy checks attribute writes against per-category expectations
type CategoryPolicy interface {
	Check(category, key string, value entities.TypedValue) error
	ExpectedKeys(category string) []string
}

type noPolicy struct{}

func (noPolicy) Check(string, string, entities.TypedValue) error { return nil }
func (noPolicy) ExpectedKeys(string) []string                    { return nil }

// WarehouseHandler serves the Warehouse gRPC service
type WarehouseHandler struct {
	identity   services.IdentityServiceInterface
	projects   services.ProjectServiceInterface
	attributes services.AttributeServiceInterface
	policy     CategoryPolicy
	logger     *zap.Logger
}

var _ WarehouseServer = (*WarehouseHandler)(nil)

// NewWarehouseHandler creates a new WarehouseHandler. policy and logger may be nil.
func NewWarehouseHandler(
	identity services.IdentityServiceInterface,
	projects services.ProjectServiceInterface,
	attributes services.AttributeServiceInterface,
	policy CategoryPolicy,
	logger *zap.Logger,
) *WarehouseHandler {
	if policy == nil {
		policy = noPolicy{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WarehouseHandler{
		identity:   identity,
		projects:   projects,
		attributes: attributes,
		policy:     policy,
		logger:     logger.Named("handler"),
	}
}

// === identity graph ===

// UpsertEntity handles {name}
func (h *WarehouseHandler) UpsertEntity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(req, "name")
	if err != nil {
		return nil, toStatus(err)
	}
	entity, err := h.identity.UpsertEntity(ctx, name)
	if err != nil {
		return nil, toStatus(err)
	}
	return response(map[string]*structpb.Value{"entity": entityToProto(entity)}), nil
}

// GetEntity handles {id} or {name} and includes the entity's accounts
func (h *WarehouseHandler) GetEntity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	entity, err := h.lookupEntity(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	accounts, err := h.identity.ListAccounts(ctx, entity.ID)
	if err != nil {
		return nil, toStatus(err)
	}

	list := make([]*structpb.Value, len(accounts))
	for i, a := range accounts {
		list[i] = accountToProto(a)
	}
	return response(map[string]*structpb.Value{
		"entity":   entityToProto(entity),
		"accounts": structpb.NewListValue(&structpb.ListValue{Values: list}),
	}), nil
}

func (h *WarehouseHandler) lookupEntity(ctx context.Context, req *structpb.Struct) (*entities.Entity, error) {
	id, hasID, err := optionalInt64(req, "id")
	if err != nil {
		return nil, err
	}
	if hasID {
		return h.identity.GetEntity(ctx, id)
	}
	name, hasName, err := optionalString(req, "name")
	if err != nil {
		return nil, err
	}
	if hasName {
		return h.identity.GetEntityByName(ctx, name)
	}
	return nil, entities.NewValidationError("id", "id or name is required")
}

// DeleteEntity handles {id}
func (h *WarehouseHandler) DeleteEntity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireInt64(req, "id")
	if err != nil {
		return nil, toStatus(err)
	}
	summary, err := h.identity.DeleteEntity(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return response(map[string]*structpb.Value{"deleted": summaryToProto(summary)}), nil
}

// UpsertAccount handles {address, entity_id?, entity_name?, reassign?}.
// entity_name resolves or creates the owning entity first.
func (h *WarehouseHandler) UpsertAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	account, err := h.upsertAccount(ctx, req, "address")
	if err != nil {
		return nil, toStatus(err)
	}
	return response(map[string]*structpb.Value{"account": accountToProto(account)}), nil
}

func (h *WarehouseHandler) upsertAccount(ctx context.Context, req *structpb.Struct, addressField string) (*entities.Account, error) {
	address, err := requireString(req, addressField)
	if err != nil {
		return nil, err
	}
	reassign, err := optionalBool(req, "reassign")
	if err != nil {
		return nil, err
	}
	owner, err := h.resolveOwner(ctx, req)
	if err != nil {
		return nil, err
	}
	return h.identity.UpsertAccount(ctx, address, owner, reassign)
}

func (h *WarehouseHandler) resolveOwner(ctx context.Context, req *structpb.Struct) (*int64, error) {
	id, hasID, err := optionalInt64(req, "entity_id")
	if err != nil {
		return nil, err
	}
	name, hasName, err := optionalString(req, "entity_name")
	if err != nil {
		return nil, err
	}
	switch {
	case hasID && hasName:
		return nil, entities.NewValidationError("entity_id", "entity_id and entity_name are mutually exclusive")
	case hasID:
		return &id, nil
	case hasName:
		entity, err := h.identity.UpsertEntity(ctx, name)
		if err != nil {
			return nil, err
		}
		return &entity.ID, nil
	default:
		return nil, nil
	}
}

// GetAccount handles {id} or {address}
func (h *WarehouseHandler) GetAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var account *entities.Account
	id, hasID, err := optionalInt64(req, "id")
	if err != nil {
		return nil, toStatus(err)
	}
	if hasID {
		account, err = h.identity.GetAccount(ctx, id)
	} else {
		var address string
		address, err = requireString(req, "address")
		if err == nil {
			account, err = h.identity.GetAccountByAddress(ctx, address)
		}
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return response(map[string]*structpb.Value{"account": accountToProto(account)}), nil
}

// DeleteAccount handles {address}
func (h *WarehouseHandler) DeleteAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	address, err := requireString(req, "address")
	if err != nil {
		return nil, toStatus(err)
	}
	summary, err := h.identity.DeleteAccount(ctx, address)
	if err != nil {
		return nil, toStatus(err)
	}
	return response(map[string]*structpb.Value{"deleted": summaryToProto(summary)}), nil
}

// === project registry ===

// CreateProject handles {name, token, category, contract_address, entity_name?, attributes?}.
// With entity_name the owning entity and account are resolved or created first.
// attributes maps key to {kind, value}.
func (h *WarehouseHandler) CreateProject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	project, err := projectFromRequest(req)
	if err != nil {
		return nil, toStatus(err)
	}
	attrs, err := h.attributeInputs(req, project.Category)
	if err != nil {
		return nil, toStatus(err)
	}

	if _, hasOwner := field(req, "entity_name"); hasOwner {
		if _, err := h.upsertAccount(ctx, req, "contract_address"); err != nil {
			return nil, toStatus(err)
		}
	}

	view, err := h.projects.CreateProject(ctx, project, attrs)
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := h.viewToProto(view)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func projectFromRequest(req *structpb.Struct) (*entities.Project, error) {
	p := &entities.Project{}
	var err error
	if p.Name, err = requireString(req, "name"); err != nil {
		return nil, err
	}
	if p.Token, err = requireString(req, "token"); err != nil {
		return nil, err
	}
	if p.Category, err = requireString(req, "category"); err != nil {
		return nil, err
	}
	if p.ContractAddress, err = requireString(req, "contract_address"); err != nil {
		return nil, err
	}
	return p, nil
}

func (h *WarehouseHandler) attributeInputs(req *structpb.Struct, category string) ([]entities.AttributeInput, error) {
	v, ok := field(req, "attributes")
	if !ok {
		return nil, nil
	}
	obj := v.GetStructValue()
	if obj == nil {
		return nil, entities.NewValidationError("attributes", "must be an object")
	}

	keys := make([]string, 0, len(obj.GetFields()))
	for k := range obj.GetFields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	inputs := make([]entities.AttributeInput, 0, len(keys))
	for _, key := range keys {
		entry := obj.GetFields()[key].GetStructValue()
		if entry == nil {
			return nil, entities.NewValidationError(key, "must be {kind, value}")
		}
		kindTag, err := requireString(entry, "kind")
		if err != nil {
			return nil, err
		}
		stored, _, err := h.encode(category, key, kindTag, entry)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, entities.AttributeInput{Key: key, Value: stored})
	}
	return inputs, nil
}

// encode validates a {value} field as kindTag and checks it against the category policy
func (h *WarehouseHandler) encode(category, key, kindTag string, req *structpb.Struct) (entities.StoredValue, entities.TypedValue, error) {
	kind, err := entities.ParseKind(kindTag)
	if err != nil {
		return entities.StoredValue{}, entities.TypedValue{}, err
	}
	if err := entities.ValidateAttributeKey(key); err != nil {
		return entities.StoredValue{}, entities.TypedValue{}, err
	}
	v, ok := field(req, "value")
	if !ok {
		return entities.StoredValue{}, entities.TypedValue{}, entities.NewValidationError("value", "is required")
	}
	text, err := valueText(kind, v)
	if err != nil {
		return entities.StoredValue{}, entities.TypedValue{}, err
	}
	stored, err := entities.Encode(kind, text)
	if err != nil {
		return entities.StoredValue{}, entities.TypedValue{}, err
	}
	typed, err := entities.Decode(string(stored.Kind()), stored.Text())
	if err != nil {
		return entities.StoredValue{}, entities.TypedValue{}, err
	}
	if err := h.policy.Check(category, key, typed); err != nil {
		return entities.StoredValue{}, entities.TypedValue{}, err
	}
	return stored, typed, nil
}

// GetProject handles {id}, {name} or {contract_address}
func (h *WarehouseHandler) GetProject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	view, err := h.lookupProject(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := h.viewToProto(view)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (h *WarehouseHandler) lookupProject(ctx context.Context, req *structpb.Struct) (*entities.ProjectView, error) {
	id, hasID, err := optionalInt64(req, "id")
	if err != nil {
		return nil, err
	}
	if hasID {
		return h.projects.GetProject(ctx, id)
	}
	if name, ok, err := optionalString(req, "name"); err != nil {
		return nil, err
	} else if ok {
		return h.projects.GetProjectByName(ctx, name)
	}
	if address, ok, err := optionalString(req, "contract_address"); err != nil {
		return nil, err
	} else if ok {
		return h.projects.GetProjectByAddress(ctx, address)
	}
	return nil, entities.NewValidationError("id", "id, name or contract_address is required")
}

func (h *WarehouseHandler) viewToProto(view *entities.ProjectView) (*structpb.Struct, error) {
	attrs, corrupt, err := attributeSetToProto(view.Attributes)
	if err != nil {
		return nil, err
	}
	missing := view.MissingKeys(h.policy.ExpectedKeys(view.Project.Category))
	return response(map[string]*structpb.Value{
		"project":            projectToProto(&view.Project),
		"attributes":         attrs,
		"corrupt":            corrupt,
		"missing_attributes": stringList(missing),
	}), nil
}

// UpdateProject handles {id, name?, token?, category?, contract_address?}
func (h *WarehouseHandler) UpdateProject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireInt64(req, "id")
	if err != nil {
		return nil, toStatus(err)
	}

	update := &entities.ProjectUpdate{}
	for name, dst := range map[string]**string{
		"name":             &update.Name,
		"token":            &update.Token,
		"category":         &update.Category,
		"contract_address": &update.ContractAddress,
	} {
		s, ok, err := optionalString(req, name)
		if err != nil {
			return nil, toStatus(err)
		}
		if ok {
			value := s
			*dst = &value
		}
	}

	project, err := h.projects.UpdateProject(ctx, id, update)
	if err != nil {
		return nil, toStatus(err)
	}
	return response(map[string]*structpb.Value{"project": projectToProto(project)}), nil
}

// DeleteProject handles {id}
func (h *WarehouseHandler) DeleteProject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireInt64(req, "id")
	if err != nil {
		return nil, toStatus(err)
	}
	summary, err := h.projects.DeleteProject(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return response(map[string]*structpb.Value{"deleted": summaryToProto(summary)}), nil
}

// ListProjects handles {category?, limit?, after_id?}
func (h *WarehouseHandler) ListProjects(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	filter := &repositories.ProjectFilter{}
	var err error
	if filter.Category, _, err = optionalString(req, "category"); err != nil {
		return nil, toStatus(err)
	}
	limit, _, err := optionalInt64(req, "limit")
	if err != nil {
		return nil, toStatus(err)
	}
	filter.Limit = int(limit)
	if filter.AfterID, _, err = optionalInt64(req, "after_id"); err != nil {
		return nil, toStatus(err)
	}

	projects, err := h.projects.ListProjects(ctx, filter)
	if err != nil {
		return nil, toStatus(err)
	}

	list := make([]*structpb.Value, len(projects))
	for i, p := range projects {
		list[i] = projectToProto(p)
	}
	fields := map[string]*structpb.Value{
		"projects": structpb.NewListValue(&structpb.ListValue{Values: list}),
	}
	if len(projects) > 0 {
		fields["next_after_id"] = idValue(projects[len(projects)-1].ID)
	}
	return response(fields), nil
}

// === typed attribute store ===

// SetAttribute handles {project_id, key, value_type, value, allow_kind_change?}
func (h *WarehouseHandler) SetAttribute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	projectID, err := requireInt64(req, "project_id")
	if err != nil {
		return nil, toStatus(err)
	}
	key, err := requireString(req, "key")
	if err != nil {
		return nil, toStatus(err)
	}
	valueType, err := requireString(req, "value_type")
	if err != nil {
		return nil, toStatus(err)
	}
	allow, err := optionalBool(req, "allow_kind_change")
	if err != nil {
		return nil, toStatus(err)
	}

	view, err := h.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, toStatus(err)
	}
	stored, _, err := h.encode(view.Project.Category, key, valueType, req)
	if err != nil {
		return nil, toStatus(err)
	}

	typed, err := h.attributes.SetAttribute(ctx, projectID, key, stored.Text(), valueType, services.SetOptions{AllowKindChange: allow})
	if err != nil {
		return nil, toStatus(err)
	}
	return attributeResponse(key, typed)
}

// GetAttribute handles {project_id, key}
func (h *WarehouseHandler) GetAttribute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	projectID, err := requireInt64(req, "project_id")
	if err != nil {
		return nil, toStatus(err)
	}
	key, err := requireString(req, "key")
	if err != nil {
		return nil, toStatus(err)
	}
	typed, err := h.attributes.GetAttribute(ctx, projectID, key)
	if err != nil {
		return nil, toStatus(err)
	}
	return attributeResponse(key, typed)
}

func attributeResponse(key string, typed entities.TypedValue) (*structpb.Struct, error) {
	pv, err := typedValueToProto(typed)
	if err != nil {
		return nil, toStatus(err)
	}
	return response(map[string]*structpb.Value{
		"key":   structpb.NewStringValue(key),
		"value": pv,
	}), nil
}

// ListAttributes handles {project_id}
func (h *WarehouseHandler) ListAttributes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	projectID, err := requireInt64(req, "project_id")
	if err != nil {
		return nil, toStatus(err)
	}
	set, err := h.attributes.ListAttributes(ctx, projectID)
	if err != nil {
		return nil, toStatus(err)
	}
	attrs, corrupt, err := attributeSetToProto(set)
	if err != nil {
		return nil, toStatus(err)
	}
	return response(map[string]*structpb.Value{
		"attributes": attrs,
		"corrupt":    corrupt,
	}), nil
}

// DeleteAttribute handles {project_id, key}
func (h *WarehouseHandler) DeleteAttribute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	projectID, err := requireInt64(req, "project_id")
	if err != nil {
		return nil, toStatus(err)
	}
	key, err := requireString(req, "key")
	if err != nil {
		return nil, toStatus(err)
	}
	if err := h.attributes.DeleteAttribute(ctx, projectID, key); err != nil {
		return nil, toStatus(err)
	}
	return response(map[string]*structpb.Value{}), nil
}
