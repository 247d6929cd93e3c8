package services

import (
	"context"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/asakaida/warehouse/internal/repositories"
	"go.uber.org/zap"
)

// SetOptions controls SetAttribute behaviour
type SetOptions struct {
	// AllowKindChange permits replacing a stored value of another kind
	AllowKindChange bool
}

// AttributeServiceInterface defines the typed attribute store operations
type AttributeServiceInterface interface {
	SetAttribute(ctx context.Context, projectID int64, key, value, valueType string, opts SetOptions) (entities.TypedValue, error)
	SetTypedAttribute(ctx context.Context, projectID int64, key string, value entities.TypedValue, opts SetOptions) (entities.TypedValue, error)
	GetAttribute(ctx context.Context, projectID int64, key string) (entities.TypedValue, error)
	ListAttributes(ctx context.Context, projectID int64) (*entities.AttributeSet, error)
	DeleteAttribute(ctx context.Context, projectID int64, key string) error
}

// AttributeService is the typed attribute store. Every write passes through
// the kind registry before reaching the repository.
type AttributeService struct {
	attributeRepo repositories.AttributeRepository
	projectRepo   repositories.ProjectRepository
	cache         ProjectCache
	recorder      AttributeRecorder
	logger        *zap.Logger
}

// NewAttributeService creates a new AttributeService. cache, recorder and logger may be nil.
func NewAttributeService(
	attributeRepo repositories.AttributeRepository,
	projectRepo repositories.ProjectRepository,
	cache ProjectCache,
	recorder AttributeRecorder,
	logger *zap.Logger,
) *AttributeService {
	if cache == nil {
		cache = noopCache{}
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttributeService{
		attributeRepo: attributeRepo,
		projectRepo:   projectRepo,
		cache:         cache,
		recorder:      recorder,
		logger:        logger.Named("attribute"),
	}
}

// SetAttribute validates value as valueType, stores its canonical text and
// returns the value as it will be read back.
func (s *AttributeService) SetAttribute(ctx context.Context, projectID int64, key, value, valueType string, opts SetOptions) (entities.TypedValue, error) {
	kind, err := entities.ParseKind(valueType)
	if err != nil {
		return entities.TypedValue{}, err
	}
	if err := entities.ValidateAttributeKey(key); err != nil {
		return entities.TypedValue{}, err
	}
	stored, err := entities.Encode(kind, value)
	if err != nil {
		return entities.TypedValue{}, err
	}
	return s.store(ctx, projectID, key, stored, opts)
}

// SetTypedAttribute stores an already typed value
func (s *AttributeService) SetTypedAttribute(ctx context.Context, projectID int64, key string, value entities.TypedValue, opts SetOptions) (entities.TypedValue, error) {
	if err := entities.ValidateAttributeKey(key); err != nil {
		return entities.TypedValue{}, err
	}
	stored, err := entities.EncodeValue(value)
	if err != nil {
		return entities.TypedValue{}, err
	}
	return s.store(ctx, projectID, key, stored, opts)
}

func (s *AttributeService) store(ctx context.Context, projectID int64, key string, stored entities.StoredValue, opts SetOptions) (entities.TypedValue, error) {
	result, err := s.attributeRepo.Upsert(ctx, projectID, key, stored, opts.AllowKindChange)
	if err != nil {
		return entities.TypedValue{}, err
	}
	s.cache.Invalidate(ctx, projectID)
	s.recorder.RecordAttributeWrite(string(stored.Kind()))

	if !result.Inserted && result.PreviousKind != "" && result.PreviousKind != stored.Kind() {
		s.recorder.RecordKindChange()
		s.logger.Warn("attribute kind changed",
			zap.Int64("project_id", projectID),
			zap.String("key", key),
			zap.String("previous_value_type", string(result.PreviousKind)),
			zap.String("value_type", string(stored.Kind())),
		)
	}

	return entities.Decode(string(stored.Kind()), stored.Text())
}

// GetAttribute returns the typed value stored under (projectID, key)
func (s *AttributeService) GetAttribute(ctx context.Context, projectID int64, key string) (entities.TypedValue, error) {
	if err := entities.ValidateAttributeKey(key); err != nil {
		return entities.TypedValue{}, err
	}
	row, err := s.attributeRepo.Get(ctx, projectID, key)
	if err != nil {
		return entities.TypedValue{}, err
	}
	v, err := row.Typed()
	if err != nil {
		s.logger.Warn("corrupt attribute",
			zap.Int64("project_id", projectID),
			zap.String("key", key),
			zap.String("value_type", row.ValueType),
			zap.Error(err),
		)
		return entities.TypedValue{}, err
	}
	return v, nil
}

// ListAttributes returns every attribute of a project. Rows that fail to
// decode are reported in the set's Corrupt map instead of failing the call.
func (s *AttributeService) ListAttributes(ctx context.Context, projectID int64) (*entities.AttributeSet, error) {
	if _, err := s.projectRepo.Get(ctx, projectID); err != nil {
		return nil, err
	}
	rows, err := s.attributeRepo.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	set := entities.BuildAttributeSet(rows)
	if len(set.Corrupt) > 0 {
		s.logger.Warn("project has corrupt attributes",
			zap.Int64("project_id", projectID),
			zap.Strings("keys", corruptKeys(set)),
		)
	}
	return set, nil
}

// DeleteAttribute removes (projectID, key); an absent key is not an error
func (s *AttributeService) DeleteAttribute(ctx context.Context, projectID int64, key string) error {
	if err := entities.ValidateAttributeKey(key); err != nil {
		return err
	}
	removed, err := s.attributeRepo.Delete(ctx, projectID, key)
	if err != nil {
		return err
	}
	if removed {
		s.cache.Invalidate(ctx, projectID)
		s.logger.Debug("attribute deleted", zap.Int64("project_id", projectID), zap.String("key", key))
	}
	return nil
}

func corruptKeys(set *entities.AttributeSet) []string {
	keys := make([]string, 0, len(set.Corrupt))
	for _, k := range set.Keys() {
		if _, ok := set.Corrupt[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}
