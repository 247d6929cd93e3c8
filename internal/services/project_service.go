package services

import (
	"context"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/asakaida/warehouse/internal/repositories"
	"go.uber.org/zap"
)

// ProjectServiceInterface defines the project registry operations
type ProjectServiceInterface interface {
	CreateProject(ctx context.Context, project *entities.Project, attrs []entities.AttributeInput) (*entities.ProjectView, error)
	GetProject(ctx context.Context, id int64) (*entities.ProjectView, error)
	GetProjectByName(ctx context.Context, name string) (*entities.ProjectView, error)
	GetProjectByAddress(ctx context.Context, address string) (*entities.ProjectView, error)
	ListProjects(ctx context.Context, filter *repositories.ProjectFilter) ([]*entities.Project, error)
	UpdateProject(ctx context.Context, id int64, update *entities.ProjectUpdate) (*entities.Project, error)
	DeleteProject(ctx context.Context, id int64) (*entities.CascadeSummary, error)
}

// ProjectService manages projects and assembles project views
type ProjectService struct {
	projectRepo repositories.ProjectRepository
	cache       ProjectCache
	recorder    AttributeRecorder
	logger      *zap.Logger
}

// NewProjectService creates a new ProjectService. cache, recorder and logger may be nil.
func NewProjectService(
	projectRepo repositories.ProjectRepository,
	cache ProjectCache,
	recorder AttributeRecorder,
	logger *zap.Logger,
) *ProjectService {
	if cache == nil {
		cache = noopCache{}
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectService{
		projectRepo: projectRepo,
		cache:       cache,
		recorder:    recorder,
		logger:      logger.Named("project"),
	}
}

// CreateProject inserts a project together with its initial attributes
func (s *ProjectService) CreateProject(ctx context.Context, project *entities.Project, attrs []entities.AttributeInput) (*entities.ProjectView, error) {
	seen := make(map[string]struct{}, len(attrs))
	for _, attr := range attrs {
		if _, dup := seen[attr.Key]; dup {
			return nil, entities.NewValidationError("attributes", "duplicate key %q", attr.Key)
		}
		seen[attr.Key] = struct{}{}
	}

	created, err := s.projectRepo.Create(ctx, project, attrs)
	if err != nil {
		return nil, err
	}

	set := entities.NewAttributeSet()
	for _, attr := range attrs {
		v, err := entities.Decode(string(attr.Value.Kind()), attr.Value.Text())
		if err != nil {
			return nil, err
		}
		set.Values[attr.Key] = v
		s.recorder.RecordAttributeWrite(string(attr.Value.Kind()))
	}

	s.logger.Info("project created",
		zap.Int64("project_id", created.ID),
		zap.String("address", created.ContractAddress),
		zap.Int("attributes", len(attrs)),
	)
	return &entities.ProjectView{Project: *created, Attributes: set}, nil
}

// GetProject returns the project with its full attribute set
func (s *ProjectService) GetProject(ctx context.Context, id int64) (*entities.ProjectView, error) {
	if view, ok := s.cache.Get(ctx, id); ok {
		return view, nil
	}
	return s.load(ctx, id)
}

// GetProjectByName returns the first project with the given name
func (s *ProjectService) GetProjectByName(ctx context.Context, name string) (*entities.ProjectView, error) {
	name, err := entities.NormalizeName("name", name)
	if err != nil {
		return nil, err
	}
	project, err := s.projectRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if view, ok := s.cache.Get(ctx, project.ID); ok {
		return view, nil
	}
	return s.load(ctx, project.ID)
}

// GetProjectByAddress returns the project anchored to a contract address
func (s *ProjectService) GetProjectByAddress(ctx context.Context, address string) (*entities.ProjectView, error) {
	address, err := entities.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	project, err := s.projectRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if view, ok := s.cache.Get(ctx, project.ID); ok {
		return view, nil
	}
	return s.load(ctx, project.ID)
}

// load reads the project and its attributes from one snapshot, decodes them
// and caches the result
func (s *ProjectService) load(ctx context.Context, id int64) (*entities.ProjectView, error) {
	token := s.cache.Token()
	project, rows, err := s.projectRepo.GetWithAttributes(ctx, id)
	if err != nil {
		return nil, err
	}

	set := entities.BuildAttributeSet(rows)
	for key, cerr := range set.Corrupt {
		s.logger.Warn("corrupt attribute",
			zap.Int64("project_id", project.ID),
			zap.String("key", key),
			zap.String("value_type", cerr.ValueType),
			zap.Error(cerr.Err),
		)
	}

	view := &entities.ProjectView{Project: *project, Attributes: set}
	s.cache.Set(ctx, view, token)
	return view.Clone(), nil
}

// ListProjects returns projects ordered by ID, optionally filtered by category
func (s *ProjectService) ListProjects(ctx context.Context, filter *repositories.ProjectFilter) ([]*entities.Project, error) {
	if filter == nil {
		filter = &repositories.ProjectFilter{}
	}
	if filter.Limit < 0 {
		return nil, entities.NewValidationError("limit", "must not be negative")
	}
	return s.projectRepo.List(ctx, filter)
}

// UpdateProject mutates the fixed columns of a project
func (s *ProjectService) UpdateProject(ctx context.Context, id int64, update *entities.ProjectUpdate) (*entities.Project, error) {
	project, err := s.projectRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if update == nil || update.IsEmpty() {
		return project, nil
	}
	if err := update.Apply(project); err != nil {
		return nil, err
	}

	updated, err := s.projectRepo.Update(ctx, project)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)

	s.logger.Info("project updated", zap.Int64("project_id", id))
	return updated, nil
}

// DeleteProject removes a project and its attributes
func (s *ProjectService) DeleteProject(ctx context.Context, id int64) (*entities.CascadeSummary, error) {
	summary, err := s.projectRepo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)

	s.logger.Info("project deleted",
		zap.Int64("project_id", id),
		zap.Int64("attributes", summary.Attributes),
	)
	return summary, nil
}
