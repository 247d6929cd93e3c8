package repositories

import (
	"context"

	"github.com/asakaida/warehouse/internal/entities"
)

// ProjectFilter defines filter criteria for listing projects
type ProjectFilter struct {
	Category string // Filter by category (optional)
	Limit    int    // Maximum rows, 0 for the repository default
	AfterID  int64  // Keyset pagination cursor (optional)
}

// ProjectRepository defines the interface for project data access
type ProjectRepository interface {
	// Create inserts a project and its initial attributes in a single transaction
	Create(ctx context.Context, project *entities.Project, attrs []entities.AttributeInput) (*entities.Project, error)

	// Get retrieves a project by ID
	Get(ctx context.Context, id int64) (*entities.Project, error)

	// GetWithAttributes reads a project row and all of its attribute rows from
	// one snapshot, so a concurrent cascade is seen entirely or not at all
	GetWithAttributes(ctx context.Context, id int64) (*entities.Project, []*entities.ProjectAttribute, error)

	// GetByName retrieves the first project with the given name
	GetByName(ctx context.Context, name string) (*entities.Project, error)

	// GetByAddress retrieves the project anchored to a contract address
	GetByAddress(ctx context.Context, address string) (*entities.Project, error)

	// List retrieves projects ordered by ID
	List(ctx context.Context, filter *ProjectFilter) ([]*entities.Project, error)

	// Update writes the fixed columns of an existing project and refreshes updated_at
	Update(ctx context.Context, project *entities.Project) (*entities.Project, error)

	// Delete removes a project and, by cascade, its attributes
	Delete(ctx context.Context, id int64) (*entities.CascadeSummary, error)
}
