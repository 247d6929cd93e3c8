package repositories

import (
	"context"

	"github.com/asakaida/warehouse/internal/entities"
)

// EntityRepository defines the interface for entity data access
type EntityRepository interface {
	// Upsert returns the entity with the given name, creating it on first reference
	Upsert(ctx context.Context, name string) (*entities.Entity, error)

	// Get retrieves an entity by ID
	Get(ctx context.Context, id int64) (*entities.Entity, error)

	// GetByName retrieves an entity by its unique name
	GetByName(ctx context.Context, name string) (*entities.Entity, error)

	// Delete removes an entity and, through the schema's cascades, its accounts,
	// their projects and those projects' attributes, in one transaction
	Delete(ctx context.Context, id int64) (*entities.CascadeSummary, error)
}
