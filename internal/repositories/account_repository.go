package repositories

import (
	"context"

	"github.com/asakaida/warehouse/internal/entities"
)

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	// Upsert returns the account for address, creating it if absent.
	// entityID assigns an owner; an account owned by another entity is only moved when reassign is set.
	Upsert(ctx context.Context, address string, entityID *int64, reassign bool) (*entities.Account, error)

	// Get retrieves an account by ID
	Get(ctx context.Context, id int64) (*entities.Account, error)

	// GetByAddress retrieves an account by its unique address
	GetByAddress(ctx context.Context, address string) (*entities.Account, error)

	// ListByEntity retrieves every account owned by an entity
	ListByEntity(ctx context.Context, entityID int64) ([]*entities.Account, error)

	// Delete removes an account and cascades to its projects and their attributes
	Delete(ctx context.Context, address string) (*entities.CascadeSummary, error)
}
