package repositories

import (
	"context"

	"github.com/asakaida/warehouse/internal/entities"
)

// UpsertResult describes what an attribute upsert did
type UpsertResult struct {
	Inserted     bool
	PreviousKind entities.ValueKind // empty when Inserted
}

// AttributeRepository defines the interface for project attribute data access.
// Values reach it only as entities.StoredValue, i.e. already validated by the kind registry.
type AttributeRepository interface {
	// Upsert creates or replaces the (projectID, key) tuple atomically.
	// A kind different from the stored one is a ConflictError unless allowKindChange is set.
	Upsert(ctx context.Context, projectID int64, key string, value entities.StoredValue, allowKindChange bool) (*UpsertResult, error)

	// Get retrieves the raw row for (projectID, key)
	Get(ctx context.Context, projectID int64, key string) (*entities.ProjectAttribute, error)

	// List retrieves every raw row of a project ordered by key
	List(ctx context.Context, projectID int64) ([]*entities.ProjectAttribute, error)

	// Delete removes (projectID, key); absent keys are not an error
	Delete(ctx context.Context, projectID int64, key string) (bool, error)

	// Scan pages through all rows across projects ordered by ID, for auditing
	Scan(ctx context.Context, afterID int64, limit int) ([]*entities.ProjectAttribute, error)
}
