package services

import (
	"context"

	"github.com/asakaida/warehouse/internal/entities"
)

// ProjectCache holds assembled project views. Implementations must discard a
// Set whose token predates a later invalidation.
type ProjectCache interface {
	Get(ctx context.Context, id int64) (*entities.ProjectView, bool)
	Token() uint64
	Set(ctx context.Context, view *entities.ProjectView, token uint64)
	Invalidate(ctx context.Context, id int64)
	InvalidateAll(ctx context.Context)
}

// AttributeRecorder receives attribute store events for metrics
type AttributeRecorder interface {
	RecordAttributeWrite(valueType string)
	RecordKindChange()
}

type noopCache struct{}

func (noopCache) Get(context.Context, int64) (*entities.ProjectView, bool) { return nil, false }
func (noopCache) Token() uint64                                            { return 0 }
func (noopCache) Set(context.Context, *entities.ProjectView, uint64)       {}
func (noopCache) Invalidate(context.Context, int64)                        {}
func (noopCache) InvalidateAll(context.Context)                            {}

type noopRecorder struct{}

func (noopRecorder) RecordAttributeWrite(string) {}
func (noopRecorder) RecordKindChange()           {}
