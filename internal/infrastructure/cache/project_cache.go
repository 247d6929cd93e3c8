package cache

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/asakaida/warehouse/pkg/cache"
)

const projectKeyPrefix = "project:"

// ProjectViewCache stores assembled project views keyed by project ID.
// Views are cloned on the way in and out so callers never share attribute maps.
//
// Loaders take a Token before reading the database and hand it back to Set;
// a view loaded before any later invalidation is discarded instead of cached.
type ProjectViewCache struct {
	store      cache.Cache[*entities.ProjectView]
	ttl        time.Duration
	generation atomic.Uint64
}

// NewProjectViewCache wraps a generic cache for project views
func NewProjectViewCache(store cache.Cache[*entities.ProjectView], ttl time.Duration) *ProjectViewCache {
	return &ProjectViewCache{store: store, ttl: ttl}
}

func projectKey(id int64) string {
	return projectKeyPrefix + strconv.FormatInt(id, 10)
}

// Get returns a copy of the cached view for id
func (c *ProjectViewCache) Get(ctx context.Context, id int64) (*entities.ProjectView, bool) {
	view, ok := c.store.Get(ctx, projectKey(id))
	if !ok {
		return nil, false
	}
	return view.Clone(), true
}

// Token returns the current invalidation generation
func (c *ProjectViewCache) Token() uint64 {
	return c.generation.Load()
}

// Set caches a copy of view unless something was invalidated since token was taken
func (c *ProjectViewCache) Set(ctx context.Context, view *entities.ProjectView, token uint64) {
	if c.generation.Load() != token {
		return
	}
	_ = c.store.Set(ctx, projectKey(view.Project.ID), view.Clone(), c.ttl)
	// An invalidation racing with the store write must still win
	if c.generation.Load() != token {
		_ = c.store.Delete(ctx, projectKey(view.Project.ID))
	}
}

// Invalidate drops the view of one project
func (c *ProjectViewCache) Invalidate(ctx context.Context, id int64) {
	c.generation.Add(1)
	_ = c.store.Delete(ctx, projectKey(id))
}

// InvalidateAll drops every cached view
func (c *ProjectViewCache) InvalidateAll(ctx context.Context) {
	c.generation.Add(1)
	_ = c.store.Clear(ctx)
}

// Len returns the number of cached views
func (c *ProjectViewCache) Len() int {
	return c.store.Len()
}

// Metrics returns the underlying cache statistics
func (c *ProjectViewCache) Metrics() *cache.Metrics {
	return c.store.Metrics()
}

// EstimateViewSize approximates the bytes held by a cached view
func EstimateViewSize(key string, view *entities.ProjectView) int64 {
	size := int64(256 + len(key))
	if view == nil {
		return size
	}
	p := view.Project
	size += int64(len(p.Name) + len(p.Token) + len(p.Category) + len(p.ContractAddress))
	if view.Attributes != nil {
		for k, v := range view.Attributes.Values {
			size += int64(64 + len(k) + len(v.Text()))
		}
		for k, c := range view.Attributes.Corrupt {
			size += int64(128 + len(k) + len(c.Value))
		}
	}
	return size
}
