package tasktype

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nptracker/nptracker/internal/domain/cadence"
	"github.com/nptracker/nptracker/internal/platform/telemetry"
)

const (
	defaultCacheSize = 128
	defaultCacheTTL  = time.Minute
)

// RegistryConfig sizes the stage cache. Zero values fall back to defaults.
type RegistryConfig struct {
	// Size is the maximum number of cached task types.
	Size int
	// TTL bounds how long stages written elsewhere (the seed command, another
	// server) can go unseen.
	TTL time.Duration
}

type registryEntry struct {
	stages   cadence.Stages
	storedAt time.Time
}

// Registry serves stage lists by exact task type name from an LRU cache in
// front of the repository. Only found types are cached, each for at most the
// configured TTL; writes through the Service invalidate the affected names.
type Registry struct {
	types   Repository
	cache   *lru.Cache[string, registryEntry]
	ttl     time.Duration
	metrics *telemetry.Metrics
	now     func() time.Time
}

var _ cadence.Registry = (*Registry)(nil)

func NewRegistry(types Repository, cfg RegistryConfig, metrics *telemetry.Metrics) (*Registry, error) {
	if cfg.Size <= 0 {
		cfg.Size = defaultCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	cache, err := lru.New[string, registryEntry](cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("create registry cache: %w", err)
	}
	return &Registry{types: types, cache: cache, ttl: cfg.TTL, metrics: metrics, now: time.Now}, nil
}

func (r *Registry) LookupStages(ctx context.Context, taskName string) (cadence.Stages, bool, error) {
	if entry, ok := r.cache.Get(taskName); ok {
		if r.now().Sub(entry.storedAt) < r.ttl {
			r.metrics.RegistryLookup("hit")
			return entry.stages, true, nil
		}
		r.cache.Remove(taskName)
	}

	t, err := r.types.GetByName(ctx, taskName)
	switch {
	case errors.Is(err, ErrNotFound):
		r.metrics.RegistryLookup("not_found")
		return nil, false, nil
	case err != nil:
		r.metrics.RegistryLookup("error")
		return nil, false, fmt.Errorf("lookup task type %q: %w", taskName, err)
	}

	r.metrics.RegistryLookup("miss")
	r.cache.Add(taskName, registryEntry{stages: t.Stages, storedAt: r.now()})
	return t.Stages, true, nil
}

// Invalidate drops the cached stages of the named task types.
func (r *Registry) Invalidate(names ...string) {
	for _, n := range names {
		r.cache.Remove(n)
	}
}

// Purge empties the cache.
func (r *Registry) Purge() {
	r.cache.Purge()
}

// Len returns the number of cached task types.
func (r *Registry) Len() int {
	return r.cache.Len()
}
