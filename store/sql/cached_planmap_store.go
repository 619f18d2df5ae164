package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-provision/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const planMapCacheKeyPrefix = "go-provision::plan_map::v1"

// PlanMapSource is the writable plan map surface the cached store wraps.
type PlanMapSource interface {
	ResolvePlan(ctx context.Context, planCode string) (core.PlanMap, error)
	Save(ctx context.Context, in core.PlanMap) (core.PlanMap, error)
}

// CachedPlanMapStore fronts plan map resolution with a cache. Plan maps
// change when operators publish a new mapping, not per kick, so every
// dispatch hitting the database for the same plan code is wasted work.
type CachedPlanMapStore struct {
	base  PlanMapSource
	cache repositorycache.CacheService
}

func NewCachedPlanMapStore(base PlanMapSource, cacheService repositorycache.CacheService) (*CachedPlanMapStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base plan map store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: plan map cache service is required")
	}
	return &CachedPlanMapStore{base: base, cache: cacheService}, nil
}

// PlanMapCacheKey returns the deterministic cache key for a plan code:
// go-provision::plan_map::v1::<plan_code> with the code URL-path escaped.
func PlanMapCacheKey(planCode string) (string, error) {
	trimmedCode := strings.TrimSpace(planCode)
	if trimmedCode == "" {
		return "", fmt.Errorf("sqlstore: plan code is required")
	}
	return planMapCacheKeyPrefix + "::" + url.PathEscape(trimmedCode), nil
}

func (s *CachedPlanMapStore) ResolvePlan(ctx context.Context, planCode string) (core.PlanMap, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.PlanMap{}, fmt.Errorf("sqlstore: cached plan map store is not configured")
	}
	cacheKey, err := PlanMapCacheKey(planCode)
	if err != nil {
		return core.PlanMap{}, err
	}
	planMap, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.PlanMap, error) {
		fetched, fetchErr := s.base.ResolvePlan(ctx, planCode)
		if fetchErr != nil {
			return core.PlanMap{}, fetchErr
		}
		return clonePlanMap(fetched), nil
	})
	if err != nil {
		return core.PlanMap{}, err
	}
	return clonePlanMap(planMap), nil
}

// Save writes through to the base store and drops the cached entry so the
// next resolve observes the new mapping.
func (s *CachedPlanMapStore) Save(ctx context.Context, in core.PlanMap) (core.PlanMap, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.PlanMap{}, fmt.Errorf("sqlstore: cached plan map store is not configured")
	}
	saved, err := s.base.Save(ctx, in)
	if err != nil {
		return core.PlanMap{}, err
	}
	cacheKey, err := PlanMapCacheKey(saved.PlanCode)
	if err != nil {
		return core.PlanMap{}, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.PlanMap{}, err
	}
	return saved, nil
}

func clonePlanMap(planMap core.PlanMap) core.PlanMap {
	cloned := planMap
	cloned.Config = copyAnyMap(planMap.Config)
	return cloned
}
