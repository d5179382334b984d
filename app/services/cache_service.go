package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/geo-recog/app/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCacheService is a bounded in-process LRU with per-entry TTL.
type MemoryCacheService struct {
	cache  *expirable.LRU[string, *models.GeoResolution]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryCacheService keeps at most size entries for ttl each.
func NewMemoryCacheService(size int, ttl time.Duration) *MemoryCacheService {
	if size <= 0 {
		size = 1000
	}
	return &MemoryCacheService{
		cache: expirable.NewLRU[string, *models.GeoResolution](size, nil, ttl),
	}
}

func (cs *MemoryCacheService) Get(ctx context.Context, key string) (*models.GeoResolution, bool, error) {
	result, ok := cs.cache.Get(key)
	if !ok {
		cs.misses.Add(1)
		return nil, false, nil
	}
	cs.hits.Add(1)
	return result.Clone(), true, nil
}

func (cs *MemoryCacheService) Set(ctx context.Context, key string, result *models.GeoResolution) error {
	cs.cache.Add(key, result.Clone())
	return nil
}

func (cs *MemoryCacheService) Delete(ctx context.Context, key string) error {
	cs.cache.Remove(key)
	return nil
}

func (cs *MemoryCacheService) Clear(ctx context.Context) error {
	cs.cache.Purge()
	return nil
}

func (cs *MemoryCacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	hits, misses := cs.hits.Load(), cs.misses.Load()
	return &CacheStats{
		Driver:     "memory",
		HitRate:    hitRate(hits, misses),
		TotalHits:  hits,
		TotalMiss:  misses,
		TotalItems: int64(cs.cache.Len()),
	}, nil
}

// Close is a no-op.
func (cs *MemoryCacheService) Close() error {
	return nil
}
