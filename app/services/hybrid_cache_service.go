package services

import (
	"context"
	"errors"

	"github.com/geo-recog/app/models"
	"go.uber.org/zap"
)

// HybridCacheService reads the in-process LRU first and Redis second,
// back-filling the LRU on a Redis hit. Redis errors degrade to a miss.
type HybridCacheService struct {
	memory *MemoryCacheService
	redis  ICacheService
	logger *zap.Logger
}

func NewHybridCacheService(memory *MemoryCacheService, redis ICacheService, logger *zap.Logger) *HybridCacheService {
	return &HybridCacheService{memory: memory, redis: redis, logger: logger}
}

func (hcs *HybridCacheService) Get(ctx context.Context, key string) (*models.GeoResolution, bool, error) {
	if result, found, _ := hcs.memory.Get(ctx, key); found {
		return result, true, nil
	}

	result, found, err := hcs.redis.Get(ctx, key)
	if err != nil {
		hcs.logger.Warn("L2 cache unavailable", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	_ = hcs.memory.Set(ctx, key, result)
	return result, true, nil
}

func (hcs *HybridCacheService) Set(ctx context.Context, key string, result *models.GeoResolution) error {
	_ = hcs.memory.Set(ctx, key, result)
	if err := hcs.redis.Set(ctx, key, result); err != nil {
		hcs.logger.Warn("L2 cache write failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (hcs *HybridCacheService) Delete(ctx context.Context, key string) error {
	_ = hcs.memory.Delete(ctx, key)
	return hcs.redis.Delete(ctx, key)
}

func (hcs *HybridCacheService) Clear(ctx context.Context) error {
	_ = hcs.memory.Clear(ctx)
	return hcs.redis.Clear(ctx)
}

// GetStats reports L1 counters and the L2 item count.
func (hcs *HybridCacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	l1, _ := hcs.memory.GetStats(ctx)
	stats := *l1
	stats.Driver = "hybrid"
	if l2, err := hcs.redis.GetStats(ctx); err == nil {
		stats.TotalItems = l2.TotalItems
	}
	return &stats, nil
}

func (hcs *HybridCacheService) Close() error {
	return errors.Join(hcs.memory.Close(), hcs.redis.Close())
}
