package services

import (
	"context"
	"fmt"

	"github.com/geo-recog/app/config"
	"github.com/geo-recog/app/models"
	"go.uber.org/zap"
)

// CacheStats summarizes one cache layer.
type CacheStats struct {
	Driver     string  `json:"driver"`
	HitRate    float64 `json:"hit_rate"`
	TotalHits  int64   `json:"total_hits"`
	TotalMiss  int64   `json:"total_miss"`
	TotalItems int64   `json:"total_items"`
}

// ICacheService stores resolutions keyed by content fingerprint.
type ICacheService interface {
	Get(ctx context.Context, key string) (*models.GeoResolution, bool, error)
	Set(ctx context.Context, key string, result *models.GeoResolution) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	GetStats(ctx context.Context) (*CacheStats, error)
	Close() error
}

func hitRate(hits, misses int64) float64 {
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}

// NewResultCache builds the cache named by cfg.Driver. It returns nil for
// driver "none".
func NewResultCache(cfg config.CacheCfg, logger *zap.Logger) (ICacheService, error) {
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "memory":
		return NewMemoryCacheService(cfg.Size, cfg.TTL), nil
	case "redis", "hybrid":
		redisCache, err := NewRedisCacheService(cfg.RedisURL, cfg.Prefix, cfg.TTL, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Driver == "redis" {
			return redisCache, nil
		}
		return NewHybridCacheService(NewMemoryCacheService(cfg.Size, cfg.TTL), redisCache, logger), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
