package services

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/geo-recog/internal/pool"
	"go.uber.org/zap"
)

// PoolStatsSource reports endpoint pool occupancy.
type PoolStatsSource interface {
	Stats() pool.Stats
}

// VocabularyInfo describes the loaded vocabularies.
type VocabularyInfo struct {
	Provinces int `json:"provinces"`
	Entries   int `json:"entries"`
}

// SystemStats is the admin view of the running service.
type SystemStats struct {
	Pool        pool.Stats        `json:"pool"`
	Cache       *CacheStats       `json:"cache,omitempty"`
	Resolver    GeoServiceStats   `json:"resolver"`
	Vocabulary  VocabularyInfo    `json:"vocabulary"`
	Uptime      string            `json:"uptime"`
	MemoryUsage map[string]uint64 `json:"memory_usage"`
}

// AdminService backs the admin endpoints.
type AdminService struct {
	geo    *GeoService
	pool   PoolStatsSource
	vocab  VocabularyInfo
	logger *zap.Logger
}

func NewAdminService(geo *GeoService, pool PoolStatsSource, vocab VocabularyInfo, logger *zap.Logger) *AdminService {
	return &AdminService{geo: geo, pool: pool, vocab: vocab, logger: logger}
}

func (as *AdminService) GetSystemStats(ctx context.Context) *SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := &SystemStats{
		Pool:       as.pool.Stats(),
		Resolver:   as.geo.GetStats(),
		Vocabulary: as.vocab,
		Uptime:     time.Since(as.geo.StartTime()).Round(time.Second).String(),
		MemoryUsage: map[string]uint64{
			"alloc_mb":       bToMb(m.Alloc),
			"total_alloc_mb": bToMb(m.TotalAlloc),
			"sys_mb":         bToMb(m.Sys),
			"num_gc":         uint64(m.NumGC),
		},
	}
	if cache := as.geo.Cache(); cache != nil {
		cs, err := cache.GetStats(ctx)
		if err != nil {
			as.logger.Warn("Cache stats unavailable", zap.Error(err))
		} else {
			stats.Cache = cs
		}
	}
	return stats
}

// InvalidateCache drops the cached result of content, or every cached
// result when content is empty. It reports whether a cache is configured.
func (as *AdminService) InvalidateCache(ctx context.Context, content string) (bool, error) {
	cache := as.geo.Cache()
	if cache == nil {
		return false, nil
	}
	if content == "" {
		if err := cache.Clear(ctx); err != nil {
			return true, fmt.Errorf("clear cache: %w", err)
		}
		as.logger.Info("Result cache cleared")
		return true, nil
	}
	if err := cache.Delete(ctx, as.geo.CacheKey(content)); err != nil {
		return true, fmt.Errorf("delete cache entry: %w", err)
	}
	return true, nil
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
