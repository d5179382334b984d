package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/geo-recog/app/models"
	"github.com/geo-recog/helpers/utils"
	"github.com/geo-recog/internal/llm"
	"github.com/geo-recog/internal/oov"
	"go.uber.org/zap"
)

// DefaultThreshold is the similarity a normalized name must exceed.
const DefaultThreshold = 0.8

// Extractor produces the raw province and city of a text.
type Extractor interface {
	Extract(ctx context.Context, text string) (llm.Extraction, error)
}

// NameNormalizer maps a free-text name onto a fixed vocabulary.
type NameNormalizer interface {
	Attach(ctx context.Context, text string) (oov.Result, error)
}

// CodeLookup resolves administrative codes.
type CodeLookup interface {
	CodeFor(city, province *string) *string
}

// ResolveOptions selects strict or lenient failure handling and caching.
// Lenient mode turns every failure into null fields; strict mode returns
// extraction and normalization errors to the caller.
type ResolveOptions struct {
	Strict   bool `json:"strict"`
	UseCache bool `json:"use_cache"`
}

// GeoServiceConfig holds the tunables of GeoService.
type GeoServiceConfig struct {
	Threshold     float64
	PromptVersion string
}

// GeoServiceStats counts outcomes since start.
type GeoServiceStats struct {
	Requests         int64            `json:"requests"`
	CacheHits        int64            `json:"cache_hits"`
	ExtractFailures  map[string]int64 `json:"extract_failures"`
	ProvinceRejected int64            `json:"province_rejected"`
	CityRejected     int64            `json:"city_rejected"`
	Unresolved       int64            `json:"unresolved_code"`
	UptimeSeconds    int64            `json:"uptime_seconds"`
}

// GeoService resolves news texts to {province, city, code}.
type GeoService struct {
	extractor Extractor
	provinces NameNormalizer
	cities    NameNormalizer
	codes     CodeLookup
	cache     ICacheService
	cfg       GeoServiceConfig
	logger    *zap.Logger
	startTime time.Time

	requests         atomic.Int64
	cacheHits        atomic.Int64
	provinceRejected atomic.Int64
	cityRejected     atomic.Int64
	unresolved       atomic.Int64
	failures         [len(failureKinds)]atomic.Int64
}

var failureKinds = [...]string{
	"endpoint_unavailable",
	"inference_timeout",
	"inference_failed",
	"malformed_extraction",
	"missing_field",
	"unknown",
}

// NewGeoService wires the pipeline. cache may be nil.
func NewGeoService(extractor Extractor, provinces, cities NameNormalizer, codes CodeLookup, cache ICacheService, cfg GeoServiceConfig, logger *zap.Logger) *GeoService {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &GeoService{
		extractor: extractor,
		provinces: provinces,
		cities:    cities,
		codes:     codes,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Resolve runs extraction, normalization and code lookup for one text.
// The bool reports a cache hit. Only lenient results whose extraction
// succeeded are cached.
func (gs *GeoService) Resolve(ctx context.Context, text string, opts ResolveOptions) (*models.GeoResolution, bool, error) {
	gs.requests.Add(1)

	useCache := opts.UseCache && !opts.Strict && gs.cache != nil
	var key string
	if useCache {
		key = gs.CacheKey(text)
		if cached, found, err := gs.cache.Get(ctx, key); err == nil && found {
			gs.cacheHits.Add(1)
			return cached, true, nil
		}
	}

	result, degraded, err := gs.resolve(ctx, text, opts.Strict)
	if err != nil {
		return nil, false, err
	}

	if useCache && !degraded {
		if err := gs.cache.Set(ctx, key, result); err != nil {
			gs.logger.Warn("Cache write failed", zap.Error(err))
		}
	}
	return result, false, nil
}

// resolve reports degraded when a failure was absorbed into nulls.
func (gs *GeoService) resolve(ctx context.Context, text string, strict bool) (*models.GeoResolution, bool, error) {
	degraded := false

	ext, err := gs.extractor.Extract(ctx, text)
	if err != nil {
		gs.countFailure(err)
		if strict {
			return nil, false, fmt.Errorf("extract: %w", err)
		}
		var missing *llm.MissingFieldError
		if !errors.As(err, &missing) {
			gs.logger.Warn("Extraction failed", zap.String("kind", llm.Kind(err)), zap.Error(err))
			return &models.GeoResolution{}, true, nil
		}
		gs.logger.Info("Extraction incomplete", zap.Strings("missing", missing.Fields))
	}

	province := models.StringPtr(ext.Province)
	city := models.StringPtr(ext.City)

	if province != nil {
		res, err := gs.provinces.Attach(ctx, *province)
		switch {
		case err != nil:
			if strict {
				return nil, false, fmt.Errorf("normalize province: %w", err)
			}
			gs.logger.Warn("Province normalization failed", zap.String("province", *province), zap.Error(err))
			province, city, degraded = nil, nil, true
		case !res.Accepted(gs.cfg.Threshold):
			gs.provinceRejected.Add(1)
			gs.logger.Debug("Province below threshold",
				zap.String("province", *province),
				zap.String("match", res.Match),
				zap.Float64("similarity", res.Similarity))
			province, city = nil, nil
		default:
			province = &res.Match
		}
	}

	if city != nil {
		res, err := gs.cities.Attach(ctx, *city)
		switch {
		case err != nil:
			if strict {
				return nil, false, fmt.Errorf("normalize city: %w", err)
			}
			gs.logger.Warn("City normalization failed", zap.String("city", *city), zap.Error(err))
			city, degraded = nil, true
		case !res.Accepted(gs.cfg.Threshold):
			gs.cityRejected.Add(1)
			gs.logger.Debug("City below threshold",
				zap.String("city", *city),
				zap.String("match", res.Match),
				zap.Float64("similarity", res.Similarity))
			city = nil
		default:
			city = &res.Match
		}
	}

	code := gs.codes.CodeFor(city, province)
	if code == nil && (city != nil || province != nil) {
		gs.unresolved.Add(1)
	}
	return &models.GeoResolution{Province: province, City: city, Code: code}, degraded, nil
}

func (gs *GeoService) countFailure(err error) {
	kind := llm.Kind(err)
	for i, k := range failureKinds {
		if k == kind {
			gs.failures[i].Add(1)
			return
		}
	}
	gs.failures[len(failureKinds)-1].Add(1)
}

// GetStats returns outcome counters.
func (gs *GeoService) GetStats() GeoServiceStats {
	failures := make(map[string]int64, len(failureKinds))
	for i, k := range failureKinds {
		failures[k] = gs.failures[i].Load()
	}
	return GeoServiceStats{
		Requests:         gs.requests.Load(),
		CacheHits:        gs.cacheHits.Load(),
		ExtractFailures:  failures,
		ProvinceRejected: gs.provinceRejected.Load(),
		CityRejected:     gs.cityRejected.Load(),
		Unresolved:       gs.unresolved.Load(),
		UptimeSeconds:    int64(time.Since(gs.startTime).Seconds()),
	}
}

// CacheKey is the result-cache key of text.
func (gs *GeoService) CacheKey(text string) string {
	return utils.Fingerprint(text, gs.cfg.PromptVersion)
}

// StartTime is when the service was built.
func (gs *GeoService) StartTime() time.Time { return gs.startTime }

// Cache returns the result cache, or nil.
func (gs *GeoService) Cache() ICacheService { return gs.cache }
