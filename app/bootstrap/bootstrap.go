// Package bootstrap assembles the resolution pipeline from configuration.
// Both the HTTP server and the batch CLI start from here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/geo-recog/app/config"
	"github.com/geo-recog/app/services"
	"github.com/geo-recog/internal/backend"
	"github.com/geo-recog/internal/embedding"
	"github.com/geo-recog/internal/llm"
	"github.com/geo-recog/internal/oov"
	"github.com/geo-recog/internal/pool"
	"github.com/geo-recog/internal/vocab"
	"go.uber.org/zap"
)

// NewLogger returns a production logger in production and a development
// logger otherwise.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Runtime holds the long-lived components of a running process.
type Runtime struct {
	Config     *config.Config
	Vocab      *vocab.Store
	Pool       *pool.Pool
	Supervisor *backend.Supervisor
	Cache      services.ICacheService
	Geo        *services.GeoService
	Batch      *services.BatchService
	Admin      *services.AdminService

	logger *zap.Logger
}

// Build loads the vocabularies, embeds them, brings up the inference
// servers and wires the services. On error everything already started is
// torn down.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (rt *Runtime, err error) {
	rt = &Runtime{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	rt.Vocab, err = vocab.Load(cfg.Vocab.ProvincePath, cfg.Vocab.FullPath)
	if err != nil {
		return rt, err
	}
	logger.Info("Vocabulary loaded",
		zap.Int("provinces", len(rt.Vocab.Provinces())),
		zap.Int("entries", len(rt.Vocab.All())))

	provinces, cities, err := buildNormalizers(ctx, cfg, rt.Vocab, logger)
	if err != nil {
		return rt, err
	}

	rt.Supervisor = backend.New(backend.Config{
		URLs:          cfg.EndpointURLs(),
		Launch:        cfg.Backend.Launch && len(cfg.Backend.Endpoints) == 0,
		BasePort:      cfg.Backend.BasePort,
		ModelPath:     cfg.Backend.ModelPath,
		ServedName:    cfg.Backend.ServedName,
		Python:        cfg.Backend.Python,
		ExtraArgs:     cfg.Backend.ExtraArgs,
		APIKey:        cfg.LLM.APIKey,
		ReadyTimeout:  cfg.Backend.ReadyTimeout,
		ReadyInterval: cfg.Backend.ReadyInterval,
		StopGrace:     cfg.Backend.StopGrace,
	}, logger)
	endpoints, err := rt.Supervisor.Start(ctx)
	if err != nil {
		return rt, fmt.Errorf("start inference backends: %w", err)
	}

	rt.Pool, err = pool.New(endpoints, logger)
	if err != nil {
		return rt, err
	}

	prompt, err := llm.LoadPrompt()
	if err != nil {
		return rt, err
	}
	extractor, err := llm.NewExtractor(rt.Pool, llm.OpenAIDialer(cfg.LLM.APIKey, cfg.LLM.Model), prompt, cfg.LLM.Timeout, logger)
	if err != nil {
		return rt, err
	}

	rt.Cache, err = services.NewResultCache(cfg.Cache, logger)
	if err != nil {
		return rt, fmt.Errorf("result cache: %w", err)
	}

	rt.Geo = services.NewGeoService(extractor, provinces, cities, rt.Vocab, rt.Cache, services.GeoServiceConfig{
		Threshold:     cfg.OOV.Threshold,
		PromptVersion: prompt.Version,
	}, logger)

	workers := cfg.Batch.Workers
	if workers <= 0 {
		workers = rt.Pool.Size()
	}
	rt.Batch = services.NewBatchService(rt.Geo, workers, cfg.Batch.JobTTL, logger)
	rt.Admin = services.NewAdminService(rt.Geo, rt.Pool, services.VocabularyInfo{
		Provinces: len(rt.Vocab.Provinces()),
		Entries:   len(rt.Vocab.All()),
	}, logger)
	return rt, nil
}

func buildNormalizers(ctx context.Context, cfg *config.Config, store *vocab.Store, logger *zap.Logger) (*oov.Normalizer, *oov.Normalizer, error) {
	encoder, err := embedding.NewOpenAIEncoder(embedding.EncoderConfig{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
		Timeout: cfg.Embedding.Timeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	opts := embedding.IndexOptions{
		BatchSize:      cfg.Embedding.BatchSize,
		QueryCacheSize: cfg.Embedding.QueryCacheSize,
	}

	provinceIndex, err := embedding.NewIndex(ctx, "province", store.Provinces(), encoder, opts, logger)
	if err != nil {
		return nil, nil, err
	}
	allIndex, err := embedding.NewIndex(ctx, "all", store.All(), encoder, opts, logger)
	if err != nil {
		return nil, nil, err
	}

	oovOpts := oov.Options{LexicalFallback: cfg.OOV.LexicalFallback}
	provinces, err := oov.New(provinceIndex, oovOpts, logger)
	if err != nil {
		return nil, nil, err
	}
	cities, err := oov.New(allIndex, oovOpts, logger)
	if err != nil {
		return nil, nil, err
	}
	return provinces, cities, nil
}

// Close stops background jobs, the cache and any launched servers. It is
// safe on a partially built Runtime.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Batch != nil {
		rt.Batch.Close()
	}
	if rt.Cache != nil {
		if err := rt.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if rt.Supervisor != nil {
		rt.Supervisor.Stop()
	}
	return errors.Join(errs...)
}
