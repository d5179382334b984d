package controllers

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/geo-recog/app/models"
	"github.com/geo-recog/app/requests"
	"github.com/geo-recog/app/responses"
	"github.com/geo-recog/app/services"
	"github.com/geo-recog/helpers/utils"
	"github.com/geo-recog/internal/llm"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the health check.
const Version = "1.0.0"

// GeoControllerConfig bounds request handling.
type GeoControllerConfig struct {
	// RequestTimeout bounds one resolution: endpoint acquisition plus inference.
	RequestTimeout time.Duration
	MaxBatchItems  int
}

// GeoController serves the resolution endpoints.
type GeoController struct {
	resolver  services.Resolver
	batch     *services.BatchService
	pool      services.PoolStatsSource
	cfg       GeoControllerConfig
	startTime time.Time
	logger    *zap.Logger
}

func NewGeoController(resolver services.Resolver, batch *services.BatchService, pool services.PoolStatsSource, cfg GeoControllerConfig, logger *zap.Logger) *GeoController {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 35 * time.Second
	}
	if cfg.MaxBatchItems <= 0 {
		cfg.MaxBatchItems = 10000
	}
	return &GeoController{
		resolver:  resolver,
		batch:     batch,
		pool:      pool,
		cfg:       cfg,
		startTime: time.Now(),
		logger:    logger,
	}
}

// Query answers GET /query?content= in lenient mode with a bare
// {province, city, code} object.
func (gc *GeoController) Query(c *gin.Context) {
	content := c.Query("content")
	if content == "" {
		gc.error(c, http.StatusBadRequest, "INVALID_REQUEST", "content is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), gc.cfg.RequestTimeout)
	defer cancel()
	result, _, err := gc.resolver.Resolve(ctx, content, services.ResolveOptions{UseCache: true})
	if err != nil {
		gc.logger.Warn("Lenient resolution failed", zap.Error(err))
		result = &models.GeoResolution{}
	}
	c.JSON(http.StatusOK, result)
}

// Resolve answers POST /v1/geo/resolve.
func (gc *GeoController) Resolve(c *gin.Context) {
	var req requests.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		gc.error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request: "+err.Error())
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(c.Request.Context(), gc.cfg.RequestTimeout)
	defer cancel()

	result, hit, err := gc.resolver.Resolve(ctx, req.Content, services.ResolveOptions{
		Strict:   req.Options.Strict,
		UseCache: req.Options.CacheEnabled(),
	})
	if err != nil {
		status, code := statusFor(err)
		_ = c.Error(err)
		gc.error(c, status, code, err.Error())
		return
	}

	c.JSON(http.StatusOK, responses.ResolveResponse{
		Result:           result,
		CacheHit:         hit,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	})
}

// statusFor maps strict-mode failures to HTTP statuses.
func statusFor(err error) (int, string) {
	var missing *llm.MissingFieldError
	switch {
	case errors.Is(err, llm.ErrEndpointUnavailable):
		return http.StatusServiceUnavailable, "ENDPOINT_UNAVAILABLE"
	case errors.Is(err, llm.ErrInferenceTimeout):
		return http.StatusGatewayTimeout, "INFERENCE_TIMEOUT"
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity, "MISSING_FIELD"
	case errors.Is(err, llm.ErrMalformedExtraction):
		return http.StatusUnprocessableEntity, "MALFORMED_EXTRACTION"
	case errors.Is(err, llm.ErrInferenceFailed):
		return http.StatusBadGateway, "INFERENCE_FAILED"
	default:
		return http.StatusInternalServerError, "RESOLVE_ERROR"
	}
}

// SubmitBatch answers POST /v1/geo/batch.
func (gc *GeoController) SubmitBatch(c *gin.Context) {
	var req requests.BatchResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		gc.error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request: "+err.Error())
		return
	}
	if len(req.Contents) > gc.cfg.MaxBatchItems {
		gc.error(c, http.StatusBadRequest, "TOO_MANY_ITEMS", "batch exceeds the item limit")
		return
	}

	jobID := gc.batch.SubmitJob(req.Contents, services.ResolveOptions{
		Strict:   req.Options.Strict,
		UseCache: req.Options.CacheEnabled(),
	})
	c.JSON(http.StatusAccepted, responses.BatchResolveResponse{
		JobID:   jobID,
		Total:   len(req.Contents),
		Message: "job accepted",
	})
}

// GetJobStatus answers GET /v1/geo/batch/:jobID.
func (gc *GeoController) GetJobStatus(c *gin.Context) {
	status, err := gc.batch.JobStatus(c.Param("jobID"))
	if err != nil {
		gc.error(c, http.StatusNotFound, "JOB_NOT_FOUND", err.Error())
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetJobResults streams NDJSON, gzip-compressed with ?gzip=1.
func (gc *GeoController) GetJobResults(c *gin.Context) {
	items, err := gc.batch.JobResults(c.Param("jobID"))
	switch {
	case errors.Is(err, services.ErrJobNotFound):
		gc.error(c, http.StatusNotFound, "JOB_NOT_FOUND", err.Error())
		return
	case errors.Is(err, services.ErrJobRunning):
		gc.error(c, http.StatusConflict, "JOB_RUNNING", err.Error())
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	var writer gin.ResponseWriter = c.Writer
	if c.Query("gzip") == "1" {
		c.Header("Content-Encoding", "gzip")
		gz := gzip.NewWriter(c.Writer)
		defer gz.Close()
		writer = &gzipResponseWriter{ResponseWriter: c.Writer, gzWriter: gz}
	}
	c.Status(http.StatusOK)

	enc := json.NewEncoder(writer)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			gc.logger.Warn("NDJSON write failed", zap.Error(err))
			return
		}
	}
	writer.Flush()
}

// HealthCheck answers /health and /live.
func (gc *GeoController) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, responses.HealthCheckResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(gc.startTime).Round(time.Second).String(),
		Version:   Version,
	})
}

// Ready answers /ready with pool occupancy.
func (gc *GeoController) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, responses.ReadyResponse{Ready: true, Pool: gc.pool.Stats()})
}

func (gc *GeoController) error(c *gin.Context, status int, code, message string) {
	c.JSON(status, responses.ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: c.GetString(utils.RequestIDKey),
	})
}

type gzipResponseWriter struct {
	gin.ResponseWriter
	gzWriter *gzip.Writer
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	return w.gzWriter.Write(data)
}

func (w *gzipResponseWriter) Flush() {
	_ = w.gzWriter.Flush()
	w.ResponseWriter.Flush()
}
