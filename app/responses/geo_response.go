package responses

import (
	"github.com/geo-recog/app/models"
	"github.com/geo-recog/internal/pool"
)

type ResolveResponse struct {
	Result           *models.GeoResolution `json:"result"`
	CacheHit         bool                  `json:"cache_hit"`
	ProcessingTimeMs int64                 `json:"processing_time_ms"`
}

type BatchResolveResponse struct {
	JobID   string `json:"job_id"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

type HealthCheckResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version"`
}

type ReadyResponse struct {
	Ready bool       `json:"ready"`
	Pool  pool.Stats `json:"pool"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}
