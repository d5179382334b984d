package controllers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/geo-recog/app/requests"
	"github.com/geo-recog/app/responses"
	"github.com/geo-recog/app/services"
	"github.com/geo-recog/helpers/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminController serves /v1/admin.
type AdminController struct {
	adminService *services.AdminService
	logger       *zap.Logger
}

func NewAdminController(adminService *services.AdminService, logger *zap.Logger) *AdminController {
	return &AdminController{adminService: adminService, logger: logger}
}

// InvalidateCache drops one text's cached result, or all of them when the
// body is empty or names no content.
func (ac *AdminController) InvalidateCache(c *gin.Context) {
	var req requests.InvalidateCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, responses.ErrorResponse{
			Error:     "INVALID_REQUEST",
			Message:   "invalid request: " + err.Error(),
			RequestID: c.GetString(utils.RequestIDKey),
		})
		return
	}

	start := time.Now()
	configured, err := ac.adminService.InvalidateCache(c.Request.Context(), req.Content)
	if err != nil {
		ac.logger.Error("Cache invalidation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, responses.ErrorResponse{
			Error:     "INVALIDATE_ERROR",
			Message:   err.Error(),
			RequestID: c.GetString(utils.RequestIDKey),
		})
		return
	}

	scope := "all"
	if req.Content != "" {
		scope = "content"
	}
	c.JSON(http.StatusOK, responses.SuccessResponse{
		Success: true,
		Message: "cache invalidated",
		Data: gin.H{
			"scope":              scope,
			"cache_configured":   configured,
			"processing_time_ms": time.Since(start).Milliseconds(),
		},
	})
}

func (ac *AdminController) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, ac.adminService.GetSystemStats(c.Request.Context()))
}
