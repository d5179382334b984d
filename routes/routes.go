// Package routes wires the HTTP surface of the geo recognition service.
//
// Layout:
//   - api.go: /v1 API and health probes
//   - web.go: greeting, /query and /docs
//   - middleware.go: request id, access log, recovery, rate limiting
package routes

import (
	"net/http"

	"github.com/geo-recog/app/controllers"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options tunes the middleware stack.
type Options struct {
	RateLimit float64
	RateBurst int
}

// SetupAllRoutes installs middleware and every route.
func SetupAllRoutes(router *gin.Engine, geo *controllers.GeoController, admin *controllers.AdminController, opts Options, logger *zap.Logger) {
	router.Use(RequestID())
	router.Use(Recovery(logger))
	router.Use(ZapLogger(logger))
	router.Use(RateLimit(opts.RateLimit, opts.RateBurst))

	SetupWebRoutes(router, geo)
	SetupHealthRoutes(router, geo)
	SetupAPIRoutes(router, geo, admin)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "Route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})
}
