package routes

import (
	"github.com/geo-recog/app/controllers"
	"github.com/gin-gonic/gin"
)

// SetupAPIRoutes registers the /v1 API.
func SetupAPIRoutes(router *gin.Engine, geo *controllers.GeoController, admin *controllers.AdminController) {
	v1 := router.Group("/v1")
	{
		g := v1.Group("/geo")
		{
			g.POST("/resolve", geo.Resolve)
			g.POST("/batch", geo.SubmitBatch)
			g.GET("/batch/:jobID", geo.GetJobStatus)
			g.GET("/batch/:jobID/results", geo.GetJobResults)
		}

		a := v1.Group("/admin")
		{
			a.POST("/cache/invalidate", admin.InvalidateCache)
			a.GET("/stats", admin.GetStats)
		}

		v1.GET("/health", geo.HealthCheck)
	}
}

// SetupHealthRoutes registers liveness and readiness probes.
func SetupHealthRoutes(router *gin.Engine, geo *controllers.GeoController) {
	router.GET("/health", geo.HealthCheck)
	router.GET("/live", geo.HealthCheck)
	router.GET("/ready", geo.Ready)
}
