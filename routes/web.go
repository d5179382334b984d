package routes

import (
	"net/http"

	"github.com/geo-recog/app/controllers"
	"github.com/gin-gonic/gin"
)

// SetupWebRoutes registers the plain endpoints: the greeting and the
// lenient GET /query.
func SetupWebRoutes(router *gin.Engine, geo *controllers.GeoController) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"Hello": "World"})
	})
	router.GET("/query", geo.Query)

	router.GET("/docs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"api": "Geo Recognition API v1",
			"endpoints": map[string]string{
				"query":       "GET /query?content=",
				"resolve":     "POST /v1/geo/resolve",
				"batch":       "POST /v1/geo/batch",
				"job_status":  "GET /v1/geo/batch/:jobID",
				"job_results": "GET /v1/geo/batch/:jobID/results",
				"stats":       "GET /v1/admin/stats",
				"health":      "GET /health",
			},
		})
	})
}
