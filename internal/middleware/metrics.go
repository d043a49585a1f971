package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sekolahku/sis-core-api/internal/service"
)

// Metrics observes every request on the prometheus HTTP histogram. The
// route template keeps label cardinality bounded; raw paths are used only
// for requests that matched no route.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
