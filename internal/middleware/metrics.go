package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aidly/aidly-api/internal/service"
)

var probePaths = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// Metrics records request duration per route template. Probe and scrape
// requests are skipped and unrouted paths share one label.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		path := c.FullPath()
		if _, probe := probePaths[path]; probe {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
