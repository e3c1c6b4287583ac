package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"live-session-service/internal/metrics"
)

// Metrics records HTTP metrics by route pattern.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if !metrics.Observed(route) {
			return
		}
		m.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
