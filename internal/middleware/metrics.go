package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edukita/classtrack-api/internal/service"
)

// Metrics observes every request's duration and status. Routes are
// labelled by template path so path parameters do not explode cardinality.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		metrics.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
