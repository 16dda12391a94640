package observability

import (
	"time"

	"github.com/gin-gonic/gin"
)

const EventTypeHTTP EventType = "http_request"

// RequestLogger logs one structured event per HTTP request.
func RequestLogger(l *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		l.Log(Event{
			Type:   EventTypeHTTP,
			Source: c.ClientIP(),
			Data: map[string]any{
				"method":      c.Request.Method,
				"path":        routePath(c),
				"status":      c.Writer.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       c.Writer.Size(),
			},
		})
	}
}

func RequestMetricsMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		m.RecordHTTPRequest(c.Request.Method, routePath(c), c.Writer.Status(), time.Since(start))
	}
}

func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return c.Request.URL.Path
}
