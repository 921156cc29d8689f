package telemetry

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

// GinMiddleware assigns a request ID, logs each request and records its latency.
func GinMiddleware(l *slog.Logger, m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(HeaderRequestID, rid)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		d := time.Since(start)

		if m != nil {
			m.HTTP.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Observe(d.Seconds())
		}

		lvl := slog.LevelInfo
		if status >= 500 {
			lvl = slog.LevelError
		}
		l.Log(c.Request.Context(), lvl, "http: request served",
			"request_id", rid,
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", d,
		)
	}
}
