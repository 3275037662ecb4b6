package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	logger "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Logger"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

type contextKey string

const (
	RequestIDContextKey contextKey = "request_id"
	LoggerContextKey    contextKey = "logger"
)

// RequestID assigns every request an id (reusing the client's when sent),
// attaches a request-scoped logger and logs the request once it completes.
func RequestID(base *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		reqLogger := base.WithRequestID(id)

		c.Set(string(RequestIDContextKey), id)
		c.Set(string(LoggerContextKey), reqLogger)
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()

		reqLogger.Logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

// GetRequestID retrieves the request id from Gin context
func GetRequestID(c *gin.Context) string {
	return c.GetString(string(RequestIDContextKey))
}

// LoggerFromGinContext returns the request-scoped logger, or fallback when the middleware did not run
func LoggerFromGinContext(c *gin.Context, fallback *logger.Logger) *logger.Logger {
	if v, ok := c.Get(string(LoggerContextKey)); ok {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return fallback
}
