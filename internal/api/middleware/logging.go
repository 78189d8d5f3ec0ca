package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// LoggingMiddleware handles request logging.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware() *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: log.Logger,
	}
}

// NewLoggingMiddlewareWithLogger creates a new LoggingMiddleware with a custom logger.
func NewLoggingMiddlewareWithLogger(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger,
	}
}

// Logger returns a gin middleware that logs requests.
func (m *LoggingMiddleware) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// runs even when the handler aborts the connection with a panic
		defer func() {
			latency := time.Since(start)
			status := c.Writer.Status()

			logger := GetRequestLogger(c)
			event := logger.Info()
			if status >= 400 && status < 500 {
				event = logger.Warn()
			} else if status >= 500 {
				event = logger.Error()
			}
			if code := ErrorCode(c); code != "" {
				event = event.Str("error_code", code)
			}
			if docs, ok := c.Get(documentsKey); ok {
				event = event.Int("documents", docs.(int))
			}

			event.
				Str("method", c.Request.Method).
				Str("path", path).
				Str("query", query).
				Int("status", status).
				Dur("latency", latency).
				Str("client_ip", c.ClientIP()).
				Str("user_agent", c.Request.UserAgent()).
				Int("body_size", c.Writer.Size()).
				Msg("request completed")
		}()

		c.Next()
	}
}

// RequestLogger assigns a request ID and a request-scoped logger.
func (m *LoggingMiddleware) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)

		requestLogger := m.logger.With().
			Str("request_id", requestID).
			Logger()

		c.Set("logger", requestLogger)

		c.Next()
	}
}

// GetRequestLogger retrieves the request-scoped logger from context.
func GetRequestLogger(c *gin.Context) zerolog.Logger {
	if logger, exists := c.Get("logger"); exists {
		return logger.(zerolog.Logger)
	}
	return log.Logger
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		return requestID.(string)
	}
	return ""
}

const documentsKey = "documents"

// SetDocumentCount records how many documents a request streamed.
func SetDocumentCount(c *gin.Context, n int) {
	c.Set(documentsKey, n)
}
