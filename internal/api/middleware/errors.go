// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/unifiedui/docdb-gateway/internal/domain/errors"
)

// ErrorMiddleware handles error recovery and formatting.
type ErrorMiddleware struct{}

// NewErrorMiddleware creates a new ErrorMiddleware.
func NewErrorMiddleware() *ErrorMiddleware {
	return &ErrorMiddleware{}
}

// Recovery returns a gin middleware that recovers from panics.
// http.ErrAbortHandler is re-raised so the server drops the connection
// mid-response instead of finishing it.
func (m *ErrorMiddleware) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				reqLogger := GetRequestLogger(c)
				reqLogger.Error().
					Interface("error", rec).
					Str("path", c.Request.URL.Path).
					Str("method", c.Request.Method).
					Msg("panic recovered")

				if c.Writer.Written() {
					panic(http.ErrAbortHandler)
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Error:   domainerrors.CodeInternal,
					Message: "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Parameter string `json:"parameter,omitempty"`
}

// HandleError handles errors and sends appropriate HTTP responses.
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logger := GetRequestLogger(c)

	// the client is gone; there is nobody to answer
	if errors.Is(err, context.Canceled) {
		logger.Debug().Err(err).Msg("request cancelled by client")
		c.Abort()
		return
	}

	if domainErr, ok := domainerrors.GetDomainError(err); ok {
		c.Set(errorCodeKey, domainErr.Code)
		event := logger.Debug()
		if domainErr.HTTPStatus >= http.StatusInternalServerError {
			event = logger.Warn()
		}
		event.Err(err).Str("error_code", domainErr.Code).Msg("request failed")

		if domainErr.Category == domainerrors.CategoryInternal {
			c.AbortWithStatusJSON(domainErr.HTTPStatus, ErrorResponse{
				Error:   domainErr.Code,
				Message: "internal server error",
			})
			return
		}
		c.AbortWithStatusJSON(domainErr.HTTPStatus, ErrorResponse{
			Error:     domainErr.Code,
			Message:   domainErr.Message,
			Parameter: domainErr.Parameter,
		})
		return
	}

	// Default to internal server error
	logger.Error().Err(err).Msg("unhandled error")
	c.Set(errorCodeKey, domainerrors.CodeInternal)
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Error:   domainerrors.CodeInternal,
		Message: "internal server error",
	})
}

// ErrorCode returns the error code recorded by HandleError, if any.
func ErrorCode(c *gin.Context) string {
	return c.GetString(errorCodeKey)
}

// SetErrorCode records an error code for a response that could not carry a
// JSON error body.
func SetErrorCode(c *gin.Context, code string) {
	c.Set(errorCodeKey, code)
}

const errorCodeKey = "error_code"

// NotFound returns a 404 handler.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		HandleError(c, domainerrors.NewNotFoundError(c.Request.URL.Path))
	}
}

// MethodNotAllowed returns a 405 handler.
func MethodNotAllowed() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Allow", "GET, OPTIONS")
		HandleError(c, domainerrors.NewMethodNotAllowedError(c.Request.Method))
	}
}
