package middleware

import (
	"context"
	"regexp"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/pkg/tracer"
)

// ContextKey type for context keys
type ContextKey = logger.ContextKey

const (
	RequestIDKey    = logger.RequestIDKey
	RequestIDHeader = "X-Request-ID"
)

// UUIDs and opaque tracing IDs from upstream gateways
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,64}$`)

// RequestID propagates the caller's X-Request-ID when it looks like a real
// ID and otherwise mints a UUID. The ID is echoed back, stored on the request
// context and on the active span.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(RequestIDHeader)
			if !requestIDPattern.MatchString(id) {
				id = uuid.NewString()
			}

			ctx := context.WithValue(c.Request().Context(), RequestIDKey, id)
			tracer.Annotate(ctx, tracer.RequestIDAttr(id))
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(string(RequestIDKey), id)
			c.Response().Header().Set(RequestIDHeader, id)

			return next(c)
		}
	}
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// GetRequestIDFromEcho extracts request ID from Echo context
func GetRequestIDFromEcho(c echo.Context) string {
	id, _ := c.Get(string(RequestIDKey)).(string)
	return id
}
