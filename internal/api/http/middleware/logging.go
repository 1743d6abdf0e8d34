package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/pkg/tracer"
)

// identifier path parameters logged with each request
var identifierParams = []string{"code", "isin", "bic", "cusip", "sedol"}

// Logging writes one access log line per request. Health check and scrape
// traffic is logged at debug.
func Logging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Process request
			err := next(c)

			// Log based on status and route
			status := responseStatus(c, err)
			ce := log.Check(accessLevel(c.Path(), status), accessMessage(status))
			if ce == nil {
				return err
			}
			ce.Write(accessFields(c, status, time.Since(start), err)...)
			return err
		}
	}
}

func responseStatus(c echo.Context, err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return c.Response().Status
}

func accessLevel(route string, status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	case strings.HasPrefix(route, "/health/") || route == "/metrics":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func accessMessage(status int) string {
	switch {
	case status >= 500:
		return "request failed"
	case status >= 400:
		return "request rejected"
	default:
		return "request completed"
	}
}

func accessFields(c echo.Context, status int, elapsed time.Duration, err error) []zap.Field {
	req := c.Request()
	fields := []zap.Field{
		zap.String("request_id", GetRequestIDFromEcho(c)),
		zap.String("method", req.Method),
		zap.String("route", c.Path()),
		logger.HTTPStatus(status),
		logger.Duration(elapsed.Milliseconds()),
		zap.String("remote_ip_hash", hashIP(c.RealIP())), // SECURITY: hashed IP, not raw
		zap.Int64("bytes_out", c.Response().Size),
	}
	// Identifiers are public reference data, safe to log
	if kind := c.Param("kind"); kind != "" {
		fields = append(fields, logger.IdentifierKind(kind))
	}
	for _, name := range identifierParams {
		if v := c.Param(name); v != "" {
			fields = append(fields, logger.Identifier(v))
			break
		}
	}
	if traceID := tracer.TraceID(req.Context()); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	// Add subject if authenticated
	if subject, ok := GetSubjectFromEcho(c); ok {
		fields = append(fields, zap.String("subject", subject))
	}
	// Add error if present
	if err != nil {
		fields = append(fields, logger.ErrorField(err))
	}
	return fields
}

// hashIP keeps client addresses out of the logs; rate limiting still keys on the full IP
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}

// RecoveryLogging turns a panic into a 500 and logs it with the stack
func RecoveryLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				// SECURITY: capture the stack for the log but never expose it to the client
				log.Error("panic recovered",
					zap.String("request_id", GetRequestIDFromEcho(c)),
					zap.String("panic", fmt.Sprint(r)),
					zap.String("route", c.Path()),
					zap.String("method", c.Request().Method),
					zap.ByteString("stack", debug.Stack()),
				)
				// Return 500 without internal details
				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
