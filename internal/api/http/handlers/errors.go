package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/banking/refdata-service/internal/service"
)

// statusClientClosedRequest is reported when the caller went away mid-lookup
const statusClientClosedRequest = 499

// handleServiceError converts service errors to HTTP errors
func handleServiceError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidIdentifier), errors.Is(err, service.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrUpstreamUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "reference data source unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "reference data lookup timed out")
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(statusClientClosedRequest, "request cancelled")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

// ErrorResponse is the body returned for request validation failures
type ErrorResponse struct {
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}
