package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/banking/refdata-service/internal/pkg/metrics"
	"github.com/banking/refdata-service/internal/pkg/validator"
	"github.com/banking/refdata-service/pkg/identifier"
)

// IdentifierHandler exposes the offline validators
type IdentifierHandler struct {
	validator *validator.CustomValidator
	metrics   *metrics.Metrics
}

// NewIdentifierHandler creates a new identifier handler. m may be nil.
func NewIdentifierHandler(v *validator.CustomValidator, m *metrics.Metrics) *IdentifierHandler {
	return &IdentifierHandler{validator: v, metrics: m}
}

// ValidateRequest is the body of POST /api/v1/identifiers/validate
type ValidateRequest struct {
	Kind string `json:"kind" validate:"required,identifier_kind"`
	Code string `json:"code" validate:"required,max=64"`
}

// ValidateResponse reports whether code is valid for kind
type ValidateResponse struct {
	Kind  identifier.Kind `json:"kind"`
	Code  string          `json:"code"`
	Valid bool            `json:"valid"`
}

// DetectResponse lists every kind the code is valid for
type DetectResponse struct {
	Code  string            `json:"code"`
	Kinds []identifier.Kind `json:"kinds"`
}

// Validate handles GET /api/v1/identifiers/:kind/:code/validate
func (h *IdentifierHandler) Validate(c echo.Context) error {
	kind, err := identifier.ParseKind(c.Param("kind"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.validate(kind, c.Param("code")))
}

// ValidateBody handles POST /api/v1/identifiers/validate
func (h *IdentifierHandler) ValidateBody(c echo.Context) error {
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "invalid request",
			Details: validator.Messages(err),
		})
	}

	// Already checked by the identifier_kind tag
	kind, _ := identifier.ParseKind(req.Kind)
	return c.JSON(http.StatusOK, h.validate(kind, req.Code))
}

func (h *IdentifierHandler) validate(kind identifier.Kind, code string) ValidateResponse {
	valid := h.validator.ValidIdentifier(kind, code)
	h.metrics.ObserveValidation(kind.String(), valid)
	return ValidateResponse{Kind: kind, Code: code, Valid: valid}
}

// Detect handles GET /api/v1/identifiers/detect/:code
func (h *IdentifierHandler) Detect(c echo.Context) error {
	code := c.Param("code")
	kinds := identifier.Detect(code)
	if kinds == nil {
		kinds = []identifier.Kind{}
	}
	return c.JSON(http.StatusOK, DetectResponse{Code: code, Kinds: kinds})
}

// CountriesResponse lists the country codes accepted in ISIN and BIC codes
type CountriesResponse struct {
	Count     int      `json:"count"`
	Countries []string `json:"countries"`
}

// Countries handles GET /api/v1/identifiers/countries
func (h *IdentifierHandler) Countries(c echo.Context) error {
	codes := identifier.CountryCodes()
	return c.JSON(http.StatusOK, CountriesResponse{Count: len(codes), Countries: codes})
}
