package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/banking/refdata-service/internal/api/http/middleware"
	"github.com/banking/refdata-service/internal/domain"
	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/pkg/validator"
)

// LeiLookup is the part of service.LeiService used by the handler
type LeiLookup interface {
	GetByLeiCode(ctx context.Context, code string) (*domain.Lei, error)
	GetByLeiCodes(ctx context.Context, codes []string) ([]*domain.Lei, error)
	GetByIsin(ctx context.Context, isin string) ([]*domain.Lei, error)
	GetByBic(ctx context.Context, bic string) ([]*domain.Lei, error)
	GetByCusip(ctx context.Context, cusip string) ([]*domain.Lei, error)
	GetBySedol(ctx context.Context, sedol string) ([]*domain.Lei, error)
	SearchByLegalName(ctx context.Context, name string) ([]*domain.Lei, error)
}

// LeiHandler handles LEI record lookups
type LeiHandler struct {
	leiService LeiLookup
	log        *logger.Logger
}

// NewLeiHandler creates a new LEI handler
func NewLeiHandler(leiService LeiLookup, log *logger.Logger) *LeiHandler {
	return &LeiHandler{
		leiService: leiService,
		log:        log.Named("lei_handler"),
	}
}

// BatchRequest is the body of POST /api/v1/lei/batch. Unlike the query
// form, every code must be a valid LEI.
type BatchRequest struct {
	Codes []string `json:"codes" validate:"required,min=1,dive,lei"`
}

// SearchRequest is the query of GET /api/v1/lei/search
type SearchRequest struct {
	Name    string `query:"name" validate:"required,max=200"`
	Country string `query:"country" validate:"omitempty,country_code"`
}

// BatchResponse pairs each requested code with its record. Record is null
// for invalid or unknown codes.
type BatchResponse struct {
	Results []BatchEntry `json:"results"`
}

// BatchEntry is one element of BatchResponse
type BatchEntry struct {
	Code   string      `json:"code"`
	Record *domain.Lei `json:"record"`
}

// ListResponse wraps lookups that may match several entities
type ListResponse struct {
	Count   int           `json:"count"`
	Records []*domain.Lei `json:"records"`
}

// GetByCode handles GET /api/v1/lei/:code
func (h *LeiHandler) GetByCode(c echo.Context) error {
	ctx := c.Request().Context()

	lei, err := h.leiService.GetByLeiCode(ctx, c.Param("code"))
	if err != nil {
		h.logFailure(c, "lei lookup failed", c.Param("code"), err)
		return handleServiceError(err)
	}
	return c.JSON(http.StatusOK, lei)
}

// GetByCodes handles GET /api/v1/lei?codes=a,b,c
func (h *LeiHandler) GetByCodes(c echo.Context) error {
	var codes []string
	for _, code := range strings.Split(c.QueryParam("codes"), ",") {
		if code = strings.TrimSpace(code); code != "" {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "codes query parameter is required")
	}

	return h.batch(c, codes)
}

// Batch handles POST /api/v1/lei/batch
func (h *LeiHandler) Batch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "invalid request",
			Details: validator.Messages(err),
		})
	}
	return h.batch(c, req.Codes)
}

func (h *LeiHandler) batch(c echo.Context, codes []string) error {
	leis, err := h.leiService.GetByLeiCodes(c.Request().Context(), codes)
	if err != nil {
		h.logFailure(c, "lei batch lookup failed", strings.Join(codes, ","), err)
		return handleServiceError(err)
	}

	resp := BatchResponse{Results: make([]BatchEntry, len(codes))}
	for i, code := range codes {
		resp.Results[i] = BatchEntry{Code: code, Record: leis[i]}
	}
	return c.JSON(http.StatusOK, resp)
}

// GetByIsin handles GET /api/v1/lei/by-isin/:isin
func (h *LeiHandler) GetByIsin(c echo.Context) error {
	return h.list(c, "lookup by isin failed", c.Param("isin"), h.leiService.GetByIsin)
}

// GetByBic handles GET /api/v1/lei/by-bic/:bic
func (h *LeiHandler) GetByBic(c echo.Context) error {
	return h.list(c, "lookup by bic failed", c.Param("bic"), h.leiService.GetByBic)
}

// GetByCusip handles GET /api/v1/lei/by-cusip/:cusip
func (h *LeiHandler) GetByCusip(c echo.Context) error {
	return h.list(c, "lookup by cusip failed", c.Param("cusip"), h.leiService.GetByCusip)
}

// GetBySedol handles GET /api/v1/lei/by-sedol/:sedol
func (h *LeiHandler) GetBySedol(c echo.Context) error {
	return h.list(c, "lookup by sedol failed", c.Param("sedol"), h.leiService.GetBySedol)
}

// Search handles GET /api/v1/lei/search?name=...&country=GB. The optional
// country keeps only entities whose legal address is in that country.
func (h *LeiHandler) Search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query")
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "invalid request",
			Details: validator.Messages(err),
		})
	}

	leis, err := h.leiService.SearchByLegalName(c.Request().Context(), req.Name)
	if err != nil {
		h.logFailure(c, "legal name search failed", req.Name, err)
		return handleServiceError(err)
	}
	if req.Country != "" {
		leis = inCountry(leis, req.Country)
	}
	return h.respondList(c, leis)
}

func inCountry(leis []*domain.Lei, country string) []*domain.Lei {
	out := make([]*domain.Lei, 0, len(leis))
	for _, lei := range leis {
		if lei.LegalAddress != nil && lei.LegalAddress.Country == country {
			out = append(out, lei)
		}
	}
	return out
}

func (h *LeiHandler) list(c echo.Context, msg, query string, fn func(context.Context, string) ([]*domain.Lei, error)) error {
	leis, err := fn(c.Request().Context(), query)
	if err != nil {
		h.logFailure(c, msg, query, err)
		return handleServiceError(err)
	}
	return h.respondList(c, leis)
}

func (h *LeiHandler) respondList(c echo.Context, leis []*domain.Lei) error {
	if leis == nil {
		leis = []*domain.Lei{}
	}
	return c.JSON(http.StatusOK, ListResponse{Count: len(leis), Records: leis})
}

// logFailure logs only server side failures; bad input and misses are
// reported to the caller
func (h *LeiHandler) logFailure(c echo.Context, msg, query string, err error) {
	if he, ok := handleServiceError(err).(*echo.HTTPError); ok && he.Code < http.StatusInternalServerError {
		return
	}
	h.log.WithContext(c.Request().Context()).Error(msg,
		logger.RequestID(middleware.GetRequestIDFromEcho(c)),
		logger.Query(query),
		logger.ErrorField(err),
	)
}
