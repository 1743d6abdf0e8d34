package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/banking/refdata-service/internal/api/http/middleware"
	"github.com/banking/refdata-service/internal/domain"
	"github.com/banking/refdata-service/internal/pkg/logger"
)

// IsinLookup is the part of service.IsinService used by the handler
type IsinLookup interface {
	GetIsinByCusip(ctx context.Context, cusip string) (*domain.IsinConversion, error)
	GetIsinBySedol(ctx context.Context, sedol string) (*domain.IsinConversion, error)
}

// IsinHandler handles CUSIP and SEDOL to ISIN conversions
type IsinHandler struct {
	isinService IsinLookup
	log         *logger.Logger
}

// NewIsinHandler creates a new ISIN handler
func NewIsinHandler(isinService IsinLookup, log *logger.Logger) *IsinHandler {
	return &IsinHandler{
		isinService: isinService,
		log:         log.Named("isin_handler"),
	}
}

// ByCusip handles GET /api/v1/isin/by-cusip/:cusip
func (h *IsinHandler) ByCusip(c echo.Context) error {
	return h.convert(c, c.Param("cusip"), h.isinService.GetIsinByCusip)
}

// BySedol handles GET /api/v1/isin/by-sedol/:sedol
func (h *IsinHandler) BySedol(c echo.Context) error {
	return h.convert(c, c.Param("sedol"), h.isinService.GetIsinBySedol)
}

func (h *IsinHandler) convert(c echo.Context, code string, fn func(context.Context, string) (*domain.IsinConversion, error)) error {
	ctx := c.Request().Context()

	conv, err := fn(ctx, code)
	if err != nil {
		httpErr := handleServiceError(err)
		if he, ok := httpErr.(*echo.HTTPError); ok && he.Code >= http.StatusInternalServerError {
			h.log.WithContext(ctx).Error("isin conversion failed",
				logger.RequestID(middleware.GetRequestIDFromEcho(c)),
				logger.Identifier(code),
				logger.ErrorField(err),
			)
		}
		return httpErr
	}
	return c.JSON(http.StatusOK, conv)
}
