package httpserver

import (
	"net/http"

	"github.com/Skotchmaster/credit_ledger/internal/middleware"
	"github.com/Skotchmaster/credit_ledger/internal/service"
	"github.com/Skotchmaster/credit_ledger/internal/transport"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ServiceHTTP serves callers authenticated by API key.
type ServiceHTTP struct {
	Usage *service.UsageService
}

func (h *ServiceHTTP) target(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return id, nil
}

func (h *ServiceHTTP) Metadata(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "service_metadata")
	k, _ := middleware.APIKeyFrom(c)
	target, err := h.target(c)
	if err != nil {
		return err
	}

	md, err := h.Usage.Metadata(ctx, k, target)
	if err != nil {
		return httpError(l, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user":                transport.NewUserResponse(md.Account),
		"recent_transactions": md.RecentEntries,
	})
}

func (h *ServiceHTTP) Reports(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "service_reports")
	k, _ := middleware.APIKeyFrom(c)
	target, err := h.target(c)
	if err != nil {
		return err
	}

	res, err := h.Usage.ServiceReport(ctx, k, target)
	if err != nil {
		return httpError(l, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reports": res.Result["reports"],
		"credits": res.Remaining,
	})
}
