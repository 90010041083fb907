package httpserver

import (
	"io"
	"net/http"

	"github.com/Skotchmaster/credit_ledger/internal/service"
	"github.com/Skotchmaster/credit_ledger/internal/util"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/Skotchmaster/credit_ledger/pkg/webhook"
	"github.com/labstack/echo/v4"
)

const maxWebhookBody = 1 << 20

type PaymentHTTP struct {
	Svc *service.PaymentService
}

// Webhook must see the body exactly as sent; it is never bound or re-encoded
// before verification.
func (h *PaymentHTTP) Webhook(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payments_webhook")

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		l.Warn("webhook_read_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}
	if len(payload) > maxWebhookBody {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
	}

	res, err := h.Svc.Handle(ctx, payload, c.Request().Header.Get(webhook.HeaderStripeSignature))
	if err != nil {
		return httpError(l, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true, "outcome": res.Outcome})
}

func (h *PaymentHTTP) History(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payments_history")
	id, err := identity(c)
	if err != nil {
		return err
	}

	page, err := h.Svc.History(ctx, id.AccountID,
		util.ParseIntDefault(c.QueryParam("page"), 1),
		util.ParseIntDefault(c.QueryParam("limit"), util.DefaultPageSize))
	if err != nil {
		return httpError(l, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *PaymentHTTP) Pricing(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Svc.PricingInfo())
}
