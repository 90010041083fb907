package httpserver

import (
	"net/http"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/middleware"
	"github.com/Skotchmaster/credit_ledger/internal/service"
	"github.com/Skotchmaster/credit_ledger/internal/transport"
	"github.com/Skotchmaster/credit_ledger/internal/util"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type UserHTTP struct {
	Auth   *service.AuthService
	Ledger *service.LedgerService
	Usage  *service.UsageService
	Keys   *service.APIKeyService
}

func identity(c echo.Context) (service.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return service.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return id, nil
}

func (h *UserHTTP) Profile(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_profile")
	id, err := identity(c)
	if err != nil {
		return err
	}

	acct, err := h.Auth.Profile(ctx, id.AccountID)
	if err != nil {
		return httpError(l, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": transport.NewUserResponse(acct)})
}

func (h *UserHTTP) Credits(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_credits")
	id, err := identity(c)
	if err != nil {
		return err
	}

	bal, err := h.Ledger.Balance(ctx, id.AccountID)
	if err != nil {
		return httpError(l, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"credits": bal})
}

func (h *UserHTTP) spend(c echo.Context, op service.Operation) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_"+string(op))
	id, err := identity(c)
	if err != nil {
		return err
	}

	res, err := h.Usage.Spend(ctx, service.Actor{Type: audit.ActorUser, ID: id.AccountID.String()}, id.AccountID, op)
	if err != nil {
		return httpError(l, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *UserHTTP) Upload(c echo.Context) error { return h.spend(c, service.OpUpload) }

func (h *UserHTTP) Report(c echo.Context) error { return h.spend(c, service.OpReport) }

func (h *UserHTTP) Transactions(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_transactions")
	id, err := identity(c)
	if err != nil {
		return err
	}

	page, err := h.Ledger.History(ctx, id.AccountID, service.HistoryQuery{
		Page:  util.ParseIntDefault(c.QueryParam("page"), 1),
		Limit: util.ParseIntDefault(c.QueryParam("limit"), util.DefaultPageSize),
		Type:  c.QueryParam("type"),
	})
	if err != nil {
		return httpError(l, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *UserHTTP) ListAPIKeys(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_api_keys")
	id, err := identity(c)
	if err != nil {
		return err
	}

	keys, err := h.Keys.List(ctx, id.AccountID)
	if err != nil {
		return httpError(l, err)
	}
	out := make([]transport.APIKeyResponse, 0, len(keys))
	for i := range keys {
		out = append(out, transport.NewAPIKeyResponse(&keys[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"api_keys": out})
}

func (h *UserHTTP) RevokeAPIKey(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_revoke_api_key")
	id, err := identity(c)
	if err != nil {
		return err
	}
	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid api key id")
	}

	k, err := h.Keys.Revoke(ctx, id, keyID)
	if err != nil {
		return httpError(l, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "API key revoked", "api_key": transport.NewAPIKeyResponse(k)})
}
