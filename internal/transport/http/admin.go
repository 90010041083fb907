package httpserver

import (
	"net/http"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/service"
	"github.com/Skotchmaster/credit_ledger/internal/transport"
	"github.com/Skotchmaster/credit_ledger/internal/util"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type AdminHTTP struct {
	Admin  *service.AdminService
	Keys   *service.APIKeyService
	Ledger *service.LedgerService
}

func (h *AdminHTTP) AddCredits(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_add_credits")
	id, err := identity(c)
	if err != nil {
		return err
	}

	var req transport.AddCreditsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	target, _ := uuid.Parse(req.UserID)

	entry, err := h.Admin.AdjustCredits(ctx, id, target, req.Amount, req.Reason)
	if err != nil {
		return httpError(l, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":     "Credits added successfully",
		"transaction": entry,
		"new_balance": entry.BalanceAfter,
	})
}

func (h *AdminHTTP) CreateAPIKey(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_create_api_key")
	id, err := identity(c)
	if err != nil {
		return err
	}

	var req transport.CreateAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	owner, _ := uuid.Parse(req.UserID)

	raw, k, err := h.Keys.Issue(ctx, id, service.IssueKeyInput{
		OwnerID: owner,
		Name:    req.Name,
		Scopes:  req.Scopes,
		TTLDays: req.ExpiresInDays,
	})
	if err != nil {
		return httpError(l, err)
	}
	return c.JSON(http.StatusCreated, transport.CreatedAPIKeyResponse{
		APIKeyResponse: transport.NewAPIKeyResponse(k),
		Key:            raw,
		Message:        "Store this key now; it will not be shown again",
	})
}

func (h *AdminHTTP) RevokeAPIKey(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_revoke_api_key")
	id, err := identity(c)
	if err != nil {
		return err
	}

	var req transport.RevokeAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	keyID, _ := uuid.Parse(req.APIKeyID)

	k, err := h.Keys.Revoke(ctx, id, keyID)
	if err != nil {
		return httpError(l, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "API key revoked", "api_key": transport.NewAPIKeyResponse(k)})
}

func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		d, derr := time.Parse(time.DateOnly, v)
		if derr != nil {
			return nil, err
		}
		t = d
	}
	return &t, nil
}

func (h *AdminHTTP) AuditLogs(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_audit_logs")

	from, err := parseTimeParam(c.QueryParam("startDate"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid startDate")
	}
	to, err := parseTimeParam(c.QueryParam("endDate"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid endDate")
	}

	page, err := h.Admin.ListAuditEvents(ctx, service.AuditQuery{
		ActorType: c.QueryParam("actorType"),
		Action:    c.QueryParam("action"),
		From:      from,
		To:        to,
		Page:      util.ParseIntDefault(c.QueryParam("page"), 1),
		Limit:     util.ParseIntDefault(c.QueryParam("limit"), util.DefaultPageSize),
	})
	if err != nil {
		return httpError(l, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *AdminHTTP) Users(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_users")

	page, err := h.Admin.ListUsers(ctx,
		util.ParseIntDefault(c.QueryParam("page"), 1),
		util.ParseIntDefault(c.QueryParam("limit"), util.DefaultPageSize))
	if err != nil {
		return httpError(l, err)
	}
	users := make([]transport.UserResponse, 0, len(page.Items))
	for i := range page.Items {
		users = append(users, transport.NewUserResponse(&page.Items[i]))
	}
	return c.JSON(http.StatusOK, util.NewPage(users, page.Page, page.Limit, page.Total))
}

func (h *AdminHTTP) Reconcile(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_reconcile")
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	rec, err := h.Ledger.Reconcile(ctx, accountID)
	if err != nil {
		return httpError(l, err)
	}
	if !rec.Consistent() {
		l.Error("ledger_drift", "account_id", accountID, "balance", rec.Balance, "sum", rec.Sum, "chain_ok", rec.ChainOK)
	}
	return c.JSON(http.StatusOK, echo.Map{"reconciliation": rec, "consistent": rec.Consistent()})
}
