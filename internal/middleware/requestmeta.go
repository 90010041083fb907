package middleware

import (
	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/labstack/echo/v4"
)

// AuditMeta makes the caller address visible to audit events recorded further down.
func AuditMeta(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := audit.WithRequestMeta(req.Context(), c.RealIP(), req.UserAgent())
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}
