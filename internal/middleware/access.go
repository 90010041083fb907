package middleware

import (
	"net/http"

	"github.com/Skotchmaster/credit_ledger/internal/service"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	identityKey = "identity"
	apiKeyKey   = "api_key"
)

type AccessVerifier interface {
	VerifyAccess(token string) (service.Identity, error)
}

// RequireAccess accepts an access token from the Authorization bearer header
// or the access_token cookie.
func RequireAccess(v AccessVerifier) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  identityKey,
		TokenLookup: "header:Authorization:Bearer ,cookie:" + AccessCookie,
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			return v.VerifyAccess(auth)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			logging.FromContext(c.Request().Context()).Warn("access_denied", "status", 401, "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired access token")
		},
	})
}

func IdentityFrom(c echo.Context) (service.Identity, bool) {
	id, ok := c.Get(identityKey).(service.Identity)
	return id, ok
}

func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := IdentityFrom(c)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		if !id.IsAdmin() {
			logging.FromContext(c.Request().Context()).Warn("admin_required", "status", 403, "account_id", id.AccountID)
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return next(c)
	}
}
