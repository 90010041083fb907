package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/internal/service"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/labstack/echo/v4"
)

const (
	HeaderAPIKey = "X-API-Key"
	QueryAPIKey  = "apiKey"
)

type KeyResolver interface {
	ResolveRaw(ctx context.Context, raw string) (*models.APIKey, error)
}

// RequireAPIKey authenticates service callers by the X-API-Key header, falling
// back to the apiKey query parameter.
func RequireAPIKey(r KeyResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(HeaderAPIKey)
			if raw == "" {
				raw = c.QueryParam(QueryAPIKey)
			}
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "API key required")
			}

			k, err := r.ResolveRaw(c.Request().Context(), raw)
			if err != nil {
				if errors.Is(err, service.ErrUnauthorized) {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
				}
				return err
			}
			c.Set(apiKeyKey, k)
			return next(c)
		}
	}
}

func APIKeyFrom(c echo.Context) (*models.APIKey, bool) {
	k, ok := c.Get(apiKeyKey).(*models.APIKey)
	return k, ok && k != nil
}

func RequireScope(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			k, ok := APIKeyFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "API key required")
			}
			if !service.Authorize(k, scope) {
				logging.FromContext(c.Request().Context()).Warn("scope_denied", "status", 403, "key_id", k.ID, "scope", scope)
				return echo.NewHTTPError(http.StatusForbidden, "insufficient scope")
			}
			return next(c)
		}
	}
}
