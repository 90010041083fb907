package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/Skotchmaster/credit_ledger/internal/metrics"
	"github.com/Skotchmaster/credit_ledger/internal/middleware"
	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/internal/service"
	"github.com/Skotchmaster/credit_ledger/internal/transport"
	"github.com/Skotchmaster/credit_ledger/pkg/db"
	loggingmw "github.com/Skotchmaster/credit_ledger/pkg/middleware/logging"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

type Deps struct {
	DB      *gorm.DB
	Log     *slog.Logger
	Metrics *metrics.Metrics

	Auth     *service.AuthService
	Tokens   *service.TokenService
	Ledger   *service.LedgerService
	Keys     *service.APIKeyService
	Payments *service.PaymentService
	Usage    *service.UsageService
	Admin    *service.AdminService

	CookieSecure bool
}

// New builds an echo instance with the shared middleware chain and all routes.
func New(d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = transport.NewValidator()

	e.Use(echomw.Recover())
	e.Use(loggingmw.RequestLogger(d.Log))
	e.Use(middleware.AuditMeta)

	Register(e, d)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context(), d.DB); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	authH := &AuthHTTP{Svc: d.Auth, CookieSecure: d.CookieSecure}
	userH := &UserHTTP{Auth: d.Auth, Ledger: d.Ledger, Usage: d.Usage, Keys: d.Keys}
	payH := &PaymentHTTP{Svc: d.Payments}
	adminH := &AdminHTTP{Admin: d.Admin, Keys: d.Keys, Ledger: d.Ledger}
	svcH := &ServiceHTTP{Usage: d.Usage}

	requireAccess := middleware.RequireAccess(d.Tokens)

	api := e.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/signup", authH.SignUp)
	auth.POST("/login", authH.Login)
	auth.POST("/refresh", authH.Refresh)
	auth.POST("/logout", authH.Logout)

	user := api.Group("/user", requireAccess)
	user.GET("/profile", userH.Profile)
	user.GET("/credits", userH.Credits)
	user.POST("/upload", userH.Upload)
	user.POST("/report", userH.Report)
	user.GET("/transactions", userH.Transactions)
	user.GET("/api-keys", userH.ListAPIKeys)
	user.POST("/api-keys/:id/revoke", userH.RevokeAPIKey)

	payments := api.Group("/payments")
	payments.POST("/webhook", payH.Webhook)
	payments.GET("/pricing", payH.Pricing)
	payments.GET("/history", payH.History, requireAccess)

	admin := api.Group("/admin", requireAccess, middleware.RequireAdmin)
	admin.POST("/credits", adminH.AddCredits)
	admin.POST("/api-keys", adminH.CreateAPIKey)
	admin.POST("/api-keys/revoke", adminH.RevokeAPIKey)
	admin.GET("/audit-logs", adminH.AuditLogs)
	admin.GET("/users", adminH.Users)
	admin.GET("/users/:id/reconcile", adminH.Reconcile)

	svc := api.Group("/service", middleware.RequireAPIKey(d.Keys))
	svc.GET("/users/:userId/metadata", svcH.Metadata, middleware.RequireScope(models.ScopeRead))
	svc.POST("/users/:userId/reports", svcH.Reports, middleware.RequireScope(models.ScopeWrite))
}
