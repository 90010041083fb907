package httpserver

import (
	"net/http"

	"github.com/Skotchmaster/credit_ledger/internal/middleware"
	"github.com/Skotchmaster/credit_ledger/internal/service"
	"github.com/Skotchmaster/credit_ledger/internal/transport"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/labstack/echo/v4"
)

type AuthHTTP struct {
	Svc          *service.AuthService
	CookieSecure bool
}

func (h *AuthHTTP) SignUp(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_signup")

	var req transport.SignUpRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("signup_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.Svc.SignUp(ctx, service.SignUpInput{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		return httpError(l, err)
	}

	setSessionCookies(c, res.Session, h.CookieSecure)
	return c.JSON(http.StatusCreated, transport.AuthResponse{
		Message:     "User created successfully",
		AccessToken: res.Session.AccessToken,
		ExpiresAt:   res.Session.AccessExp,
		User:        transport.NewUserResponse(res.Account),
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return httpError(l, err)
	}

	setSessionCookies(c, res.Session, h.CookieSecure)
	return c.JSON(http.StatusOK, transport.AuthResponse{
		Message:     "Login successful",
		AccessToken: res.Session.AccessToken,
		ExpiresAt:   res.Session.AccessExp,
		User:        transport.NewUserResponse(res.Account),
	})
}

// presentedRefresh prefers the cookie and falls back to the JSON body.
func presentedRefresh(c echo.Context) string {
	if ck, err := c.Cookie(middleware.RefreshCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	var req transport.RefreshRequest
	if err := c.Bind(&req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	token := presentedRefresh(c)
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token required")
	}

	sess, err := h.Svc.Refresh(ctx, token)
	if err != nil {
		clearSessionCookies(c, h.CookieSecure)
		return httpError(l, err)
	}

	setSessionCookies(c, sess, h.CookieSecure)
	return c.JSON(http.StatusOK, echo.Map{
		"message":      "Token refreshed",
		"access_token": sess.AccessToken,
		"expires_at":   sess.AccessExp,
	})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	if token := presentedRefresh(c); token != "" {
		if err := h.Svc.Logout(ctx, token); err != nil {
			clearSessionCookies(c, h.CookieSecure)
			return httpError(l, err)
		}
	}

	clearSessionCookies(c, h.CookieSecure)
	l.Info("logout_success")
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}
