package httpserver

import (
	"net/http"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/middleware"
	"github.com/Skotchmaster/credit_ledger/internal/service"
	"github.com/labstack/echo/v4"
)

const refreshCookiePath = "/api/auth"

func createCookie(name, value, path string, exp time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func deleteCookie(name, path string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func setSessionCookies(c echo.Context, s *service.Session, secure bool) {
	c.SetCookie(createCookie(middleware.AccessCookie, s.AccessToken, "/", s.AccessExp, secure))
	c.SetCookie(createCookie(middleware.RefreshCookie, s.RefreshToken, refreshCookiePath, s.RefreshExp, secure))
}

func clearSessionCookies(c echo.Context, secure bool) {
	c.SetCookie(deleteCookie(middleware.AccessCookie, "/", secure))
	c.SetCookie(deleteCookie(middleware.RefreshCookie, refreshCookiePath, secure))
}
