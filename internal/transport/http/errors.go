package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Skotchmaster/credit_ledger/internal/service"
	"github.com/labstack/echo/v4"
)

// httpError maps service errors onto status codes. Anything unrecognised is
// logged and reported as a bare 500.
func httpError(l *slog.Logger, err error) error {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, service.ErrInvalidCredential):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, service.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, service.ErrInsufficientBalance):
		return echo.NewHTTPError(http.StatusPaymentRequired, "insufficient credits")
	case errors.Is(err, service.ErrInvalidSignature):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid signature")
	case errors.Is(err, service.ErrNotFound):
		msg := "not found"
		if d := detail(err, service.ErrNotFound); d != msg {
			msg = d + " not found"
		}
		return echo.NewHTTPError(http.StatusNotFound, msg)
	case errors.Is(err, service.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, detail(err, service.ErrForbidden))
	case errors.Is(err, service.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, detail(err, service.ErrConflict))
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, detail(err, service.ErrValidation))
	}
	l.Error("internal_error", "status", 500, "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// detail keeps the caller facing part of "<sentinel>: <detail>".
func detail(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return sentinel.Error()
}
