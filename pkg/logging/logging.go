package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	FormatJSON = "json"
	FormatText = "text"

	redacted = "[REDACTED]"
)

// sensitiveKeys never reach a sink with their value, whatever the level.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"secret":        {},
	"secret_hash":   {},
	"token":         {},
	"refresh_token": {},
	"access_token":  {},
	"api_key":       {},
	"authorization": {},
	"cookie":        {},
}

type Options struct {
	Level   string
	Format  string
	Service string
}

type ctxKey struct{}

func New(opts Options) *slog.Logger {
	return NewWithWriter(os.Stdout, opts)
}

// NewWithWriter builds the process logger. An unknown level falls back to info
// and is reported once on the logger itself.
func NewWithWriter(w io.Writer, opts Options) *slog.Logger {
	lvl, lvlErr := ParseLevel(opts.Level)
	ho := &slog.HandlerOptions{Level: lvl, ReplaceAttr: redact}

	var h slog.Handler
	if strings.EqualFold(opts.Format, FormatText) {
		h = slog.NewTextHandler(w, ho)
	} else {
		h = slog.NewJSONHandler(w, ho)
	}

	l := slog.New(h)
	if opts.Service != "" {
		l = l.With("service", opts.Service)
	}
	if lvlErr != nil {
		l.Warn("log_level_invalid", "requested", opts.Level, "using", lvl.String())
	}
	return l
}

// ParseLevel accepts slog level names with optional offsets such as "warn+2".
// Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return lvl, nil
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}

func IntoContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
