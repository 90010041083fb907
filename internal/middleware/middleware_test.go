package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier map[string]service.Identity

func (v stubVerifier) VerifyAccess(token string) (service.Identity, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return service.Identity{}, service.ErrUnauthorized
}

type stubResolver map[string]*models.APIKey

func (r stubResolver) ResolveRaw(_ context.Context, raw string) (*models.APIKey, error) {
	if k, ok := r[raw]; ok {
		return k, nil
	}
	return nil, service.ErrUnauthorized
}

func run(t *testing.T, req *http.Request, h echo.HandlerFunc, mw ...echo.MiddlewareFunc) int {
	t.Helper()
	e := echo.New()
	e.GET("/x", h, mw...)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func ok(c echo.Context) error { return c.NoContent(http.StatusOK) }

func TestRequireAccess(t *testing.T) {
	user := service.Identity{AccountID: uuid.New(), Role: models.RoleUser}
	v := stubVerifier{"good": user}

	var seen service.Identity
	h := func(c echo.Context) error {
		seen, _ = IdentityFrom(c)
		return ok(c)
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")
	assert.Equal(t, http.StatusOK, run(t, req, h, RequireAccess(v)))
	assert.Equal(t, user, seen)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "good"})
	assert.Equal(t, http.StatusOK, run(t, req, h, RequireAccess(v)))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, run(t, req, h, RequireAccess(v)))

	assert.Equal(t, http.StatusUnauthorized, run(t, httptest.NewRequest(http.MethodGet, "/x", nil), h, RequireAccess(v)))
}

func TestRequireAdmin(t *testing.T) {
	v := stubVerifier{
		"user":  {AccountID: uuid.New(), Role: models.RoleUser},
		"admin": {AccountID: uuid.New(), Role: models.RoleAdmin},
	}
	for token, want := range map[string]int{"user": http.StatusForbidden, "admin": http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		assert.Equal(t, want, run(t, req, ok, RequireAccess(v), RequireAdmin), token)
	}
}

func TestRequireAPIKeyAndScope(t *testing.T) {
	key := &models.APIKey{ID: uuid.New(), Scopes: models.Scopes{models.ScopeRead}}
	r := stubResolver{"pfx_secret": key}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderAPIKey, "pfx_secret")
	assert.Equal(t, http.StatusOK, run(t, req, ok, RequireAPIKey(r), RequireScope(models.ScopeRead)))

	req = httptest.NewRequest(http.MethodGet, "/x?apiKey=pfx_secret", nil)
	assert.Equal(t, http.StatusForbidden, run(t, req, ok, RequireAPIKey(r), RequireScope(models.ScopeWrite)))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderAPIKey, "pfx_wrong")
	assert.Equal(t, http.StatusUnauthorized, run(t, req, ok, RequireAPIKey(r)))

	assert.Equal(t, http.StatusUnauthorized, run(t, httptest.NewRequest(http.MethodGet, "/x", nil), ok, RequireAPIKey(r)))
}

type memorySink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (*memorySink) Name() string { return "memory" }

func (m *memorySink) Write(_ context.Context, e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func TestAuditMetaCarriesCaller(t *testing.T) {
	sink := &memorySink{}
	al := audit.NewLogger(nil, sink)
	h := func(c echo.Context) error {
		al.Record(c.Request().Context(), audit.Event{ActorType: audit.ActorSystem, Action: "ping"})
		return ok(c)
	}
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("User-Agent", "ledger-test")
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.7")
	require.Equal(t, http.StatusOK, run(t, req, h, AuditMeta))
	al.Close()

	require.Len(t, sink.events, 1)
	assert.Equal(t, "203.0.113.7", sink.events[0].SourceIP)
	assert.Equal(t, "ledger-test", sink.events[0].UserAgent)
}
