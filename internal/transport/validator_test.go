package transport

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_SignUp(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.Validate(&SignUpRequest{Email: "a@example.com", Password: "password123", Name: "Ann"}))

	err := v.Validate(&SignUpRequest{Email: "nope", Password: "short", Name: "A"})
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)

	body, ok := he.Message.(echo.Map)
	require.True(t, ok)
	details, ok := body["details"].([]FieldError)
	require.True(t, ok)
	require.Len(t, details, 3)
	assert.Equal(t, "email", details[0].Field)
}

func TestValidator_CreateAPIKeyScopes(t *testing.T) {
	v := NewValidator()
	ok := &CreateAPIKeyRequest{UserID: uuid.NewString(), Name: "k", Scopes: []string{"read", "write"}}
	assert.NoError(t, v.Validate(ok))

	bad := &CreateAPIKeyRequest{UserID: uuid.NewString(), Name: "k", Scopes: []string{"admin"}}
	assert.Error(t, v.Validate(bad))

	empty := &CreateAPIKeyRequest{UserID: uuid.NewString(), Name: "k"}
	assert.Error(t, v.Validate(empty))

	ttl := &CreateAPIKeyRequest{UserID: uuid.NewString(), Name: "k", Scopes: []string{"read"}, ExpiresInDays: 400}
	assert.Error(t, v.Validate(ttl))
}
