package transport

import (
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/google/uuid"
)

type SignUpRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name"     validate:"required,min=2,max=50"`
}

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AddCreditsRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"max=200"`
}

type CreateAPIKeyRequest struct {
	UserID        string   `json:"userId"        validate:"required,uuid"`
	Name          string   `json:"name"          validate:"required,min=1,max=50"`
	Scopes        []string `json:"scopes"        validate:"required,min=1,dive,oneof=read write delete"`
	ExpiresInDays int      `json:"expiresInDays" validate:"omitempty,min=1,max=365"`
}

type RevokeAPIKeyRequest struct {
	APIKeyID string `json:"apiKeyId" validate:"required,uuid"`
}

type UserResponse struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Credits     int64      `json:"credits"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func NewUserResponse(a *models.Account) UserResponse {
	return UserResponse{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		Role:        a.Role,
		Credits:     a.Credits,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
	}
}

type AuthResponse struct {
	Message     string       `json:"message"`
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
}

type APIKeyResponse struct {
	ID         uuid.UUID  `json:"id"`
	OwnerID    uuid.UUID  `json:"user_id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	Scopes     []string   `json:"scopes"`
	Revoked    bool       `json:"revoked"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func NewAPIKeyResponse(k *models.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID,
		OwnerID:    k.AccountID,
		Name:       k.Name,
		Prefix:     k.Prefix,
		Scopes:     k.Scopes,
		Revoked:    k.Revoked,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// CreatedAPIKeyResponse is the only response that ever carries the plaintext key.
type CreatedAPIKeyResponse struct {
	APIKeyResponse
	Key     string `json:"key"`
	Message string `json:"message"`
}
