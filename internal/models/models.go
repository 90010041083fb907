package models

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleService = "service"
)

const (
	EntrySignupBonus     = "signup_bonus"
	EntryPurchase        = "purchase"
	EntryConsumption     = "consumption"
	EntryAdminAdjustment = "admin_adjustment"
)

const (
	ScopeRead   = "read"
	ScopeWrite  = "write"
	ScopeDelete = "delete"
)

func ValidScope(s string) bool {
	switch s {
	case ScopeRead, ScopeWrite, ScopeDelete:
		return true
	}
	return false
}

func ValidEntryType(t string) bool {
	switch t {
	case EntrySignupBonus, EntryPurchase, EntryConsumption, EntryAdminAdjustment:
		return true
	}
	return false
}

type Account struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"                           json:"id"`
	Email        string     `gorm:"uniqueIndex;not null"                           json:"email"`
	PasswordHash *string    `gorm:""                                               json:"-"`
	Name         string     `gorm:"not null"                                       json:"name"`
	Role         string     `gorm:"not null;default:user"                          json:"role"`
	Credits      int64      `gorm:"not null;default:0;check:credits >= 0"          json:"credits"`
	IsActive     bool       `gorm:"not null;default:true"                          json:"is_active"`
	LastLoginAt  *time.Time `gorm:""                                               json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	APIKeys       []APIKey       `gorm:"foreignKey:AccountID" json:"-"`
	RefreshTokens []RefreshToken `gorm:"foreignKey:AccountID" json:"-"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// RefreshToken is active while ConsumedAt is nil and ExpiresAt is in the future.
// Consumed rows are kept until expiry so a replayed token can be recognised.
type RefreshToken struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"   json:"id"`
	AccountID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"account_id"`
	TokenHash      string     `gorm:"uniqueIndex;not null"   json:"-"`
	ExpiresAt      time.Time  `gorm:"index;not null"         json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
	ConsumedAt     *time.Time `json:"consumed_at,omitempty"`
	ReplacedByHash *string    `json:"-"`
}

func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Scopes is stored as a sorted comma separated column.
type Scopes []string

func NewScopes(in []string) Scopes {
	seen := make(map[string]struct{}, len(in))
	out := make(Scopes, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (s Scopes) Has(scope string) bool {
	for _, v := range s {
		if v == scope {
			return true
		}
	}
	return false
}

func (s Scopes) Value() (driver.Value, error) {
	return strings.Join(s, ","), nil
}

func (s *Scopes) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*s = Scopes{}
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scopes: unsupported type %T", src)
	}
	*s = NewScopes(strings.Split(raw, ","))
	return nil
}

func (Scopes) GormDataType() string { return "string" }

type APIKey struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"     json:"id"`
	AccountID  uuid.UUID  `gorm:"type:uuid;index;not null" json:"account_id"`
	Name       string     `gorm:"not null"                 json:"name"`
	Prefix     string     `gorm:"uniqueIndex;not null"     json:"prefix"`
	SecretHash string     `gorm:"not null"                 json:"-"`
	Scopes     Scopes     `gorm:"not null"                 json:"scopes"`
	Revoked    bool       `gorm:"not null;default:false;index" json:"revoked"`
	ExpiresAt  *time.Time `gorm:"index"                    json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	return nil
}

func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// LedgerEntry rows are insert-only. ID is assigned after the account row
// lock is taken, so it orders entries per account.
type LedgerEntry struct {
	ID            uint              `gorm:"primaryKey;autoIncrement"  json:"id"`
	AccountID     uuid.UUID         `gorm:"type:uuid;index;not null"  json:"account_id"`
	Type          string            `gorm:"index;not null"            json:"type"`
	Amount        int64             `gorm:"not null"                  json:"amount"`
	BalanceAfter  int64             `gorm:"not null"                  json:"balance_after"`
	Description   string            `json:"description"`
	Reference     *string           `gorm:"uniqueIndex"               json:"reference,omitempty"`
	ReferenceData datatypes.JSONMap `json:"reference_data,omitempty"`
	CreatedAt     time.Time         `gorm:"index"                     json:"created_at"`
}

type AuditEvent struct {
	ID        uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorType string            `gorm:"index;not null"           json:"actor_type"`
	ActorID   string            `gorm:"index"                    json:"actor_id"`
	Action    string            `gorm:"index;not null"           json:"action"`
	Details   datatypes.JSONMap `json:"details,omitempty"`
	SourceIP  string            `json:"source_ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	CreatedAt time.Time         `gorm:"index"                    json:"created_at"`
}

func All() []any {
	return []any{&Account{}, &RefreshToken{}, &APIKey{}, &LedgerEntry{}, &AuditEvent{}}
}
