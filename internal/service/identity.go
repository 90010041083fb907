package service

import (
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/google/uuid"
)

type Identity struct {
	AccountID uuid.UUID
	Role      string
}

func (i Identity) IsAdmin() bool { return i.Role == models.RoleAdmin }

func (i Identity) actorType() string {
	switch i.Role {
	case models.RoleAdmin:
		return audit.ActorAdmin
	case models.RoleService:
		return audit.ActorService
	default:
		return audit.ActorUser
	}
}

type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
