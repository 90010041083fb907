package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/internal/repo"
	"github.com/Skotchmaster/credit_ledger/pkg/hash"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultSignupBonus = 50
	MinPasswordLength  = 8
)

type AuthService struct {
	Repo        *repo.GormRepo
	Tokens      *TokenService
	Ledger      *LedgerService
	Audit       *audit.Logger
	Clock       Clock
	HashCost    int
	SignupBonus int64

	dummyOnce sync.Once
	dummyHash string
}

type SignUpInput struct {
	Email    string
	Password string
	Name     string
}

type AuthResult struct {
	Account *models.Account
	Session *Session
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) bonus() int64 {
	if s.SignupBonus <= 0 {
		return DefaultSignupBonus
	}
	return s.SignupBonus
}

func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.signup")

	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	if len(name) < 2 || len(name) > 50 {
		return nil, fmt.Errorf("%w: name must be 2-50 characters", ErrValidation)
	}

	pwHash, err := hash.HashPassword(in.Password, s.HashCost)
	if err != nil {
		l.Error("signup_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	acct := &models.Account{
		Email:        email,
		PasswordHash: &pwHash,
		Name:         name,
		Role:         models.RoleUser,
		IsActive:     true,
	}
	var (
		entry *models.LedgerEntry
		sess  *Session
	)
	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		if err := tx.CreateAccountIfNotExists(ctx, acct); err != nil {
			return err
		}
		var err error
		entry, _, err = s.Ledger.creditTx(ctx, tx, CreditInput{
			AccountID:   acct.ID,
			Amount:      s.bonus(),
			Type:        models.EntrySignupBonus,
			Description: "Welcome bonus",
			Actor:       Actor{Type: audit.ActorSystem, ID: "signup"},
		})
		if err != nil {
			return err
		}
		sess, err = s.Tokens.issue(ctx, tx, acct.ID, acct.Role, s.Clock.now())
		return err
	})
	if errors.Is(err, repo.ErrAccountAlreadyExist) {
		l.Warn("signup_failed", "status", 409, "reason", "email already registered")
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	}
	if err != nil {
		l.Error("signup_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("signup: %w", err)
	}

	acct.Credits = entry.BalanceAfter
	s.Ledger.committed(ctx, "credit", entry, Actor{Type: audit.ActorSystem, ID: "signup"})
	s.Audit.Record(ctx, audit.Event{
		ActorType: audit.ActorUser,
		ActorID:   acct.ID.String(),
		Action:    "signup",
		Details:   map[string]any{"email": email, "signup_bonus": entry.Amount},
	})
	l.Info("signup_success", "account_id", acct.ID)
	return &AuthResult{Account: acct, Session: sess}, nil
}

// Login returns ErrInvalidCredential for every failure so callers cannot
// distinguish an unknown email from a wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")
	email = NormalizeEmail(email)

	acct, err := s.Repo.GetAccountByEmail(ctx, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("load account: %w", err)
	}

	ok := false
	switch {
	case acct == nil || acct.PasswordHash == nil:
		s.burnCompare(password)
	default:
		ok = hash.CheckPassword(*acct.PasswordHash, password)
	}
	if !ok || !acct.IsActive {
		reason := "bad credentials"
		actorID := email
		if acct != nil {
			actorID = acct.ID.String()
			if ok {
				reason = "account disabled"
			}
		}
		l.Warn("login_failed", "status", 401, "reason", reason)
		s.Audit.Record(ctx, audit.Event{
			ActorType: audit.ActorUser,
			ActorID:   actorID,
			Action:    "login_failed",
			Details:   map[string]any{"email": email, "reason": reason},
		})
		return nil, ErrInvalidCredential
	}

	now := s.Clock.now()
	sess, err := s.Tokens.issue(ctx, s.Repo, acct.ID, acct.Role, now)
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}
	if err := s.Repo.TouchLastLogin(ctx, acct.ID, now); err != nil {
		l.Warn("last_login_update_failed", "error", err)
	} else {
		acct.LastLoginAt = &now
	}

	s.Audit.Record(ctx, audit.Event{
		ActorType: Identity{Role: acct.Role}.actorType(),
		ActorID:   acct.ID.String(),
		Action:    "login",
	})
	l.Info("login_success", "account_id", acct.ID)
	return &AuthResult{Account: acct, Session: sess}, nil
}

func (s *AuthService) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = hash.HashPassword("not-a-real-password", s.HashCost)
	})
	if s.dummyHash != "" {
		_ = hash.CheckPassword(s.dummyHash, password)
	}
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return s.Tokens.Rotate(ctx, refreshToken)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.Tokens.Revoke(ctx, refreshToken)
}

func (s *AuthService) Profile(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	acct, err := s.Repo.GetAccountByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: account", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return acct, nil
}
