package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/metrics"
	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/internal/repo"
	"github.com/Skotchmaster/credit_ledger/pkg/hash"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/Skotchmaster/credit_ledger/pkg/tokens"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	refreshTokenBytes = 32

	// reuseGrace is how long after a rotation a second presentation of the
	// same token counts as a client race rather than a replay.
	reuseGrace = 2 * time.Second
)

var (
	errRotationMiss    = errors.New("refresh token not active")
	errAccountDisabled = errors.New("account disabled")
)

type TokenConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenService struct {
	Repo    *repo.GormRepo
	Cfg     TokenConfig
	Audit   *audit.Logger
	Metrics *metrics.Metrics
	Clock   Clock
}

type Session struct {
	AccountID    uuid.UUID
	Role         string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

func (s *TokenService) IssueSession(ctx context.Context, accountID uuid.UUID, role string) (*Session, error) {
	return s.issue(ctx, s.Repo, accountID, role, s.Clock.now())
}

func (s *TokenService) issue(ctx context.Context, r *repo.GormRepo, accountID uuid.UUID, role string, now time.Time) (*Session, error) {
	plain, tokenHash, err := newRefreshValue()
	if err != nil {
		return nil, err
	}
	refreshExp := now.Add(s.Cfg.RefreshTTL)
	if err := r.CreateRefreshToken(ctx, &models.RefreshToken{
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpiresAt: refreshExp,
	}); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	access, accessExp, err := s.signAccess(accountID, role, now)
	if err != nil {
		return nil, err
	}

	return &Session{
		AccountID:    accountID,
		Role:         role,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: plain,
		RefreshExp:   refreshExp,
	}, nil
}

func (s *TokenService) signAccess(accountID uuid.UUID, role string, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.Cfg.AccessTTL)
	tok, err := tokens.SignAccess(s.Cfg.Secret, accountID.String(), role, uuid.NewString(), now, exp)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return tok, exp, nil
}

func newRefreshValue() (plain, tokenHash string, err error) {
	plain, err = hash.RandomHex(refreshTokenBytes)
	if err != nil {
		return "", "", err
	}
	return plain, hash.Sha256Hex(plain), nil
}

// Rotate consumes the presented refresh token and issues a successor for the
// same account. A token can win this exactly once.
func (s *TokenService) Rotate(ctx context.Context, presented string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "tokens.rotate")
	if presented == "" {
		return nil, ErrInvalidCredential
	}

	now := s.Clock.now()
	oldHash := hash.Sha256Hex(presented)
	plain, newHash, err := newRefreshValue()
	if err != nil {
		return nil, err
	}

	var sess *Session
	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		n, err := tx.ConsumeRefreshToken(ctx, oldHash, newHash, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return errRotationMiss
		}

		old, err := tx.FindRefreshByHash(ctx, oldHash)
		if err != nil {
			return err
		}
		if !hash.Equal(old.TokenHash, oldHash) {
			return errRotationMiss
		}

		acct, err := tx.GetAccountByID(ctx, old.AccountID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errAccountDisabled
		}
		if err != nil {
			return err
		}
		if !acct.IsActive {
			return errAccountDisabled
		}

		refreshExp := now.Add(s.Cfg.RefreshTTL)
		if err := tx.CreateRefreshToken(ctx, &models.RefreshToken{
			AccountID: acct.ID,
			TokenHash: newHash,
			ExpiresAt: refreshExp,
		}); err != nil {
			return err
		}

		access, accessExp, err := s.signAccess(acct.ID, acct.Role, now)
		if err != nil {
			return err
		}
		sess = &Session{
			AccountID:    acct.ID,
			Role:         acct.Role,
			AccessToken:  access,
			AccessExp:    accessExp,
			RefreshToken: plain,
			RefreshExp:   refreshExp,
		}
		return nil
	})

	switch {
	case errors.Is(err, errRotationMiss):
		s.handleMiss(ctx, oldHash, now)
		return nil, ErrInvalidCredential
	case errors.Is(err, errAccountDisabled):
		l.Warn("refresh_failed", "status", 401, "reason", "account inactive or missing")
		return nil, ErrInvalidCredential
	case err != nil:
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	s.Audit.Record(ctx, audit.Event{
		ActorType: Identity{Role: sess.Role}.actorType(),
		ActorID:   sess.AccountID.String(),
		Action:    "session_refreshed",
	})
	return sess, nil
}

// handleMiss separates a replay of an already rotated token from an unknown or
// expired one. A replay revokes every live token of that account unless it
// lands within reuseGrace of the rotation that consumed it.
func (s *TokenService) handleMiss(ctx context.Context, tokenHash string, now time.Time) {
	l := logging.FromContext(ctx).With("svc", "tokens.rotate")

	old, err := s.Repo.FindRefreshByHash(ctx, tokenHash)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			l.Error("refresh_reuse_lookup_failed", "error", err)
		}
		l.Warn("refresh_failed", "status", 401, "reason", "unknown refresh token")
		return
	}
	if old.ConsumedAt == nil {
		l.Warn("refresh_failed", "status", 401, "reason", "refresh token expired")
		return
	}
	if old.ReplacedByHash != nil && now.Sub(*old.ConsumedAt) < reuseGrace {
		l.Info("refresh_failed", "status", 401, "reason", "concurrent rotation", "account_id", old.AccountID)
		return
	}

	revoked, err := s.Repo.RevokeAllRefreshForAccount(ctx, old.AccountID, now)
	if err != nil {
		l.Error("refresh_chain_revoke_failed", "account_id", old.AccountID, "error", err)
	}
	s.Metrics.RefreshReused()
	l.Warn("refresh_token_reuse", "status", 401, "account_id", old.AccountID, "revoked", revoked)
	s.Audit.Record(ctx, audit.Event{
		ActorType: audit.ActorSystem,
		ActorID:   old.AccountID.String(),
		Action:    "refresh_token_reuse",
		Details:   map[string]any{"revoked_tokens": revoked},
	})
}

func (s *TokenService) VerifyAccess(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	claims, err := tokens.AccessClaimsFromToken(token, s.Cfg.Secret, s.Clock.now())
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: bad subject", ErrUnauthorized)
	}
	switch claims.Role {
	case models.RoleUser, models.RoleAdmin, models.RoleService:
	default:
		return Identity{}, fmt.Errorf("%w: bad role", ErrUnauthorized)
	}
	return Identity{AccountID: id, Role: claims.Role}, nil
}

// Revoke removes the presented refresh token. Unknown tokens are not an error.
func (s *TokenService) Revoke(ctx context.Context, presented string) error {
	if presented == "" {
		return nil
	}
	tokenHash := hash.Sha256Hex(presented)

	old, err := s.Repo.FindRefreshByHash(ctx, tokenHash)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find refresh token: %w", err)
	}
	// consumed rows stay until expiry as replay evidence
	if old.ConsumedAt != nil {
		return nil
	}
	if _, err := s.Repo.DeleteRefreshByHash(ctx, tokenHash); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}

	s.Audit.Record(ctx, audit.Event{
		ActorType: audit.ActorUser,
		ActorID:   old.AccountID.String(),
		Action:    "logout",
	})
	return nil
}

func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.Repo.PurgeExpiredRefresh(ctx, s.Clock.now())
}
