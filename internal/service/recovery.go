package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/therapy_shop/internal/models"
	"github.com/Skotchmaster/therapy_shop/internal/repo"
	pkg_hash "github.com/Skotchmaster/therapy_shop/pkg/hash"
	"github.com/Skotchmaster/therapy_shop/pkg/logging"
)

const (
	ResetTokenTTL   = time.Hour
	resetTokenBytes = 32
)

type RecoveryService struct {
	Repo     *repo.GormRepo
	Notifier Notifier
	Now      func() time.Time
}

func (s *RecoveryService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func newResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RequestReset mints a single-use token for the account behind email. Only
// the token's hash is stored. When mail cannot be sent the token is logged so
// an operator can pass it on.
func (s *RecoveryService) RequestReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	l := logging.FromContext(ctx).With("svc", "recovery.request", "email", email)

	if email == "" {
		return fmt.Errorf("%w: email required", ErrValidation)
	}

	user, err := s.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	raw, err := newResetToken()
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.Repo.CreateResetToken(ctx, &models.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: pkg_hash.Sha256Hex(raw),
		ExpiresAt: now.Add(ResetTokenTTL),
		CreatedAt: now,
	}); err != nil {
		return err
	}

	body := fmt.Sprintf("Use this code to reset your password within the next hour:\n\n%s\n", raw)
	if s.Notifier == nil {
		l.Warn("reset_token_issued", "user_id", user.ID, "token", raw, "reason", "no notifier")
		return nil
	}
	if err := s.Notifier.Send(ctx, user.Email, "Password reset", body); err != nil {
		l.Warn("reset_token_issued", "user_id", user.ID, "token", raw, "reason", "notify failed", "error", err)
		return nil
	}

	l.Info("reset_token_sent", "user_id", user.ID)
	return nil
}

// Reset consumes token and sets a new password. An expired token is removed
// on sight.
func (s *RecoveryService) Reset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	stored, err := s.Repo.FindResetToken(ctx, pkg_hash.Sha256Hex(token))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	if !s.now().Before(stored.ExpiresAt) {
		if _, err := s.Repo.DeleteResetToken(ctx, stored.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: expired", ErrInvalidToken)
	}

	pwHash, err := pkg_hash.HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.Repo.WithTx(ctx, func(tx *repo.GormRepo) error {
		deleted, err := tx.DeleteResetToken(ctx, stored.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrInvalidToken
		}
		if err := tx.UpdatePassword(ctx, stored.UserID, pwHash); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		return tx.RevokeAllRefresh(ctx, stored.UserID)
	})
}
