package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/therapy_shop/internal/models"
	"github.com/Skotchmaster/therapy_shop/internal/repo"
	"github.com/Skotchmaster/therapy_shop/internal/transport"
	"github.com/Skotchmaster/therapy_shop/pkg/events"
	pkg_hash "github.com/Skotchmaster/therapy_shop/pkg/hash"
	"github.com/Skotchmaster/therapy_shop/pkg/logging"
	"github.com/Skotchmaster/therapy_shop/pkg/tokens"
)

const minPasswordLen = 8

type AuthService struct {
	Repo          *repo.GormRepo
	AccessSecret  []byte
	RefreshSecret []byte
	Publisher     events.Publisher
	Now           func() time.Time
}

type UserEvent struct {
	Type      string    `json:"type"`
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"ts"`
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email required", ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: email invalid", ErrValidation)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, req transport.RegisterRequest) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}

	pwHash, err := pkg_hash.HashPassword(req.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := &models.User{
		Email:        email,
		PasswordHash: pwHash,
		Name:         name,
		Role:         models.RoleUser,
	}
	if err := s.Repo.CreateUserIfNotExists(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, err
	}

	s.publish(ctx, UserEvent{Type: "user_registered", UserID: user.ID, Email: user.Email, Timestamp: s.now()})
	return user, nil
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*transport.LoginResult, *models.RefreshToken, error) {
	now := s.now()
	accessExp := now.Add(tokens.AccessTTL)
	refreshExp := now.Add(tokens.RefreshTTL)

	access, err := tokens.SignAccess(user.ID, user.Role, accessExp, s.AccessSecret)
	if err != nil {
		return nil, nil, err
	}
	refresh, jti, err := tokens.SignRefresh(user.ID, refreshExp, s.RefreshSecret)
	if err != nil {
		return nil, nil, err
	}

	row := &models.RefreshToken{
		UserID:    user.ID,
		JTI:       jti,
		TokenHash: pkg_hash.Sha256Hex(refresh),
		ExpiresAt: refreshExp,
	}
	return &transport.LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
		IsAdmin:      user.Role == models.RoleAdmin,
	}, row, nil
}

func (s *AuthService) Login(ctx context.Context, req transport.LoginRequest) (*transport.LoginResult, error) {
	email := normalizeEmail(req.Email)
	l := logging.FromContext(ctx).With("svc", "auth.login", "email", email)

	user, err := s.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "unknown email")
			return nil, fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
		}
		return nil, err
	}
	if !pkg_hash.CheckPassword(user.PasswordHash, req.Password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password")
		return nil, fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
	}

	res, row, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.AddRefreshToken(ctx, row); err != nil {
		return nil, err
	}
	return res, nil
}

// Refresh trades a refresh token for a new pair. The presented token is
// revoked in the same transaction that stores its successor.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*transport.LoginResult, error) {
	claims, err := tokens.RefreshClaimsFromToken(refreshToken, s.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrUnauthenticated)
	}

	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user gone", ErrUnauthenticated)
		}
		return nil, err
	}

	res, row, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	err = s.Repo.RotateRefreshToken(ctx, claims.ID, pkg_hash.Sha256Hex(refreshToken), row, s.now())
	if err != nil {
		if errors.Is(err, repo.ErrRefreshUnusable) || errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: refresh token expired or revoked", ErrUnauthenticated)
		}
		return nil, err
	}
	return res, nil
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.Repo.RevokeRefresh(ctx, pkg_hash.Sha256Hex(refreshToken))
}

func (s *AuthService) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// UserRole resolves a token subject to the role currently stored for it.
func (s *AuthService) UserRole(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return user.Role, true, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, req transport.UpdateProfileRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}

	err := s.Repo.WithTx(ctx, func(tx *repo.GormRepo) error {
		taken, err := tx.EmailTaken(ctx, email, userID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return tx.UpdateProfile(ctx, userID, name, email)
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, ErrNotFound
		case errors.Is(err, gorm.ErrDuplicatedKey):
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, err
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, UserEvent{Type: "user_updated", UserID: user.ID, Email: user.Email, Timestamp: s.now()})
	return user, nil
}

// ChangePassword also signs the user out of every other session.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, req transport.ChangePasswordRequest) error {
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !pkg_hash.CheckPassword(user.PasswordHash, req.OldPassword) {
		return fmt.Errorf("%w: old password does not match", ErrValidation)
	}

	pwHash, err := pkg_hash.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.Repo.WithTx(ctx, func(tx *repo.GormRepo) error {
		if err := tx.UpdatePassword(ctx, userID, pwHash); err != nil {
			return err
		}
		return tx.RevokeAllRefresh(ctx, userID)
	})
}

// EnsureAdmin seeds an admin account, promoting an existing user with that
// email if needed. Empty credentials disable seeding.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	l := logging.FromContext(ctx).With("svc", "auth.ensure_admin")

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	if err := validateEmail(email); err != nil {
		return err
	}

	existing, err := s.Repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			return nil
		}
		l.Info("admin_promoted", "user_id", existing.ID)
		return s.Repo.SetRole(ctx, existing.ID, models.RoleAdmin)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	pwHash, err := pkg_hash.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &models.User{
		Email:        email,
		PasswordHash: pwHash,
		Name:         "Administrator",
		Role:         models.RoleAdmin,
	}
	if err := s.Repo.CreateUserIfNotExists(ctx, admin); err != nil && !errors.Is(err, repo.ErrUserAlreadyExist) {
		return err
	}
	l.Info("admin_seeded", "user_id", admin.ID)
	return nil
}

func (s *AuthService) publish(ctx context.Context, ev UserEvent) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.PublishEvent(ctx, events.TopicUsers, ev.UserID.String(), ev); err != nil {
		logging.FromContext(ctx).Warn("publish_user_event_error", "type", ev.Type, "error", err)
	}
}
