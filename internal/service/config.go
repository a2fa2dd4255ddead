package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/therapy_shop/internal/models"
	"github.com/Skotchmaster/therapy_shop/internal/repo"
	"github.com/Skotchmaster/therapy_shop/internal/transport"
)

// ConfigService serves the admin configuration row from memory. The row is
// read from the database once and replaced on every successful Save.
type ConfigService struct {
	Repo *repo.GormRepo

	mu     sync.RWMutex
	loaded bool
	cached *models.AdminConfig
}

func (s *ConfigService) load(ctx context.Context) (*models.AdminConfig, error) {
	s.mu.RLock()
	if s.loaded {
		cfg := s.cached
		s.mu.RUnlock()
		return cfg, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.cached, nil
	}

	cfg, err := s.Repo.GetAdminConfig(ctx)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.cached = nil
	case err != nil:
		return nil, err
	default:
		s.cached = cfg
	}
	s.loaded = true
	return s.cached, nil
}

// Get returns a copy of the configuration, or ErrNotFound before the first save.
func (s *ConfigService) Get(ctx context.Context) (*models.AdminConfig, error) {
	cfg, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNotFound
	}
	out := *cfg
	return &out, nil
}

// Save applies the non-nil fields of patch over the current configuration.
// Concurrent saves are last-writer-wins.
func (s *ConfigService) Save(ctx context.Context, patch transport.AdminConfigPatch) (*models.AdminConfig, error) {
	if patch.SMTPPort != nil && (*patch.SMTPPort < 0 || *patch.SMTPPort > 65535) {
		return nil, fmt.Errorf("%w: smtp_port out of range", ErrValidation)
	}

	if _, err := s.load(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := models.AdminConfig{ID: models.AdminConfigID}
	if s.cached != nil {
		next = *s.cached
	}
	applyConfigPatch(&next, patch)
	next.UpdatedAt = time.Now().UTC()

	if err := s.Repo.SaveAdminConfig(ctx, &next); err != nil {
		return nil, err
	}
	s.cached = &next
	s.loaded = true

	out := next
	return &out, nil
}

// MailConfigured reports whether a mail relay host and sender are set.
func (s *ConfigService) MailConfigured(ctx context.Context) bool {
	cfg, err := s.load(ctx)
	if err != nil || cfg == nil {
		return false
	}
	return cfg.SMTPHost != "" && cfg.MailFrom != ""
}

func applyConfigPatch(cfg *models.AdminConfig, p transport.AdminConfigPatch) {
	if p.SMTPHost != nil {
		cfg.SMTPHost = *p.SMTPHost
	}
	if p.SMTPPort != nil {
		cfg.SMTPPort = *p.SMTPPort
	}
	if p.SMTPUser != nil {
		cfg.SMTPUser = *p.SMTPUser
	}
	if p.SMTPPassword != nil {
		cfg.SMTPPassword = *p.SMTPPassword
	}
	if p.MailFrom != nil {
		cfg.MailFrom = *p.MailFrom
	}
	if p.PaymentProvider != nil {
		cfg.PaymentProvider = *p.PaymentProvider
	}
	if p.PaymentPublicKey != nil {
		cfg.PaymentPublicKey = *p.PaymentPublicKey
	}
	if p.PaymentSecretKey != nil {
		cfg.PaymentSecretKey = *p.PaymentSecretKey
	}
}
