// Package testutil holds fixtures shared by package tests: an in-memory
// database and recording fakes for the outbound collaborators.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/therapy_shop/internal/models"
	"github.com/Skotchmaster/therapy_shop/pkg/hash"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory sqlite database with every model migrated.
// One connection keeps the in-memory database alive and serialises
// transactions the way row locks would on postgres.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.All()...))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type Event struct {
	Topic string
	Key   string
	Body  any
}

type Recorder struct {
	mu     sync.Mutex
	Events []Event
	Err    error
}

func (r *Recorder) PublishEvent(_ context.Context, topic, key string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Events = append(r.Events, Event{Topic: topic, Key: key, Body: event})
	return nil
}

func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Topic)
	}
	return out
}

func CreateUser(t *testing.T, db *gorm.DB, email, password, role string) *models.User {
	t.Helper()

	h, err := hash.HashPassword(password)
	require.NoError(t, err)

	u := &models.User{Email: email, PasswordHash: h, Name: "Test " + role, Role: role}
	require.NoError(t, db.Create(u).Error)
	return u
}

func CreatePhysical(t *testing.T, db *gorm.DB, name, price string, stock int) *models.Product {
	t.Helper()

	p := &models.Product{
		Name:        name,
		Description: name + " description",
		Price:       decimal.RequireFromString(price),
		Type:        models.ProductPhysical,
		Category:    "sensory",
		AgeRange:    "3-6",
		Stock:       &stock,
		Active:      true,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func CreateDigital(t *testing.T, db *gorm.DB, name, price string) *models.Product {
	t.Helper()

	p := &models.Product{
		Name:        name,
		Description: name + " description",
		Price:       decimal.RequireFromString(price),
		Type:        models.ProductDigital,
		Category:    "worksheets",
		Active:      true,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func Stock(t *testing.T, db *gorm.DB, p *models.Product) *int {
	t.Helper()

	var fresh models.Product
	require.NoError(t, db.Where("id = ?", p.ID).First(&fresh).Error)
	return fresh.Stock
}
