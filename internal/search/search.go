// Package search finds catalog products by free text. Elastic is used when a
// cluster is configured; DBIndex falls back to a LIKE query on the products table.
package search

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/therapy_shop/internal/models"
	"github.com/Skotchmaster/therapy_shop/internal/repo"
)

type Index interface {
	Search(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error)
	IndexProduct(ctx context.Context, p *models.Product) error
	RemoveProduct(ctx context.Context, id uuid.UUID) error
}

func sanitizeQuery(q string) string {
	return strings.TrimSpace(q)
}

type DBIndex struct {
	Repo *repo.GormRepo
}

func (d *DBIndex) Search(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error) {
	q = sanitizeQuery(q)
	if q == "" {
		return 0, []models.Product{}, nil
	}
	return d.Repo.SearchProducts(ctx, q, offset, limit)
}

// IndexProduct is a no-op: the table is the index.
func (d *DBIndex) IndexProduct(context.Context, *models.Product) error { return nil }

func (d *DBIndex) RemoveProduct(context.Context, uuid.UUID) error { return nil }
