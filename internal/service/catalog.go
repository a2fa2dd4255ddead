package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/therapy_shop/internal/models"
	"github.com/Skotchmaster/therapy_shop/internal/repo"
	"github.com/Skotchmaster/therapy_shop/internal/search"
	"github.com/Skotchmaster/therapy_shop/internal/transport"
	"github.com/Skotchmaster/therapy_shop/pkg/events"
	"github.com/Skotchmaster/therapy_shop/pkg/logging"
)

type CatalogService struct {
	Repo      *repo.GormRepo
	Index     search.Index
	Publisher events.Publisher
}

type ProductEvent struct {
	Type      string          `json:"type"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Stock     *int            `json:"stock,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !p.Active {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *CatalogService) ListProducts(ctx context.Context, f repo.ProductFilter, offset, limit int) (int64, []models.Product, error) {
	if f.Type != "" && f.Type != models.ProductPhysical && f.Type != models.ProductDigital {
		return 0, nil, fmt.Errorf("%w: unknown type %q", ErrValidation, f.Type)
	}
	return s.Repo.ListProducts(ctx, f, offset, limit)
}

func (s *CatalogService) SearchProducts(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error) {
	if s.Index == nil {
		return s.Repo.SearchProducts(ctx, q, offset, limit)
	}
	return s.Index.Search(ctx, q, offset, limit)
}

// normalizeProduct enforces the catalog rules shared by create and patch:
// digital products never carry stock and prices are kept to two places.
func normalizeProduct(p *models.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: name required", ErrValidation)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must be >= 0", ErrValidation)
	}
	p.Price = p.Price.Round(2)

	switch p.Type {
	case "":
		p.Type = models.ProductPhysical
	case models.ProductPhysical, models.ProductDigital:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrValidation, p.Type)
	}

	if p.Type == models.ProductDigital {
		p.Stock = nil
	}
	if p.Stock != nil && *p.Stock < 0 {
		return fmt.Errorf("%w: stock must be >= 0", ErrValidation)
	}
	return nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, req transport.CreateProductRequest) (*models.Product, error) {
	p := &models.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		Type:        req.Type,
		AgeRange:    req.AgeRange,
		Category:    req.Category,
		Stock:       req.Stock,
		Active:      true,
	}
	if err := normalizeProduct(p); err != nil {
		return nil, err
	}

	if err := s.Repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	s.changed(ctx, "product_created", p)
	return p, nil
}

func (s *CatalogService) PatchProduct(ctx context.Context, req transport.PatchProductRequest, id uuid.UUID) (*models.Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.ImageURL != nil {
		p.ImageURL = *req.ImageURL
	}
	if req.Type != nil {
		p.Type = *req.Type
	}
	if req.AgeRange != nil {
		p.AgeRange = *req.AgeRange
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.Stock != nil {
		stock := *req.Stock
		p.Stock = &stock
	}
	if err := normalizeProduct(p); err != nil {
		return nil, err
	}

	// Only patched columns are written. Stock moves under concurrent orders
	// and must not be overwritten from the snapshot read above.
	fields := map[string]any{}
	if req.Name != nil {
		fields["name"] = p.Name
	}
	if req.Description != nil {
		fields["description"] = p.Description
	}
	if req.Price != nil {
		fields["price"] = p.Price
	}
	if req.ImageURL != nil {
		fields["image_url"] = p.ImageURL
	}
	if req.Type != nil {
		fields["type"] = p.Type
	}
	if req.AgeRange != nil {
		fields["age_range"] = p.AgeRange
	}
	if req.Category != nil {
		fields["category"] = p.Category
	}
	if req.Stock != nil || (req.Type != nil && p.Type == models.ProductDigital) {
		fields["stock"] = p.Stock
	}
	if len(fields) > 0 {
		if err := s.Repo.UpdateProduct(ctx, id, fields); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
	}

	p, err = s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	s.changed(ctx, "product_updated", p)
	return p, nil
}

// DeleteProduct deactivates the product. Orders that reference it keep
// resolving it.
func (s *CatalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.Repo.DeactivateProduct(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.changed(ctx, "product_deleted", &models.Product{ID: id})
	return nil
}

func (s *CatalogService) changed(ctx context.Context, kind string, p *models.Product) {
	l := logging.FromContext(ctx).With("svc", "catalog", "product_id", p.ID)

	if s.Index != nil {
		var err error
		if kind == "product_deleted" {
			err = s.Index.RemoveProduct(ctx, p.ID)
		} else {
			err = s.Index.IndexProduct(ctx, p)
		}
		if err != nil {
			l.Warn("search_index_error", "type", kind, "error", err)
		}
	}

	if s.Publisher != nil {
		ev := ProductEvent{
			Type:      kind,
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Stock:     p.Stock,
			Timestamp: time.Now().UTC(),
		}
		if err := s.Publisher.PublishEvent(ctx, events.TopicProducts, p.ID.String(), ev); err != nil {
			l.Warn("publish_product_event_error", "type", kind, "error", err)
		}
	}
}
