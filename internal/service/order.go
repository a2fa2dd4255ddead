package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/therapy_shop/internal/models"
	"github.com/Skotchmaster/therapy_shop/internal/repo"
	"github.com/Skotchmaster/therapy_shop/internal/transport"
	"github.com/Skotchmaster/therapy_shop/pkg/events"
	"github.com/Skotchmaster/therapy_shop/pkg/logging"
)

// Caller is the authenticated identity behind a request. A nil *Caller is a guest.
type Caller struct {
	UserID uuid.UUID
	Role   string
}

func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == models.RoleAdmin
}

type OrderEvent struct {
	Type      string             `json:"type"`
	OrderID   uuid.UUID          `json:"order_id"`
	UserID    *uuid.UUID         `json:"user_id,omitempty"`
	Status    models.OrderStatus `json:"status"`
	From      models.OrderStatus `json:"from,omitempty"`
	Total     decimal.Decimal    `json:"total"`
	Timestamp time.Time          `json:"ts"`
}

type OrderService struct {
	Repo      *repo.GormRepo
	Publisher events.Publisher
	Now       func() time.Time
}

func (s *OrderService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func validateOrder(req *transport.CreateOrderRequest) error {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.ShippingAddress = strings.TrimSpace(req.ShippingAddress)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)

	if len(req.Items) == 0 {
		return fmt.Errorf("%w: items required", ErrValidation)
	}
	if req.CustomerName == "" {
		return fmt.Errorf("%w: customer_name required", ErrValidation)
	}
	if _, err := mail.ParseAddress(req.CustomerEmail); err != nil {
		return fmt.Errorf("%w: customer_email invalid", ErrValidation)
	}
	if req.ShippingAddress == "" {
		return fmt.Errorf("%w: shipping_address required", ErrValidation)
	}
	if req.Total != nil && req.Total.IsNegative() {
		return fmt.Errorf("%w: total must be >= 0", ErrValidation)
	}

	for i := range req.Items {
		if req.Items[i].ProductID == uuid.Nil {
			return fmt.Errorf("%w: items[%d].product_id required", ErrValidation, i)
		}
		if req.Items[i].Quantity <= 0 {
			return fmt.Errorf("%w: items[%d].quantity must be > 0", ErrValidation, i)
		}
	}
	return nil
}

// CreateOrder writes the header, every line and every stock decrement in one
// transaction. Any failing line aborts the whole order.
func (s *OrderService) CreateOrder(ctx context.Context, req transport.CreateOrderRequest, caller *Caller) (*models.Order, error) {
	if err := validateOrder(&req); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(req.Items))
	seen := make(map[uuid.UUID]struct{}, len(req.Items))
	for _, it := range req.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}

	order := &models.Order{
		Status:          models.OrderStatusPending,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		CreatedAt:       s.now(),
	}
	if caller != nil {
		uid := caller.UserID
		order.UserID = &uid
	}

	err := s.Repo.WithTx(ctx, func(tx *repo.GormRepo) error {
		products, err := tx.GetProductsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*models.Product, len(products))
		for i := range products {
			byID[products[i].ID] = &products[i]
		}

		total := decimal.Zero
		for i, it := range req.Items {
			p, ok := byID[it.ProductID]
			if !ok || !p.Active {
				return fmt.Errorf("%w: items[%d].product_id %s", ErrInvalidReference, i, it.ProductID)
			}
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		if req.Total != nil && !req.Total.Equal(total) {
			return fmt.Errorf("%w: expected %s, got %s", ErrInvalidTotal, total.StringFixed(2), req.Total.StringFixed(2))
		}
		order.Total = total

		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}

		for i, it := range req.Items {
			p := byID[it.ProductID]
			item := &models.OrderItem{
				OrderID:   order.ID,
				ProductID: p.ID,
				Line:      i,
				Quantity:  it.Quantity,
				Price:     p.Price,
			}
			if err := tx.CreateOrderItem(ctx, item); err != nil {
				return err
			}

			if !p.IsPhysical() || p.Stock == nil {
				continue
			}
			ok, err := tx.DecrementStock(ctx, p.ID, it.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: product %s", ErrInsufficientStock, p.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created, err := s.Repo.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, OrderEvent{
		Type:      "order_created",
		OrderID:   created.ID,
		UserID:    created.UserID,
		Status:    created.Status,
		Total:     created.Total,
		Timestamp: s.now(),
	})
	return created, nil
}

// ListOrders returns every order to an admin and only their own orders to a user.
func (s *OrderService) ListOrders(ctx context.Context, caller *Caller) ([]models.Order, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	if caller.IsAdmin() {
		return s.Repo.ListOrders(ctx, nil)
	}
	uid := caller.UserID
	return s.Repo.ListOrders(ctx, &uid)
}

// GetOrder hides orders the caller may not see behind ErrNotFound. Guest
// orders are visible to whoever presents the customer email they were placed with.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID, caller *Caller, trackingEmail string) (*models.Order, error) {
	order, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	switch {
	case caller.IsAdmin():
		return order, nil
	case caller != nil && order.UserID != nil && *order.UserID == caller.UserID:
		return order, nil
	case order.UserID == nil && trackingEmail != "" &&
		strings.EqualFold(strings.TrimSpace(trackingEmail), order.CustomerEmail):
		return order, nil
	}
	return nil, ErrNotFound
}

var statusRank = map[models.OrderStatus]int{
	models.OrderStatusPending:   0,
	models.OrderStatusConfirmed: 1,
	models.OrderStatusShipped:   2,
	models.OrderStatusDelivered: 3,
}

func ParseOrderStatus(s string) (models.OrderStatus, error) {
	st := models.OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := statusRank[st]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return st, nil
}

// UpdateStatus advances an order one step along
// pending -> confirmed -> shipped -> delivered. Re-applying the current
// status is a no-op.
func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "order.update_status", "order_id", id)

	to, err := ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	order, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	from := order.Status
	if from == to {
		return order, nil
	}
	if statusRank[to] != statusRank[from]+1 {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	ok, err := s.Repo.UpdateOrderStatus(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		l.Warn("update_status_conflict", "from", from, "to", to)
		return nil, fmt.Errorf("%w: order changed concurrently", ErrInvalidTransition)
	}
	order.Status = to

	s.publish(ctx, OrderEvent{
		Type:      "order_status_changed",
		OrderID:   order.ID,
		UserID:    order.UserID,
		Status:    to,
		From:      from,
		Total:     order.Total,
		Timestamp: s.now(),
	})
	return order, nil
}

func (s *OrderService) publish(ctx context.Context, ev OrderEvent) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.PublishEvent(ctx, events.TopicOrders, ev.OrderID.String(), ev); err != nil {
		logging.FromContext(ctx).Warn("publish_order_event_error", "type", ev.Type, "order_id", ev.OrderID, "error", err)
	}
}
