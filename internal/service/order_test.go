package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/therapy_shop/internal/models"
	"github.com/Skotchmaster/therapy_shop/internal/repo"
	"github.com/Skotchmaster/therapy_shop/internal/testutil"
	"github.com/Skotchmaster/therapy_shop/internal/transport"
	"github.com/Skotchmaster/therapy_shop/pkg/events"
)

func newOrderService(t *testing.T) (*OrderService, *gorm.DB, *testutil.Recorder) {
	t.Helper()
	db := testutil.NewDB(t)
	rec := &testutil.Recorder{}
	return &OrderService{Repo: &repo.GormRepo{DB: db}, Publisher: rec}, db, rec
}

func orderReq(items ...transport.CreateOrderItem) transport.CreateOrderRequest {
	return transport.CreateOrderRequest{
		CustomerName:    "Ada Parent",
		CustomerEmail:   "ada@example.com",
		CustomerPhone:   "+1 555 0100",
		ShippingAddress: "1 Main St",
		Items:           items,
	}
}

func line(p *models.Product, qty int) transport.CreateOrderItem {
	return transport.CreateOrderItem{ProductID: p.ID, Quantity: qty}
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	svc, db, rec := newOrderService(t)

	user := testutil.CreateUser(t, db, "u@example.com", "password1", models.RoleUser)
	blocks := testutil.CreatePhysical(t, db, "Sensory blocks", "12.50", 10)
	cards := testutil.CreatePhysical(t, db, "Emotion cards", "4.25", 3)
	sheet := testutil.CreateDigital(t, db, "Worksheet pack", "3.00")

	order, err := svc.CreateOrder(ctx, orderReq(line(blocks, 2), line(cards, 3), line(sheet, 5)), &Caller{UserID: user.ID, Role: models.RoleUser})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, decimal.RequireFromString("52.75").Equal(order.Total), order.Total.String())
	require.NotNil(t, order.UserID)
	assert.Equal(t, user.ID, *order.UserID)

	require.Len(t, order.Items, 3)
	assert.Equal(t, blocks.ID, order.Items[0].ProductID)
	assert.Equal(t, cards.ID, order.Items[1].ProductID)
	assert.Equal(t, sheet.ID, order.Items[2].ProductID)
	for _, it := range order.Items {
		require.NotNil(t, it.Product)
		assert.Equal(t, it.ProductID, it.Product.ID)
	}

	assert.Equal(t, 8, *testutil.Stock(t, db, blocks))
	assert.Equal(t, 0, *testutil.Stock(t, db, cards))
	assert.Nil(t, testutil.Stock(t, db, sheet))

	assert.Equal(t, []string{events.TopicOrders}, rec.Topics())
	ev := rec.Events[0].Body.(OrderEvent)
	assert.Equal(t, "order_created", ev.Type)
	assert.Equal(t, order.ID, ev.OrderID)
}

func TestCreateOrderGuest(t *testing.T) {
	svc, db, _ := newOrderService(t)
	p := testutil.CreatePhysical(t, db, "Puzzle", "9.99", 1)

	order, err := svc.CreateOrder(context.Background(), orderReq(line(p, 1)), nil)
	require.NoError(t, err)
	assert.Nil(t, order.UserID)
}

func TestCreateOrderValidation(t *testing.T) {
	svc, db, _ := newOrderService(t)
	p := testutil.CreatePhysical(t, db, "Puzzle", "9.99", 5)

	tests := []struct {
		name   string
		mutate func(r *transport.CreateOrderRequest)
	}{
		{"no items", func(r *transport.CreateOrderRequest) { r.Items = nil }},
		{"zero quantity", func(r *transport.CreateOrderRequest) { r.Items[0].Quantity = 0 }},
		{"nil product", func(r *transport.CreateOrderRequest) { r.Items[0].ProductID = uuid.Nil }},
		{"no name", func(r *transport.CreateOrderRequest) { r.CustomerName = "  " }},
		{"bad email", func(r *transport.CreateOrderRequest) { r.CustomerEmail = "nope" }},
		{"no address", func(r *transport.CreateOrderRequest) { r.ShippingAddress = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := orderReq(line(p, 1))
			tt.mutate(&req)
			_, err := svc.CreateOrder(context.Background(), req, nil)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Zero(t, count(t, db, &models.Order{}))
}

func TestCreateOrderUnknownProductIsAtomic(t *testing.T) {
	svc, db, rec := newOrderService(t)
	p := testutil.CreatePhysical(t, db, "Puzzle", "9.99", 5)

	_, err := svc.CreateOrder(context.Background(), orderReq(line(p, 2), transport.CreateOrderItem{ProductID: uuid.New(), Quantity: 1}), nil)
	require.ErrorIs(t, err, ErrInvalidReference)

	assert.Zero(t, count(t, db, &models.Order{}))
	assert.Zero(t, count(t, db, &models.OrderItem{}))
	assert.Equal(t, 5, *testutil.Stock(t, db, p))
	assert.Empty(t, rec.Events)
}

func TestCreateOrderInactiveProduct(t *testing.T) {
	svc, db, _ := newOrderService(t)
	p := testutil.CreatePhysical(t, db, "Retired", "1.00", 5)
	require.NoError(t, db.Model(p).Update("active", false).Error)

	_, err := svc.CreateOrder(context.Background(), orderReq(line(p, 1)), nil)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestCreateOrderInsufficientStockIsAtomic(t *testing.T) {
	svc, db, _ := newOrderService(t)
	plenty := testutil.CreatePhysical(t, db, "Plenty", "2.00", 50)
	scarce := testutil.CreatePhysical(t, db, "Scarce", "3.00", 1)

	_, err := svc.CreateOrder(context.Background(), orderReq(line(plenty, 4), line(scarce, 2)), nil)
	require.ErrorIs(t, err, ErrInsufficientStock)

	assert.Zero(t, count(t, db, &models.Order{}))
	assert.Zero(t, count(t, db, &models.OrderItem{}))
	assert.Equal(t, 50, *testutil.Stock(t, db, plenty))
	assert.Equal(t, 1, *testutil.Stock(t, db, scarce))
}

func TestCreateOrderRepeatedLineCountsTowardsStock(t *testing.T) {
	svc, db, _ := newOrderService(t)
	p := testutil.CreatePhysical(t, db, "Blocks", "1.00", 3)

	_, err := svc.CreateOrder(context.Background(), orderReq(line(p, 2), line(p, 2)), nil)
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 3, *testutil.Stock(t, db, p))
}

func TestCreateOrderTotalCheck(t *testing.T) {
	svc, db, _ := newOrderService(t)
	p := testutil.CreatePhysical(t, db, "Blocks", "12.50", 10)

	req := orderReq(line(p, 2))
	wrong := decimal.RequireFromString("20.00")
	req.Total = &wrong
	_, err := svc.CreateOrder(context.Background(), req, nil)
	require.ErrorIs(t, err, ErrInvalidTotal)
	assert.Equal(t, 10, *testutil.Stock(t, db, p))

	right := decimal.RequireFromString("25")
	req.Total = &right
	order, err := svc.CreateOrder(context.Background(), req, nil)
	require.NoError(t, err)
	assert.True(t, right.Equal(order.Total))
}

func TestOrderItemPriceIsFrozen(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newOrderService(t)
	p := testutil.CreatePhysical(t, db, "Blocks", "12.50", 10)

	order, err := svc.CreateOrder(ctx, orderReq(line(p, 1)), nil)
	require.NoError(t, err)

	require.NoError(t, db.Model(p).Update("price", decimal.RequireFromString("99.00")).Error)

	again, err := svc.GetOrder(ctx, order.ID, &Caller{Role: models.RoleAdmin}, "")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.50").Equal(again.Items[0].Price))
	assert.True(t, decimal.RequireFromString("12.50").Equal(again.Total))
	assert.True(t, decimal.RequireFromString("99.00").Equal(again.Items[0].Product.Price))
}

func TestConcurrentOrdersForLastUnit(t *testing.T) {
	svc, db, _ := newOrderService(t)
	p := testutil.CreatePhysical(t, db, "Last one", "5.00", 1)

	const buyers = 2
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := range buyers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateOrder(context.Background(), orderReq(line(p, 1)), nil)
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 0, *testutil.Stock(t, db, p))
	assert.Equal(t, int64(1), count(t, db, &models.Order{}))
}

func TestListOrders(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newOrderService(t)
	p := testutil.CreateDigital(t, db, "Sheet", "1.00")
	alice := testutil.CreateUser(t, db, "alice@example.com", "password1", models.RoleUser)
	bob := testutil.CreateUser(t, db, "bob@example.com", "password1", models.RoleUser)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	svc.Now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	aliceCaller := &Caller{UserID: alice.ID, Role: models.RoleUser}
	first, err := svc.CreateOrder(ctx, orderReq(line(p, 1)), aliceCaller)
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, orderReq(line(p, 1)), &Caller{UserID: bob.ID, Role: models.RoleUser})
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, orderReq(line(p, 2)), aliceCaller)
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, orderReq(line(p, 1)), nil)
	require.NoError(t, err)

	mine, err := svc.ListOrders(ctx, aliceCaller)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)
	require.Len(t, mine[0].Items, 1)
	assert.NotNil(t, mine[0].Items[0].Product)

	all, err := svc.ListOrders(ctx, &Caller{UserID: uuid.New(), Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt))
	}

	_, err = svc.ListOrders(ctx, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestGetOrderVisibility(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newOrderService(t)
	p := testutil.CreateDigital(t, db, "Sheet", "1.00")
	owner := testutil.CreateUser(t, db, "owner@example.com", "password1", models.RoleUser)
	other := testutil.CreateUser(t, db, "other@example.com", "password1", models.RoleUser)

	owned, err := svc.CreateOrder(ctx, orderReq(line(p, 1)), &Caller{UserID: owner.ID, Role: models.RoleUser})
	require.NoError(t, err)
	guest, err := svc.CreateOrder(ctx, orderReq(line(p, 1)), nil)
	require.NoError(t, err)

	_, err = svc.GetOrder(ctx, uuid.New(), &Caller{Role: models.RoleAdmin}, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetOrder(ctx, owned.ID, &Caller{UserID: owner.ID, Role: models.RoleUser}, "")
	assert.NoError(t, err)
	_, err = svc.GetOrder(ctx, owned.ID, &Caller{UserID: other.ID, Role: models.RoleUser}, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetOrder(ctx, owned.ID, nil, "ada@example.com")
	assert.ErrorIs(t, err, ErrNotFound, "owned orders are not tracked by email")
	_, err = svc.GetOrder(ctx, owned.ID, &Caller{UserID: uuid.New(), Role: models.RoleAdmin}, "")
	assert.NoError(t, err)

	_, err = svc.GetOrder(ctx, guest.ID, nil, "ADA@example.com ")
	assert.NoError(t, err)
	_, err = svc.GetOrder(ctx, guest.ID, nil, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetOrder(ctx, guest.ID, nil, "someone@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	svc, db, rec := newOrderService(t)
	p := testutil.CreateDigital(t, db, "Sheet", "1.00")

	order, err := svc.CreateOrder(ctx, orderReq(line(p, 1)), nil)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, order.ID, "lost")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdateStatus(ctx, order.ID, "shipped")
	assert.ErrorIs(t, err, ErrInvalidTransition, "skipping confirmed")

	got, err := svc.UpdateStatus(ctx, order.ID, "pending")
	require.NoError(t, err, "same status is a no-op")
	assert.Equal(t, models.OrderStatusPending, got.Status)

	for _, st := range []string{"confirmed", "shipped", "Delivered"} {
		got, err = svc.UpdateStatus(ctx, order.ID, st)
		require.NoError(t, err, st)
	}
	assert.Equal(t, models.OrderStatusDelivered, got.Status)

	_, err = svc.UpdateStatus(ctx, order.ID, "pending")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.UpdateStatus(ctx, uuid.New(), "confirmed")
	assert.ErrorIs(t, err, ErrNotFound)

	var changes int
	for _, e := range rec.Events {
		if e.Body.(OrderEvent).Type == "order_status_changed" {
			changes++
		}
	}
	assert.Equal(t, 3, changes)
}

func TestPublishFailureDoesNotFailOrder(t *testing.T) {
	svc, db, rec := newOrderService(t)
	rec.Err = errors.New("broker down")
	p := testutil.CreateDigital(t, db, "Sheet", "1.00")

	_, err := svc.CreateOrder(context.Background(), orderReq(line(p, 1)), nil)
	assert.NoError(t, err)
}
