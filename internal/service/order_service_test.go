package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"omega-store/internal/domain"
	"omega-store/internal/events"
	"omega-store/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeOrder(t *testing.T, f *storefront, id string, userID *uuid.UUID, lines map[string]int) *domain.Order {
	t.Helper()
	ctx := context.Background()

	var items []domain.CartItem
	for productID, qty := range lines {
		p, err := f.catalog.Get(ctx, productID)
		require.NoError(t, err)
		items = append(items, domain.NewCartItem(p, qty))
	}

	order, err := f.orders.Create(ctx, domain.NewOrder(id, items, userID, domain.Address{FirstName: "Ana"}, time.Now().UTC()))
	require.NoError(t, err)
	return order
}

func TestCreateOrderDecrementsStock(t *testing.T) {
	f := newStorefront(t)
	f.seed(t)

	order := placeOrder(t, f, "pi_1", nil, map[string]int{"prod_hazer_co2": 3, "prod_cable_dmx": 10})

	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
	assert.Equal(t, 22, f.stock(t, "prod_hazer_co2"))
	assert.Equal(t, 190, f.stock(t, "prod_cable_dmx"))
	assert.Contains(t, f.publisher.actions(events.TopicOrders), events.ActionCreated)
}

func TestCreateOrderRollsBackOnInsufficientStock(t *testing.T) {
	f := newStorefront(t)
	f.seed(t)
	ctx := context.Background()

	hazer, err := f.catalog.Get(ctx, "prod_hazer_co2")
	require.NoError(t, err)
	light, err := f.catalog.Get(ctx, "prod_presta_light")
	require.NoError(t, err)

	items := []domain.CartItem{domain.NewCartItem(hazer, 2), domain.NewCartItem(light, 11)}
	_, err = f.orders.Create(ctx, domain.NewOrder("pi_short", items, nil, domain.Address{}, time.Now()))
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)

	assert.Equal(t, 25, f.stock(t, "prod_hazer_co2"))
	assert.Equal(t, 10, f.stock(t, "prod_presta_light"))
	_, err = f.orders.Get(ctx, "pi_short")
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
	assert.NotContains(t, f.publisher.actions(events.TopicOrders), events.ActionCreated)
}

func TestCreateOrderRollsBackOnStorageFailure(t *testing.T) {
	f := newStorefront(t)
	f.seed(t)
	f.store.failStockFor = "prod_cable_dmx"
	ctx := context.Background()

	hazer, err := f.catalog.Get(ctx, "prod_hazer_co2")
	require.NoError(t, err)
	cable, err := f.catalog.Get(ctx, "prod_cable_dmx")
	require.NoError(t, err)

	items := []domain.CartItem{domain.NewCartItem(hazer, 1), domain.NewCartItem(cable, 1)}
	_, err = f.orders.Create(ctx, domain.NewOrder("pi_fail", items, nil, domain.Address{}, time.Now()))
	require.Error(t, err)

	assert.Equal(t, 25, f.stock(t, "prod_hazer_co2"))
	_, err = f.orders.Get(ctx, "pi_fail")
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestCreateOrderRejectsInvalidOrders(t *testing.T) {
	f := newStorefront(t)
	f.seed(t)

	_, err := f.orders.Create(context.Background(), domain.NewOrder("pi_empty", nil, nil, domain.Address{}, time.Now()))
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestOrderLifecycle(t *testing.T) {
	f := newStorefront(t)
	f.seed(t)
	ctx := context.Background()

	placeOrder(t, f, "pi_life", nil, map[string]int{"prod_hazer_co2": 3})

	_, err := f.orders.UpdateStatus(ctx, "pi_life", domain.OrderStatusShipped, "https://t/123")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	order, err := f.orders.UpdateStatus(ctx, "pi_life", domain.OrderStatusProcessing, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, order.Status)

	_, err = f.orders.UpdateStatus(ctx, "pi_life", domain.OrderStatusShipped, "   ")
	assert.ErrorIs(t, err, ErrTrackingLinkRequired)

	order, err = f.orders.UpdateStatus(ctx, "pi_life", domain.OrderStatusShipped, "https://t/123")
	require.NoError(t, err)
	assert.Equal(t, "https://t/123", order.TrackingLink)

	order, err = f.orders.UpdateStatus(ctx, "pi_life", domain.OrderStatusDelivered, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, order.Status)
	assert.Equal(t, "https://t/123", order.TrackingLink)

	_, err = f.orders.UpdateStatus(ctx, "pi_life", domain.OrderStatusCancelled, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 22, f.stock(t, "prod_hazer_co2"))
}

func TestCancelRestoresStockOnce(t *testing.T) {
	f := newStorefront(t)
	f.seed(t)
	ctx := context.Background()

	placeOrder(t, f, "pi_cancel", nil, map[string]int{"prod_hazer_co2": 3})
	_, err := f.orders.UpdateStatus(ctx, "pi_cancel", domain.OrderStatusProcessing, "")
	require.NoError(t, err)
	assert.Equal(t, 22, f.stock(t, "prod_hazer_co2"))

	order, err := f.orders.UpdateStatus(ctx, "pi_cancel", domain.OrderStatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)
	assert.Equal(t, 25, f.stock(t, "prod_hazer_co2"))

	order, err = f.orders.UpdateStatus(ctx, "pi_cancel", domain.OrderStatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)
	assert.Equal(t, 25, f.stock(t, "prod_hazer_co2"))

	_, err = f.orders.UpdateStatus(ctx, "pi_cancel", domain.OrderStatusProcessing, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelSkipsDeletedProducts(t *testing.T) {
	f := newStorefront(t)
	f.seed(t)
	ctx := context.Background()

	placeOrder(t, f, "pi_deleted", nil, map[string]int{"prod_hazer_co2": 1, "prod_mousse_canon": 2})
	require.NoError(t, f.catalog.Delete(ctx, "prod_mousse_canon"))

	order, err := f.orders.UpdateStatus(ctx, "pi_deleted", domain.OrderStatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)
	assert.Equal(t, 25, f.stock(t, "prod_hazer_co2"))
	assert.Len(t, order.Items, 2)
}

func TestCancelRestoresSnapshotQuantitiesAfterCatalogEdits(t *testing.T) {
	f := newStorefront(t)
	f.seed(t)
	ctx := context.Background()

	before, err := f.catalog.Get(ctx, "prod_hazer_co2")
	require.NoError(t, err)
	placeOrder(t, f, "pi_edited", nil, map[string]int{"prod_hazer_co2": 3})

	edited := *before
	edited.Name = "Hazer CO2 MkII"
	edited.Price = before.Price.Add(decimal.NewFromInt(500))
	edited.OriginalPrice = decimal.NullDecimal{}
	edited.StockQuantity = 40
	_, err = f.catalog.Update(ctx, &edited)
	require.NoError(t, err)

	order, err := f.orders.UpdateStatus(ctx, "pi_edited", domain.OrderStatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, 43, f.stock(t, "prod_hazer_co2"))

	require.Len(t, order.Items, 1)
	assert.Equal(t, before.Name, order.Items[0].Name)
	assert.True(t, order.Items[0].Price.Equal(before.Price))
	assert.Equal(t, 3, order.Items[0].Quantity)
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	f := newStorefront(t)

	_, err := f.orders.UpdateStatus(context.Background(), "pi_nope", domain.OrderStatusProcessing, "")
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	f := newStorefront(t)
	f.seed(t)
	ctx := context.Background()

	light, err := f.catalog.Get(ctx, "prod_presta_light")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	placed := 0
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order := domain.NewOrder(uuid.NewString(), []domain.CartItem{domain.NewCartItem(light, 1)}, nil, domain.Address{}, time.Now())
			if _, err := f.orders.Create(ctx, order); err == nil {
				mu.Lock()
				placed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, placed)
	assert.Equal(t, 0, f.stock(t, "prod_presta_light"))
}

func TestListOrders(t *testing.T) {
	f := newStorefront(t)
	f.seed(t)
	ctx := context.Background()

	user := uuid.New()
	placeOrder(t, f, "pi_a", &user, map[string]int{"prod_cable_dmx": 1})
	placeOrder(t, f, "pi_b", nil, map[string]int{"prod_cable_dmx": 1})
	_, err := f.orders.UpdateStatus(ctx, "pi_b", domain.OrderStatusCancelled, "")
	require.NoError(t, err)

	all, err := f.orders.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	cancelled, err := f.orders.List(ctx, domain.OrderStatusCancelled)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "pi_b", cancelled[0].ID)

	mine, err := f.orders.ListForUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "pi_a", mine[0].ID)
}
