package service

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"omega-store/internal/domain"
	"omega-store/internal/events"
	"omega-store/internal/payment"
	"omega-store/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// memStore backs the in-memory repositories. fakeTx snapshots it so a failed
// transaction leaves no trace.
type memStore struct {
	mu         sync.Mutex
	products   map[string]domain.Product
	categories []string
	orders     map[string]domain.Order

	// failStockFor makes AdjustStock fail for the given product id
	failStockFor string
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
	}
}

type memSnapshot struct {
	products   map[string]domain.Product
	categories []string
	orders     map[string]domain.Order
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memSnapshot{
		products:   make(map[string]domain.Product, len(m.products)),
		categories: append([]string(nil), m.categories...),
		orders:     make(map[string]domain.Order, len(m.orders)),
	}
	for k, v := range m.products {
		s.products[k] = v
	}
	for k, v := range m.orders {
		s.orders[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = s.products
	m.categories = s.categories
	m.orders = s.orders
}

type fakeTxKey struct{}

// fakeTx serializes top-level transactions, which stands in for the row
// locks a real database takes
type fakeTx struct {
	mu    sync.Mutex
	store *memStore
}

func (t *fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.store.snapshot()
	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

type memProducts struct{ s *memStore }

func (r memProducts) Create(ctx context.Context, p *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[p.ID]; ok {
		return repository.ErrProductAlreadyExists
	}
	r.s.products[p.ID] = *p
	return nil
}

func (r memProducts) Update(ctx context.Context, p *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[p.ID]; !ok {
		return repository.ErrProductNotFound
	}
	r.s.products[p.ID] = *p
	return nil
}

func (r memProducts) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(r.s.products, id)
	return nil
}

func (r memProducts) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	p.RefreshStockFlag()
	return &p, nil
}

func (r memProducts) List(ctx context.Context, filter repository.ProductFilter) ([]*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Product
	for _, p := range r.s.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			continue
		}
		p.RefreshStockFlag()
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r memProducts) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id == r.s.failStockFor {
		return nil, errors.New("stock backend unavailable")
	}
	p, ok := r.s.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	if p.StockQuantity-delta < 0 {
		return nil, repository.ErrInsufficientStock
	}
	p.StockQuantity -= delta
	r.s.products[id] = p
	p.RefreshStockFlag()
	return &p, nil
}

func (r memProducts) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.products), nil
}

type memCategories struct{ s *memStore }

func (r memCategories) List(ctx context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]string{}, r.s.categories...), nil
}

func (r memCategories) ReplaceAll(ctx context.Context, names []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.categories = append([]string{}, names...)
	return nil
}

func (r memCategories) Exists(ctx context.Context, name string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.categories {
		if c == name {
			return true, nil
		}
	}
	return false, nil
}

type memOrders struct{ s *memStore }

func (r memOrders) Create(ctx context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[o.ID]; ok {
		return repository.ErrOrderAlreadyExists
	}
	r.s.orders[o.ID] = *o
	return nil
}

func (r memOrders) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return &o, nil
}

func (r memOrders) FindByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r memOrders) List(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.s.orders {
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (r memOrders) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	all, _ := r.List(ctx, "")
	var out []*domain.Order
	for _, o := range all {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r memOrders) UpdateStatus(ctx context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[o.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	r.s.orders[o.ID] = *o
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) actions(topic events.Topic) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.Topic == topic {
			out = append(out, e.Action)
		}
	}
	return out
}

type fakeProcessor struct {
	mu         sync.Mutex
	configured bool
	intents    map[string]*payment.Intent
	createErr  error
	getErr     error
	refundErr  error
	created    int
	refunds    []string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{configured: true, intents: make(map[string]*payment.Intent)}
}

func (p *fakeProcessor) Configured() bool { return p.configured }

func (p *fakeProcessor) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created++
	id := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	intent := &payment.Intent{
		ID:           id,
		ClientSecret: id + "_secret_x",
		Amount:       amount,
		Currency:     currency,
		Status:       payment.StatusRequiresPaymentMethod,
		Metadata:     metadata,
	}
	p.intents[id] = intent
	copied := *intent
	return &copied, nil
}

func (p *fakeProcessor) GetIntent(ctx context.Context, id string) (*payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	intent, ok := p.intents[id]
	if !ok {
		return nil, payment.ErrIntentNotFound
	}
	copied := *intent
	return &copied, nil
}

func (p *fakeProcessor) Refund(ctx context.Context, intentID string) (*payment.Refund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refundErr != nil {
		return nil, p.refundErr
	}
	intent, ok := p.intents[intentID]
	if !ok {
		return nil, payment.ErrIntentNotFound
	}
	if !slices.Contains(p.refunds, intentID) {
		p.refunds = append(p.refunds, intentID)
	}
	return &payment.Refund{ID: "re_" + intentID, IntentID: intentID, Amount: intent.Amount, Status: "succeeded"}, nil
}

func (p *fakeProcessor) refunded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.refunds...)
}

func (p *fakeProcessor) setStatus(id string, status payment.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents[id].Status = status
}

// storefront wires the services over in-memory repositories and a
// miniredis backed cart store
type storefront struct {
	store     *memStore
	redis     *miniredis.Miniredis
	carts     repository.CartStore
	publisher *recordingPublisher
	processor *fakeProcessor

	catalog  CatalogService
	cart     CartService
	orders   OrderService
	checkout CheckoutService
}

func newStorefront(t *testing.T) *storefront {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	store := newMemStore()
	tx := &fakeTx{store: store}
	publisher := &recordingPublisher{}
	processor := newFakeProcessor()
	cartStore := repository.NewCartStore(client, time.Hour, logger)

	catalog := NewCatalogService(memProducts{store}, memCategories{store}, tx, publisher, logger)
	cart := NewCartService(cartStore, memProducts{store}, publisher, logger)
	orders := NewOrderService(memOrders{store}, catalog, tx, publisher, logger)
	checkout := NewCheckoutService(cartStore, cart, orders, processor, CheckoutConfig{Currency: "eur"}, logger)

	return &storefront{
		store:     store,
		redis:     mr,
		carts:     cartStore,
		publisher: publisher,
		processor: processor,
		catalog:   catalog,
		cart:      cart,
		orders:    orders,
		checkout:  checkout,
	}
}

// seed loads the default categories and products
func (f *storefront) seed(t *testing.T) {
	t.Helper()
	seeded, err := f.catalog.SeedDefaults(context.Background())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !seeded {
		t.Fatalf("seed: expected an empty store")
	}
}

func (f *storefront) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.catalog.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return p.StockQuantity
}
