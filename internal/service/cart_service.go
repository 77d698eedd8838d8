package service

import (
	"context"
	"fmt"

	"omega-store/internal/domain"
	"omega-store/internal/events"
	"omega-store/internal/repository"

	"go.uber.org/zap"
)

// CartService manages the cart of one shopper session
type CartService interface {
	Get(ctx context.Context, cartID string) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID, productID string, quantity int) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, cartID, productID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, cartID, productID string) (*domain.Cart, error)
	Clear(ctx context.Context, cartID string) error
}

type cartService struct {
	store    repository.CartStore
	products repository.ProductRepository
	events   events.Publisher
	logger   *zap.Logger
}

// NewCartService creates a new instance of CartService
func NewCartService(
	store repository.CartStore,
	products repository.ProductRepository,
	publisher events.Publisher,
	logger *zap.Logger,
) CartService {
	return &cartService{
		store:    store,
		products: products,
		events:   publisher,
		logger:   logger,
	}
}

func (s *cartService) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	cart, err := s.store.Load(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return cart, nil
}

// AddItem snapshots the current product and adds quantity units of it.
// Stock is not checked here; it is enforced when the order is placed.
func (s *cartService) AddItem(ctx context.Context, cartID, productID string, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	item := domain.NewCartItem(product, quantity)

	cart, err := s.store.Update(ctx, cartID, func(cart *domain.Cart) error {
		cart.Add(item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add item to cart: %w", err)
	}

	s.changed(ctx, cart, events.ActionUpdated)
	return cart, nil
}

// UpdateQuantity sets the quantity of a line; below 1 the line is removed
func (s *cartService) UpdateQuantity(ctx context.Context, cartID, productID string, quantity int) (*domain.Cart, error) {
	cart, err := s.store.Update(ctx, cartID, func(cart *domain.Cart) error {
		cart.SetQuantity(productID, quantity)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update cart quantity: %w", err)
	}

	s.changed(ctx, cart, events.ActionUpdated)
	return cart, nil
}

func (s *cartService) RemoveItem(ctx context.Context, cartID, productID string) (*domain.Cart, error) {
	cart, err := s.store.Update(ctx, cartID, func(cart *domain.Cart) error {
		cart.Remove(productID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remove cart item: %w", err)
	}

	s.changed(ctx, cart, events.ActionUpdated)
	return cart, nil
}

func (s *cartService) Clear(ctx context.Context, cartID string) error {
	if err := s.store.Delete(ctx, cartID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	s.changed(ctx, &domain.Cart{ID: cartID, Items: []domain.CartItem{}}, events.ActionCleared)
	return nil
}

func (s *cartService) changed(ctx context.Context, cart *domain.Cart, action string) {
	s.events.Publish(ctx, events.NewEvent(events.TopicCart, action, cart.ID, map[string]any{
		"totalItems": cart.TotalItems(),
		"totalPrice": cart.TotalPrice(),
	}))
}
