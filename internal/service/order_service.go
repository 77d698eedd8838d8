package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"omega-store/internal/domain"
	"omega-store/internal/events"
	"omega-store/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService places orders and drives their status lifecycle, keeping
// product stock in step with it
type OrderService interface {
	Create(ctx context.Context, order *domain.Order) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, next domain.OrderStatus, trackingLink string) (*domain.Order, error)
	Get(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
}

type orderService struct {
	orders  repository.OrderRepository
	catalog CatalogService
	tx      repository.TxManager
	events  events.Publisher
	logger  *zap.Logger
	now     func() time.Time
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(
	orders repository.OrderRepository,
	catalog CatalogService,
	tx repository.TxManager,
	publisher events.Publisher,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		orders:  orders,
		catalog: catalog,
		tx:      tx,
		events:  publisher,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create stores the order and decrements stock for every item in a single
// transaction. Any failure leaves both the orders and the stock untouched.
func (s *orderService) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}

		for _, item := range order.Items {
			if _, err := s.catalog.AdjustStock(ctx, item.ID, item.Quantity); err != nil {
				return fmt.Errorf("failed to reserve stock for %s: %w", item.ID, err)
			}
		}

		publish(ctx, s.events, events.NewEvent(events.TopicOrders, events.ActionCreated, order.ID, order))
		return nil
	})
	if err != nil {
		s.logger.Warn("Order placement failed", zap.String("order_id", order.ID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.Int("items", order.Items.Quantity()),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

// UpdateStatus moves an order to next. Cancelling restores the stock of
// every snapshot item; cancelling twice changes nothing.
func (s *orderService) UpdateStatus(ctx context.Context, id string, next domain.OrderStatus, trackingLink string) (*domain.Order, error) {
	var updated *domain.Order

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if order.Status == domain.OrderStatusCancelled && next == domain.OrderStatusCancelled {
			updated = order
			return nil
		}

		if !order.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, next)
		}

		if next == domain.OrderStatusShipped {
			link := strings.TrimSpace(trackingLink)
			if link == "" {
				return ErrTrackingLinkRequired
			}
			order.TrackingLink = link
		}

		previous := order.Status
		order.Status = next
		order.UpdatedAt = s.now()

		if err := s.orders.UpdateStatus(ctx, order); err != nil {
			return err
		}

		if next == domain.OrderStatusCancelled {
			if err := s.restoreStock(ctx, order); err != nil {
				return err
			}
		}

		s.logger.Info("Order status changed",
			zap.String("order_id", order.ID),
			zap.String("from", string(previous)),
			zap.String("to", string(next)),
		)
		publish(ctx, s.events, events.NewEvent(events.TopicOrders, events.ActionStatusChanged, order.ID, order))
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// restoreStock gives back the snapshot quantities. Products deleted since the
// order was placed are skipped.
func (s *orderService) restoreStock(ctx context.Context, order *domain.Order) error {
	for _, item := range order.Items {
		_, err := s.catalog.AdjustStock(ctx, item.ID, -item.Quantity)
		if err == nil {
			continue
		}
		if errors.Is(err, repository.ErrProductNotFound) {
			s.logger.Warn("Skipping stock restore for deleted product",
				zap.String("order_id", order.ID),
				zap.String("product_id", item.ID),
				zap.Int("quantity", item.Quantity),
			)
			continue
		}
		return fmt.Errorf("failed to restore stock for %s: %w", item.ID, err)
	}
	return nil
}

func (s *orderService) Get(ctx context.Context, id string) (*domain.Order, error) {
	return s.orders.FindByID(ctx, id)
}

func (s *orderService) List(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	orders, err := s.orders.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *orderService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user orders: %w", err)
	}
	return orders, nil
}
