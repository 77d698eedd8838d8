package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"omega-store/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order with this id already exists")
)

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindByIDForUpdate(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, order *domain.Order) error
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, items, sub_total, tax, total, status, placed_at, user_id, shipping_address, tracking_link, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (*domain.Order, error) {
	order := &domain.Order{}
	var userID uuid.NullUUID
	err := row.Scan(
		&order.ID,
		&order.Items,
		&order.SubTotal,
		&order.Tax,
		&order.Total,
		&order.Status,
		&order.Date,
		&userID,
		&order.ShippingAddress,
		&order.TrackingLink,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		order.UserID = &userID.UUID
	}
	return order, nil
}

// Create inserts an order. The id is the payment intent id, so a second
// insert for the same payment fails with ErrOrderAlreadyExists.
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var userID uuid.NullUUID
	if order.UserID != nil {
		userID = uuid.NullUUID{UUID: *order.UserID, Valid: true}
	}

	_, err := conn(ctx, r.db).ExecContext(
		ctx,
		query,
		order.ID,
		order.Items,
		order.SubTotal,
		order.Tax,
		order.Total,
		order.Status,
		order.Date,
		userID,
		order.ShippingAddress,
		order.TrackingLink,
		order.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err, "orders_pkey") {
			return ErrOrderAlreadyExists
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// FindByID retrieves an order by ID
func (r *orderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// FindByIDForUpdate retrieves an order and locks its row until the
// surrounding transaction ends
func (r *orderRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *orderRepository) findOne(ctx context.Context, query string, id string) (*domain.Order, error) {
	order, err := scanOrder(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}
	return order, nil
}

// List retrieves orders newest first. An empty status returns every order.
func (r *orderRepository) List(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	if status == "" {
		return r.query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY placed_at DESC`)
	}
	return r.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY placed_at DESC`, status)
}

// ListByUser retrieves the orders of one user newest first
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	return r.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY placed_at DESC`, userID)
}

func (r *orderRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

// UpdateStatus writes the status, tracking link and update time of an order
func (r *orderRepository) UpdateStatus(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET status = $2, tracking_link = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, order.ID, order.Status, order.TrackingLink, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}
