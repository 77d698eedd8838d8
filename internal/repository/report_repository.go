package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"omega-store/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// DashboardCounts aggregates the headline numbers of the back-office
type DashboardCounts struct {
	Products int             `db:"products"`
	Orders   int             `db:"orders"`
	Users    int             `db:"users"`
	Revenue  decimal.Decimal `db:"revenue"`
}

// ReportRepository runs read-only reporting queries
type ReportRepository interface {
	OrdersBetween(ctx context.Context, from, until *time.Time) ([]*domain.Order, error)
	RecentOrders(ctx context.Context, limit int) ([]*domain.Order, error)
	Dashboard(ctx context.Context) (*DashboardCounts, error)
}

type reportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new instance of ReportRepository
func NewReportRepository(db *sqlx.DB) ReportRepository {
	return &reportRepository{db: db}
}

// OrdersBetween returns orders placed in [from, until) oldest first. A nil
// bound leaves that side of the range open.
func (r *reportRepository) OrdersBetween(ctx context.Context, from, until *time.Time) ([]*domain.Order, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if from != nil {
		conditions = append(conditions, "placed_at >= :from")
		args["from"] = *from
	}
	if until != nil {
		conditions = append(conditions, "placed_at < :until")
		args["until"] = *until
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := "SELECT " + orderColumns + " FROM orders" + whereClause + " ORDER BY placed_at ASC"

	nstmt, err := r.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare report query: %w", err)
	}
	defer nstmt.Close()

	orders := []*domain.Order{}
	if err := nstmt.SelectContext(ctx, &orders, args); err != nil {
		return nil, fmt.Errorf("failed to select orders for report: %w", err)
	}

	return orders, nil
}

// RecentOrders returns the latest orders newest first
func (r *reportRepository) RecentOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	orders := []*domain.Order{}
	query := "SELECT " + orderColumns + " FROM orders ORDER BY placed_at DESC LIMIT $1"
	if err := r.db.SelectContext(ctx, &orders, query, limit); err != nil {
		return nil, fmt.Errorf("failed to select recent orders: %w", err)
	}
	return orders, nil
}

// Dashboard counts products, orders and users and sums the revenue of
// every order ever placed
func (r *reportRepository) Dashboard(ctx context.Context) (*DashboardCounts, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM products) AS products,
			(SELECT COUNT(*) FROM orders) AS orders,
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COALESCE(SUM(total), 0) FROM orders) AS revenue
	`

	counts := &DashboardCounts{}
	if err := r.db.GetContext(ctx, counts, query); err != nil {
		return nil, fmt.Errorf("failed to load dashboard counts: %w", err)
	}
	return counts, nil
}
