package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"omega-store/internal/domain"
	"omega-store/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const recentOrdersOnDashboard = 5

// CSVHeader is the first row of a sales export
var CSVHeader = []string{"order_id", "date", "total", "status", "customer", "address", "city", "postal_code", "products"}

// DateRange selects orders by calendar day. Both bounds are inclusive and
// either may be nil.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// bounds converts the range to a half-open [from, until) interval
func (r DateRange) bounds() (from, until *time.Time, err error) {
	if r.From != nil && r.To != nil && r.From.After(*r.To) {
		return nil, nil, ErrInvalidDateRange
	}
	if r.From != nil {
		f := startOfDay(*r.From)
		from = &f
	}
	if r.To != nil {
		u := startOfDay(*r.To).AddDate(0, 0, 1)
		until = &u
	}
	return from, until, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SalesSummary aggregates the orders of a date range
type SalesSummary struct {
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	TotalOrders       int             `json:"totalOrders"`
	TotalProductsSold int             `json:"totalProductsSold"`
	Orders            []*domain.Order `json:"orders"`
}

// Dashboard holds the back-office headline numbers
type Dashboard struct {
	TotalProducts int             `json:"totalProducts"`
	TotalOrders   int             `json:"totalOrders"`
	TotalUsers    int             `json:"totalUsers"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	RecentOrders  []*domain.Order `json:"recentOrders"`
}

// ReportService builds sales reports for administrators
type ReportService interface {
	Summary(ctx context.Context, period DateRange) (*SalesSummary, error)
	WriteCSV(ctx context.Context, w io.Writer, period DateRange) error
	Dashboard(ctx context.Context) (*Dashboard, error)
}

type reportService struct {
	reports repository.ReportRepository
	logger  *zap.Logger
}

// NewReportService creates a new instance of ReportService
func NewReportService(reports repository.ReportRepository, logger *zap.Logger) ReportService {
	return &reportService{reports: reports, logger: logger}
}

func (s *reportService) orders(ctx context.Context, period DateRange) ([]*domain.Order, error) {
	from, until, err := period.bounds()
	if err != nil {
		return nil, err
	}
	orders, err := s.reports.OrdersBetween(ctx, from, until)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders for report: %w", err)
	}
	return orders, nil
}

// Summary sums revenue and units over every order in the range
func (s *reportService) Summary(ctx context.Context, period DateRange) (*SalesSummary, error) {
	orders, err := s.orders(ctx, period)
	if err != nil {
		return nil, err
	}
	return summarize(orders), nil
}

func summarize(orders []*domain.Order) *SalesSummary {
	summary := &SalesSummary{TotalRevenue: decimal.Zero, Orders: orders}
	for _, o := range orders {
		summary.TotalRevenue = summary.TotalRevenue.Add(o.Total)
		summary.TotalProductsSold += o.Items.Quantity()
	}
	summary.TotalOrders = len(orders)
	return summary
}

// WriteCSV streams the orders of the range as CSV
func (s *reportService) WriteCSV(ctx context.Context, w io.Writer, period DateRange) error {
	orders, err := s.orders(ctx, period)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, o := range orders {
		if err := cw.Write(csvRow(o)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	s.logger.Info("Sales report exported", zap.Int("orders", len(orders)))
	return nil
}

func csvRow(o *domain.Order) []string {
	products := make([]string, len(o.Items))
	for i, item := range o.Items {
		products[i] = fmt.Sprintf("%s (x%d)", item.Name, item.Quantity)
	}

	addr := o.ShippingAddress
	return []string{
		o.ID,
		o.Date.Format("02/01/2006"),
		o.Total.StringFixed(2),
		string(o.Status),
		addr.FullName(),
		addr.Address,
		addr.City,
		addr.PostalCode,
		strings.Join(products, "; "),
	}
}

// Dashboard counts the catalog, orders and users and lists the latest orders
func (s *reportService) Dashboard(ctx context.Context) (*Dashboard, error) {
	counts, err := s.reports.Dashboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard: %w", err)
	}

	recent, err := s.reports.RecentOrders(ctx, recentOrdersOnDashboard)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent orders: %w", err)
	}

	return &Dashboard{
		TotalProducts: counts.Products,
		TotalOrders:   counts.Orders,
		TotalUsers:    counts.Users,
		TotalRevenue:  counts.Revenue,
		RecentOrders:  recent,
	}, nil
}
