package transport

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"omega-store/internal/domain"
	"omega-store/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubReports struct {
	lastRange service.DateRange
	failWith  error
}

func (s *stubReports) Summary(ctx context.Context, period service.DateRange) (*service.SalesSummary, error) {
	s.lastRange = period
	if s.failWith != nil {
		return nil, s.failWith
	}
	return &service.SalesSummary{TotalRevenue: decimal.RequireFromString("204"), TotalOrders: 2, TotalProductsSold: 3, Orders: []*domain.Order{}}, nil
}

func (s *stubReports) WriteCSV(ctx context.Context, w io.Writer, period service.DateRange) error {
	s.lastRange = period
	if s.failWith != nil {
		return s.failWith
	}
	cw := csv.NewWriter(w)
	_ = cw.Write(service.CSVHeader)
	_ = cw.Write([]string{"pi_1", "14/03/2026", "204.00", "confirmed", "Lea Martin", "1 rue Neuve", "Lyon", "69001", "Machine a fumee (x1)"})
	cw.Flush()
	return cw.Error()
}

func (s *stubReports) Dashboard(ctx context.Context) (*service.Dashboard, error) {
	return &service.Dashboard{TotalProducts: 5, TotalOrders: 2, TotalUsers: 1, TotalRevenue: decimal.RequireFromString("204"), RecentOrders: []*domain.Order{}}, nil
}

func newReportRouter() (chi.Router, *stubReports) {
	reports := &stubReports{}
	handler := NewReportHandler(reports, zap.NewNop())
	handler.now = func() time.Time { return time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC) }

	auth, admin, _ := testAuth()
	router := chi.NewRouter()
	handler.RegisterRoutes(router, auth, admin)
	return router, reports
}

func TestReportsRequireAdmin(t *testing.T) {
	router, _ := newReportRouter()
	assert.Equal(t, http.StatusUnauthorized, call(t, router, http.MethodGet, "/api/admin/reports/dashboard", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, call(t, router, http.MethodGet, "/api/admin/reports/dashboard", nil, bearer(t, "u1", domain.RoleUser)).Code)
}

func TestSummaryParsesDateRange(t *testing.T) {
	router, reports := newReportRouter()
	admin := bearer(t, "a1", domain.RoleAdmin)

	w := call(t, router, http.MethodGet, "/api/admin/reports/summary?from=2026-03-01&to=2026-03-14", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, reports.lastRange.From)
	require.NotNil(t, reports.lastRange.To)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *reports.lastRange.From)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), *reports.lastRange.To)

	summary := decodeBody[service.SalesSummary](t, w)
	assert.Equal(t, 2, summary.TotalOrders)
	assert.True(t, summary.TotalRevenue.Equal(decimal.RequireFromString("204")))

	w = call(t, router, http.MethodGet, "/api/admin/reports/summary", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, reports.lastRange.From)
	assert.Nil(t, reports.lastRange.To)

	assert.Equal(t, http.StatusBadRequest, call(t, router, http.MethodGet, "/api/admin/reports/summary?from=14/03/2026", nil, admin).Code)

	reports.failWith = service.ErrInvalidDateRange
	assert.Equal(t, http.StatusBadRequest, call(t, router, http.MethodGet, "/api/admin/reports/summary?from=2026-03-14&to=2026-03-01", nil, admin).Code)
}

func TestExportCSV(t *testing.T) {
	router, reports := newReportRouter()
	admin := bearer(t, "a1", domain.RoleAdmin)

	w := call(t, router, http.MethodGet, "/api/admin/reports/export.csv?from=2026-03-01", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="rapport_ventes_omega_2026-03-15.csv"`, w.Header().Get("Content-Disposition"))

	rows, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, service.CSVHeader, rows[0])
	assert.Equal(t, "Machine a fumee (x1)", rows[1][8])

	reports.failWith = errors.New("db down")
	failed := call(t, router, http.MethodGet, "/api/admin/reports/export.csv", nil, admin)
	assert.Equal(t, http.StatusInternalServerError, failed.Code)
	assert.Equal(t, "application/json", failed.Header().Get("Content-Type"))
}

func TestDashboardEndpoint(t *testing.T) {
	router, _ := newReportRouter()

	w := call(t, router, http.MethodGet, "/api/admin/reports/dashboard", nil, bearer(t, "a1", domain.RoleAdmin))
	require.Equal(t, http.StatusOK, w.Code)
	dashboard := decodeBody[service.Dashboard](t, w)
	assert.Equal(t, 5, dashboard.TotalProducts)
	assert.Equal(t, 1, dashboard.TotalUsers)
}
