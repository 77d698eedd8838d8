package transport

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"omega-store/internal/middleware"
	"omega-store/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const dateParamLayout = "2006-01-02"

// ReportHandler serves the back-office sales reports
type ReportHandler struct {
	reports service.ReportService
	logger  *zap.Logger
	now     func() time.Time
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reports service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: logger, now: time.Now}
}

func (h *ReportHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/admin/reports", func(r chi.Router) {
		r.Use(authMiddleware, adminMiddleware)
		r.Get("/summary", h.Summary)
		r.Get("/export.csv", h.ExportCSV)
		r.Get("/dashboard", h.Dashboard)
	})
}

// parseDateRange reads the optional from and to query parameters (YYYY-MM-DD)
func parseDateRange(r *http.Request) (service.DateRange, error) {
	var period service.DateRange
	query := r.URL.Query()

	if raw := query.Get("from"); raw != "" {
		from, err := time.ParseInLocation(dateParamLayout, raw, time.UTC)
		if err != nil {
			return period, fmt.Errorf("invalid from date %q, expected YYYY-MM-DD", raw)
		}
		period.From = &from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.ParseInLocation(dateParamLayout, raw, time.UTC)
		if err != nil {
			return period, fmt.Errorf("invalid to date %q, expected YYYY-MM-DD", raw)
		}
		period.To = &to
	}
	return period, nil
}

func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	period, err := parseDateRange(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.reports.Summary(r.Context(), period)
	if err != nil {
		h.respondReportError(w, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, summary)
}

// ExportCSV streams the orders of the range as a CSV attachment
func (h *ReportHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	period, err := parseDateRange(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Buffer so a failed query can still answer with a JSON error
	var buf bytes.Buffer
	if err := h.reports.WriteCSV(r.Context(), &buf, period); err != nil {
		h.respondReportError(w, err)
		return
	}

	filename := fmt.Sprintf("rapport_ventes_omega_%s.csv", h.now().UTC().Format(dateParamLayout))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("Failed to write CSV export", zap.Error(err))
	}
}

func (h *ReportHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.reports.Dashboard(r.Context())
	if err != nil {
		h.respondReportError(w, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, dashboard)
}

func (h *ReportHandler) respondReportError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrInvalidDateRange) {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error("Report failed", zap.Error(err))
	middleware.RespondWithError(w, http.StatusInternalServerError, "failed to build report")
}
