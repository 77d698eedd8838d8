package transport

import (
	"errors"
	"net/http"

	"omega-store/internal/domain"
	"omega-store/internal/middleware"
	"omega-store/internal/repository"
	"omega-store/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// StatusRequest moves an order through its lifecycle
type StatusRequest struct {
	Status       string `json:"status" validate:"required,oneof=confirmed processing shipped delivered cancelled"`
	TrackingLink string `json:"trackingLink" validate:"omitempty,url"`
}

// OrderHandler serves placed orders
type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/mine", h.ListMine)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(adminMiddleware)
			r.Get("/", h.List)
			r.Patch("/{id}/status", h.UpdateStatus)
		})
	})
}

// ListMine returns the orders of the signed-in user, newest first
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.orders.ListForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list user orders", zap.String("user_id", userID.String()), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	respondOrders(w, orders)
}

// Get returns one order to its owner or to an administrator
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	if !middleware.IsAdmin(r.Context()) {
		userID, ok := currentUserID(r)
		if !ok || order.UserID == nil || *order.UserID != userID {
			// Same answer as a missing order so ids cannot be guessed
			middleware.RespondWithError(w, http.StatusNotFound, "order not found")
			return
		}
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// List returns every order, optionally filtered by ?status=
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	var status domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := domain.ParseOrderStatus(raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = parsed
	}

	orders, err := h.orders.List(r.Context(), status)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	respondOrders(w, orders)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	next, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), next, req.TrackingLink)
	if err != nil {
		h.respondOrderError(w, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) respondOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, service.ErrInvalidTransition):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrTrackingLinkRequired):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Order operation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "order operation failed")
	}
}

func respondOrders(w http.ResponseWriter, orders []*domain.Order) {
	if orders == nil {
		orders = []*domain.Order{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, orders)
}
