package transport

import (
	"errors"
	"net/http"

	"omega-store/internal/middleware"
	"omega-store/internal/payment"
	"omega-store/internal/repository"
	"omega-store/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ConfirmRequest identifies the payment the client returned from
type ConfirmRequest struct {
	CartID          string `json:"cartId" validate:"required,max=64"`
	PaymentIntentID string `json:"paymentIntentId" validate:"required"`
	ClientSecret    string `json:"clientSecret" validate:"required"`
}

// CheckoutHandler drives payment and order placement
type CheckoutHandler struct {
	checkout service.CheckoutService
	logger   *zap.Logger
}

// NewCheckoutHandler creates a new CheckoutHandler
func NewCheckoutHandler(checkout service.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, logger: logger}
}

// RegisterRoutes registers the checkout routes. Guests may pay; a signed-in
// shopper has the order attached to the account.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router, optionalAuth func(http.Handler) http.Handler) {
	r.Route("/api/checkout", func(r chi.Router) {
		r.Use(optionalAuth)
		r.Post("/{cartID}/intent", h.Begin)
		r.Post("/confirm", h.Confirm)
	})
}

func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartID")
	if !cartIDPattern.MatchString(cartID) {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid cart id")
		return
	}

	session, err := h.checkout.Begin(r.Context(), cartID)
	if err != nil {
		h.respondCheckoutError(w, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, session)
}

func (h *CheckoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	input := service.ConfirmInput{
		CartID:          req.CartID,
		PaymentIntentID: req.PaymentIntentID,
		ClientSecret:    req.ClientSecret,
	}
	if userID, ok := currentUserID(r); ok {
		input.UserID = &userID
	}

	result, err := h.checkout.Confirm(r.Context(), input)
	if err != nil {
		h.respondCheckoutError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	middleware.RespondWithJSON(w, status, result)
}

// respondCheckoutError maps checkout failures to responses. Payment failures
// leave the cart untouched so the shopper can retry.
func (h *CheckoutHandler) respondCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyCart):
		middleware.RespondWithError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, service.ErrPaymentNotConfigured):
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "online payment is not available")
	case errors.Is(err, service.ErrClientSecretMismatch):
		middleware.RespondWithError(w, http.StatusForbidden, "payment does not belong to this session")
	case errors.Is(err, service.ErrCartMismatch):
		middleware.RespondWithError(w, http.StatusForbidden, "payment does not belong to this cart")
	case errors.Is(err, service.ErrPaymentRefunded):
		middleware.RespondWithError(w, http.StatusConflict, "your order could not be placed and your payment has been refunded")
	case errors.Is(err, service.ErrAmountMismatch):
		h.logger.Error("Checkout amount mismatch", zap.Error(err))
		middleware.RespondWithError(w, http.StatusConflict, "paid amount does not match the cart, please contact us")
	case errors.Is(err, repository.ErrInsufficientStock):
		middleware.RespondWithError(w, http.StatusConflict, "a product in your cart is out of stock")
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusConflict, "a product in your cart is no longer available")
	case errors.Is(err, payment.ErrIntentNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "payment not found")
	case errors.Is(err, payment.ErrRejected):
		middleware.RespondWithError(w, http.StatusPaymentRequired, "payment was declined, please try again")
	case errors.Is(err, payment.ErrUnavailable):
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "payment service is temporarily unavailable, please try again")
	case errors.Is(err, payment.ErrAuthentication), errors.Is(err, service.ErrPaymentFailed):
		h.logger.Error("Payment processor error", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadGateway, "payment could not be processed, please try again")
	default:
		h.logger.Error("Checkout failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "checkout failed")
	}
}
