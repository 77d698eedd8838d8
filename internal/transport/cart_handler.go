package transport

import (
	"errors"
	"net/http"
	"regexp"

	"omega-store/internal/domain"
	"omega-store/internal/middleware"
	"omega-store/internal/repository"
	"omega-store/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var cartIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// AddItemRequest adds units of a product to a cart
type AddItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"omitempty,gte=1,lte=999"`
}

// UpdateQuantityRequest sets the quantity of a line. Zero removes it.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0,lte=999"`
}

// CartResponse is a cart with its derived totals
type CartResponse struct {
	ID         string            `json:"id"`
	Items      []domain.CartItem `json:"items"`
	TotalItems int               `json:"totalItems"`
	TotalPrice decimal.Decimal   `json:"totalPrice"`
}

func newCartResponse(cart *domain.Cart) CartResponse {
	items := cart.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	return CartResponse{
		ID:         cart.ID,
		Items:      items,
		TotalItems: cart.TotalItems(),
		TotalPrice: cart.TotalPrice(),
	}
}

// CartHandler serves shopper carts and their shipping address snapshot
type CartHandler struct {
	carts    service.CartService
	checkout service.CheckoutService
	logger   *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(carts service.CartService, checkout service.CheckoutService, logger *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, checkout: checkout, logger: logger}
}

func (h *CartHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/carts/{cartID}", func(r chi.Router) {
		r.Use(h.requireCartID)
		r.Get("/", h.Get)
		r.Delete("/", h.Clear)
		r.Post("/items", h.AddItem)
		r.Put("/items/{productID}", h.UpdateQuantity)
		r.Delete("/items/{productID}", h.RemoveItem)
		r.Get("/shipping-address", h.GetShippingAddress)
		r.Put("/shipping-address", h.SaveShippingAddress)
	})
}

// requireCartID rejects cart ids that are not short url-safe tokens
func (h *CartHandler) requireCartID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cartIDPattern.MatchString(chi.URLParam(r, "cartID")) {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid cart id")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.Get(r.Context(), chi.URLParam(r, "cartID"))
	h.respondCart(w, cart, err)
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), chi.URLParam(r, "cartID")); err != nil {
		h.respondCart(w, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cart, err := h.carts.AddItem(r.Context(), chi.URLParam(r, "cartID"), req.ProductID, req.Quantity)
	h.respondCart(w, cart, err)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	cart, err := h.carts.UpdateQuantity(r.Context(), chi.URLParam(r, "cartID"), chi.URLParam(r, "productID"), req.Quantity)
	h.respondCart(w, cart, err)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.RemoveItem(r.Context(), chi.URLParam(r, "cartID"), chi.URLParam(r, "productID"))
	h.respondCart(w, cart, err)
}

func (h *CartHandler) GetShippingAddress(w http.ResponseWriter, r *http.Request) {
	address, err := h.checkout.ShippingAddress(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		h.logger.Error("Failed to load shipping address", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to load shipping address")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, address)
}

func (h *CartHandler) SaveShippingAddress(w http.ResponseWriter, r *http.Request) {
	var address domain.Address
	if !decodeRequest(w, r, h.logger, &address) {
		return
	}

	if err := h.checkout.SaveShippingAddress(r.Context(), chi.URLParam(r, "cartID"), address); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		h.logger.Error("Failed to save shipping address", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to save shipping address")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, address)
}

func (h *CartHandler) respondCart(w http.ResponseWriter, cart *domain.Cart, err error) {
	switch {
	case err == nil:
		middleware.RespondWithJSON(w, http.StatusOK, newCartResponse(cart))
	case errors.Is(err, service.ErrInvalidQuantity):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, repository.ErrCartConflict):
		middleware.RespondWithError(w, http.StatusConflict, "cart was modified concurrently, please retry")
	default:
		h.logger.Error("Cart operation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "cart operation failed")
	}
}
