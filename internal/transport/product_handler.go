package transport

import (
	"errors"
	"net/http"

	"omega-store/internal/domain"
	"omega-store/internal/middleware"
	"omega-store/internal/repository"
	"omega-store/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductRequest is the editable part of a product
type ProductRequest struct {
	Name          string              `json:"name" validate:"required,max=255"`
	Description   string              `json:"description" validate:"required"`
	Price         decimal.Decimal     `json:"price"`
	OriginalPrice decimal.NullDecimal `json:"originalPrice"`
	Image         string              `json:"image" validate:"required,url"`
	Category      string              `json:"category" validate:"required,max=100"`
	StockQuantity int                 `json:"stockQuantity" validate:"gte=0"`
}

func (req ProductRequest) product(id string) *domain.Product {
	return &domain.Product{
		ID:            id,
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		Image:         req.Image,
		Category:      req.Category,
		StockQuantity: req.StockQuantity,
	}
}

// StockRequest removes Delta units from stock. A negative delta restocks.
type StockRequest struct {
	Delta int `json:"delta" validate:"ne=0"`
}

// ProductHandler serves the catalog
type ProductHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(catalog service.CatalogService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{catalog: catalog, logger: logger}
}

// RegisterRoutes registers the product routes. Reads are public, writes need an admin.
func (h *ProductHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware, adminMiddleware)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
			r.Post("/{id}/stock", h.AdjustStock)
		})
	})
}

// List returns the catalog filtered by the search, category and sort query parameters
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repository.ProductFilter{
		Search:   query.Get("search"),
		Category: query.Get("category"),
		SortBy:   query.Get("sort"),
	}

	switch filter.SortBy {
	case "", repository.SortByName, repository.SortByPriceAsc, repository.SortByPriceDesc:
	default:
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid sort, expected name, price-asc or price-desc")
		return
	}

	products, err := h.catalog.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list products", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondCatalogError(w, err, "failed to get product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	product, err := h.catalog.Create(r.Context(), req.product(""))
	if err != nil {
		h.respondCatalogError(w, err, "failed to create product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	product, err := h.catalog.Update(r.Context(), req.product(chi.URLParam(r, "id")))
	if err != nil {
		h.respondCatalogError(w, err, "failed to update product")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondCatalogError(w, err, "failed to delete product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req StockRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	product, err := h.catalog.AdjustStock(r.Context(), chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		h.respondCatalogError(w, err, "failed to adjust stock")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// respondCatalogError maps catalog errors to HTTP responses
func (h *ProductHandler) respondCatalogError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, repository.ErrInsufficientStock):
		middleware.RespondWithError(w, http.StatusConflict, "insufficient stock")
	case errors.Is(err, service.ErrUnknownCategory):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidProduct):
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Catalog operation failed", zap.String("reason", fallback), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, fallback)
	}
}
