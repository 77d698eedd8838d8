package transport

import (
	"errors"
	"net/http"
	"net/url"

	"omega-store/internal/middleware"
	"omega-store/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CategoriesRequest replaces the whole category set
type CategoriesRequest struct {
	Categories []string `json:"categories" validate:"required,dive,required,max=100"`
}

// CategoryRequest names one category
type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// CategoryHandler serves the ordered category list
type CategoryHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewCategoryHandler creates a new CategoryHandler
func NewCategoryHandler(catalog service.CatalogService, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{catalog: catalog, logger: logger}
}

func (h *CategoryHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", h.List)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware, adminMiddleware)
			r.Put("/", h.Replace)
			r.Post("/", h.Add)
			r.Put("/{name}", h.Rename)
			r.Delete("/{name}", h.Delete)
		})
	})
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.logger.Error("Failed to list categories", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	h.respond(w, categories)
}

func (h *CategoryHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var req CategoriesRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}
	categories, err := h.catalog.SetCategories(r.Context(), req.Categories)
	h.result(w, categories, err)
}

func (h *CategoryHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}
	categories, err := h.catalog.AddCategory(r.Context(), req.Name)
	h.result(w, categories, err)
}

func (h *CategoryHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}
	categories, err := h.catalog.RenameCategory(r.Context(), categoryParam(r), req.Name)
	h.result(w, categories, err)
}

func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.DeleteCategory(r.Context(), categoryParam(r))
	h.result(w, categories, err)
}

// categoryParam decodes the escaped category name from the path
func categoryParam(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

func (h *CategoryHandler) result(w http.ResponseWriter, categories []string, err error) {
	switch {
	case err == nil:
		h.respond(w, categories)
	case errors.Is(err, service.ErrCategoryNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrCategoryExists):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCategories):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Failed to update categories", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update categories")
	}
}

func (h *CategoryHandler) respond(w http.ResponseWriter, categories []string) {
	if categories == nil {
		categories = []string{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string][]string{"categories": categories})
}
