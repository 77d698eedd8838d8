package transport

import (
	"errors"
	"net/http"

	"omega-store/internal/middleware"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// decodeRequest decodes and validates a JSON body into dst. On failure it
// writes the error response and returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst interface{}) bool {
	if err := middleware.DecodeAndValidate(r, dst); err != nil {
		logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return false
		}

		if errors.Is(err, middleware.ErrBodyTooLarge) {
			middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, err.Error())
			return false
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// currentUserID returns the authenticated user's id, if the request carries one
func currentUserID(r *http.Request) (uuid.UUID, bool) {
	raw, ok := middleware.GetUserID(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
