package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/TangB5/restaurant/internal/domain"
)

// errorResponse — единый формат ошибок API.
type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusForError(err), errorResponse{Error: err.Error()})
}

// statusForError переводит доменные sentinel-ошибки в HTTP-статусы.
// Ядро не знает про HTTP: весь маппинг живёт здесь.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrDishNotFound),
		errors.Is(err, domain.ErrCategoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOrderForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrOrderNotCancellable),
		errors.Is(err, domain.ErrOrderNotReorderable),
		errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrDishUnavailable),
		errors.Is(err, domain.ErrOrderVersionConflict),
		errors.Is(err, domain.ErrDishVersionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCustomerRequired),
		errors.Is(err, domain.ErrDishRequired),
		errors.Is(err, domain.ErrQuantityInvalid),
		errors.Is(err, domain.ErrAmountNegative),
		errors.Is(err, domain.ErrStatusInvalid),
		errors.Is(err, domain.ErrDishNameRequired),
		errors.Is(err, domain.ErrCategoryRequired),
		errors.Is(err, domain.ErrCategoryNameRequired),
		errors.Is(err, domain.ErrPriceNegative),
		errors.Is(err, domain.ErrStockNegative),
		errors.Is(err, domain.ErrAvailabilityStale):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
