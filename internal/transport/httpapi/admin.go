package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/TangB5/restaurant/internal/domain"
	"github.com/TangB5/restaurant/internal/service/catalog"
)

// --- Бэк-офис: заказы ---

type bulkAdvanceRequest struct {
	OrderIDs []string `json:"order_ids"`
	Target   string   `json:"target"`
}

// AdvanceOrders переводит пачку заказов в следующий статус.
func (h *Handler) AdvanceOrders(w http.ResponseWriter, r *http.Request) {
	var req bulkAdvanceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.orders.AdvanceOrders(req.OrderIDs, domain.OrderStatus(req.Target))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type bulkCancelRequest struct {
	OrderIDs []string `json:"order_ids"`
	Reason   string   `json:"reason"`
}

// CancelOrders снимает пачку заказов с возвратом остатков.
func (h *Handler) CancelOrders(w http.ResponseWriter, r *http.Request) {
	var req bulkCancelRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.orders.CancelOrders(req.OrderIDs, req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// RecomputeAmount пересчитывает сумму заказа по текущей цене блюда.
func (h *Handler) RecomputeAmount(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.RecomputeAmount(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderView(order))
}

// --- Бэк-офис: каталог ---

type dishRequest struct {
	CategoryID  string `json:"category_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceMinor  int64  `json:"price_minor"`
	Stock       int32  `json:"stock"`
	Available   bool   `json:"available"`
	IsSpecial   bool   `json:"is_special"`
}

func (r dishRequest) toService() catalog.DishRequest {
	return catalog.DishRequest{
		CategoryID:  r.CategoryID,
		Name:        r.Name,
		Description: r.Description,
		PriceMinor:  r.PriceMinor,
		Stock:       r.Stock,
		Available:   r.Available,
		IsSpecial:   r.IsSpecial,
	}
}

// CreateDish добавляет блюдо в каталог.
func (h *Handler) CreateDish(w http.ResponseWriter, r *http.Request) {
	var req dishRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	dish, err := h.catalog.CreateDish(req.toService())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, dishView(dish))
}

// UpdateDish правит карточку блюда.
func (h *Handler) UpdateDish(w http.ResponseWriter, r *http.Request) {
	var req dishRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	dish, err := h.catalog.UpdateDish(mux.Vars(r)["id"], req.toService())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dishView(dish))
}

// DeleteDish удаляет блюдо; исторические заказы переживают удаление.
func (h *Handler) DeleteDish(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteDish(mux.Vars(r)["id"]); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type restockRequest struct {
	Quantity int32 `json:"quantity"`
}

// RestockDish пополняет остаток и возвращает блюдо на витрину.
func (h *Handler) RestockDish(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	dish, err := h.catalog.Restock(mux.Vars(r)["id"], req.Quantity)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dishView(dish))
}

type availabilityRequest struct {
	Available bool `json:"available"`
}

// SetDishAvailability вручную показывает или скрывает блюдо.
func (h *Handler) SetDishAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	dish, err := h.catalog.SetAvailable(mux.Vars(r)["id"], req.Available)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dishView(dish))
}

// ListCatalog отдаёт весь каталог, включая скрытые блюда.
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	dishes, err := h.catalog.ListCatalog()
	if err != nil {
		respondError(w, err)
		return
	}

	view := make([]map[string]interface{}, 0, len(dishes))
	for _, dish := range dishes {
		view = append(view, dishView(dish))
	}
	respondJSON(w, http.StatusOK, view)
}

type categoryRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	DisplayOrder int32  `json:"display_order"`
	Active       bool   `json:"active"`
}

// CreateCategory добавляет категорию меню.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	category, err := h.catalog.CreateCategory(catalog.CategoryRequest{
		Name:         req.Name,
		Description:  req.Description,
		DisplayOrder: req.DisplayOrder,
		Active:       req.Active,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":            category.ID,
		"name":          category.Name,
		"description":   category.Description,
		"display_order": category.DisplayOrder,
		"active":        category.Active,
	})
}

func dishView(dish domain.Dish) map[string]interface{} {
	return map[string]interface{}{
		"id":           dish.ID,
		"category_id":  dish.CategoryID,
		"name":         dish.Name,
		"description":  dish.Description,
		"price_minor":  dish.PriceMinor,
		"stock":        dish.Stock,
		"available":    dish.Available,
		"is_special":   dish.IsSpecial,
		"stock_status": dish.StockStatus(),
		"version":      dish.Version,
	}
}
