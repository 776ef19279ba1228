// Package httpapi предоставляет REST-границу сервиса: витрину меню,
// жизненный цикл заказов и бэк-офисные операции.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/domain"
	"github.com/TangB5/restaurant/internal/service/catalog"
	"github.com/TangB5/restaurant/internal/service/orders"
)

// customerHeader идентифицирует клиента. Аутентификация — забота внешнего
// периметра; сервис доверяет заголовку.
const customerHeader = "X-Customer-ID"

// Handler связывает HTTP-маршруты с сервисами ядра.
type Handler struct {
	orders      *orders.Service
	catalog     *catalog.Service
	idempotency domain.IdempotencyRepository
	logger      *log.Entry
}

// NewHandler создаёт HTTP-handler поверх сервисов.
func NewHandler(
	ordersSvc *orders.Service,
	catalogSvc *catalog.Service,
	idempotency domain.IdempotencyRepository,
	logger *log.Entry,
) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	return &Handler{
		orders:      ordersSvc,
		catalog:     catalogSvc,
		idempotency: idempotency,
		logger:      logger,
	}
}

func customerID(r *http.Request) string {
	return r.Header.Get(customerHeader)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// --- Витрина ---

// ListMenu отдаёт заказываемые блюда, сгруппированные по категориям.
func (h *Handler) ListMenu(w http.ResponseWriter, r *http.Request) {
	sections, err := h.catalog.ListMenu(r.URL.Query().Get("category_id"))
	if err != nil {
		respondError(w, err)
		return
	}

	type dishView struct {
		ID          string             `json:"id"`
		Name        string             `json:"name"`
		Description string             `json:"description,omitempty"`
		PriceMinor  int64              `json:"price_minor"`
		IsSpecial   bool               `json:"is_special"`
		StockStatus domain.StockStatus `json:"stock_status"`
	}
	type sectionView struct {
		CategoryID   string     `json:"category_id"`
		CategoryName string     `json:"category_name"`
		Dishes       []dishView `json:"dishes"`
	}

	view := make([]sectionView, 0, len(sections))
	for _, section := range sections {
		dishes := make([]dishView, 0, len(section.Dishes))
		for _, dish := range section.Dishes {
			dishes = append(dishes, dishView{
				ID:          dish.ID,
				Name:        dish.Name,
				Description: dish.Description,
				PriceMinor:  dish.PriceMinor,
				IsSpecial:   dish.IsSpecial,
				StockStatus: dish.StockStatus(),
			})
		}
		view = append(view, sectionView{
			CategoryID:   section.Category.ID,
			CategoryName: section.Category.Name,
			Dishes:       dishes,
		})
	}
	respondJSON(w, http.StatusOK, view)
}

// ListCategories отдаёт активные категории меню.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories()
	if err != nil {
		respondError(w, err)
		return
	}

	type categoryView struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Description  string `json:"description,omitempty"`
		DisplayOrder int32  `json:"display_order"`
	}
	view := make([]categoryView, 0, len(categories))
	for _, category := range categories {
		view = append(view, categoryView{
			ID:           category.ID,
			Name:         category.Name,
			Description:  category.Description,
			DisplayOrder: category.DisplayOrder,
		})
	}
	respondJSON(w, http.StatusOK, view)
}

// --- Заказы клиента ---

type placeOrderRequest struct {
	DishID   string `json:"dish_id"`
	Quantity int32  `json:"quantity"`
	Notes    string `json:"notes"`
}

// PlaceOrder размещает заказ от имени клиента из заголовка.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	order, err := h.orders.PlaceOrder(orders.PlaceOrderRequest{
		CustomerID: customerID(r),
		DishID:     req.DishID,
		Quantity:   req.Quantity,
		Notes:      req.Notes,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, orderView(order))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder отменяет pending-заказ клиента.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}

	order, err := h.orders.CancelOrder(mux.Vars(r)["id"], customerID(r), req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderView(order))
}

// Reorder повторяет завершённый заказ.
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Reorder(mux.Vars(r)["id"], customerID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, orderView(order))
}

// GetOrder отдаёт карточку заказа клиента.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := h.orders.OrderDetail(mux.Vars(r)["id"], customerID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// ListOrders отдаёт страницу истории заказов клиента.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q, err := parseOrderQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}

	details, total, err := h.orders.ListOrders(customerID(r), q)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"orders":   details,
		"total":    total,
		"page":     q.Page,
		"per_page": q.Limit(),
	})
}

// OrderTimeline отдаёт историю событий заказа.
func (h *Handler) OrderTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.orders.Timeline(mux.Vars(r)["id"], customerID(r))
	if err != nil {
		respondError(w, err)
		return
	}

	type eventView struct {
		Type     string `json:"type"`
		Reason   string `json:"reason,omitempty"`
		Occurred string `json:"occurred"`
	}
	view := make([]eventView, 0, len(events))
	for _, event := range events {
		view = append(view, eventView{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred.UTC().Format(time.RFC3339Nano),
		})
	}
	respondJSON(w, http.StatusOK, view)
}

// orderView — представление заказа в ответах мутирующих операций.
func orderView(order domain.Order) map[string]interface{} {
	return map[string]interface{}{
		"order_id":     order.ID,
		"dish_id":      order.DishID,
		"quantity":     order.Quantity,
		"amount_minor": order.AmountMinor,
		"status":       order.Status,
		"status_label": order.Status.Label(),
		"notes":        order.Notes,
		"created_at":   order.CreatedAt,
	}
}
