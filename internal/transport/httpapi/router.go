package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter собирает маршруты API. feed может быть nil: тогда живая лента
// не монтируется.
func NewRouter(h *Handler, feed *FeedHub) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()

	// Витрина.
	api.HandleFunc("/menu", h.ListMenu).Methods(http.MethodGet)
	api.HandleFunc("/categories", h.ListCategories).Methods(http.MethodGet)

	// Заказы клиента.
	api.HandleFunc("/orders", h.withIdempotency(h.PlaceOrder)).Methods(http.MethodPost)
	api.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", h.CancelOrder).Methods(http.MethodDelete)
	api.HandleFunc("/orders/{id}/reorder", h.withIdempotency(h.Reorder)).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/timeline", h.OrderTimeline).Methods(http.MethodGet)

	// Бэк-офис.
	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/orders/advance", h.AdvanceOrders).Methods(http.MethodPost)
	admin.HandleFunc("/orders/cancel", h.CancelOrders).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}/recompute", h.RecomputeAmount).Methods(http.MethodPost)
	admin.HandleFunc("/dishes", h.CreateDish).Methods(http.MethodPost)
	admin.HandleFunc("/dishes", h.ListCatalog).Methods(http.MethodGet)
	admin.HandleFunc("/dishes/{id}", h.UpdateDish).Methods(http.MethodPut)
	admin.HandleFunc("/dishes/{id}", h.DeleteDish).Methods(http.MethodDelete)
	admin.HandleFunc("/dishes/{id}/restock", h.RestockDish).Methods(http.MethodPost)
	admin.HandleFunc("/dishes/{id}/availability", h.SetDishAvailability).Methods(http.MethodPost)
	admin.HandleFunc("/categories", h.CreateCategory).Methods(http.MethodPost)

	if feed != nil {
		r.HandleFunc("/ws/orders", feed.HandleWebSocket)
	}

	return r
}
