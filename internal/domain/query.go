package domain

import (
	"strings"
	"time"
)

// defaultPageSize ограничивает выборку истории заказов на одну страницу.
const defaultPageSize = 20

// OrderQuery — явные параметры фильтрации списков заказов.
// Заменяет duck-typed параметры запроса исходной версии.
type OrderQuery struct {
	// Status, если задан, оставляет только заказы в этом статусе.
	Status *OrderStatus
	// Search фильтрует по подстроке в заметках заказа или названии блюда.
	Search string
	// Page — номер страницы, начиная с нуля.
	Page uint32
	// PerPage — размер страницы; нулевое значение означает defaultPageSize.
	PerPage uint32
}

// Limit возвращает эффективный размер страницы.
func (q OrderQuery) Limit() int {
	if q.PerPage == 0 {
		return defaultPageSize
	}
	return int(q.PerPage)
}

// Offset возвращает смещение выборки.
func (q OrderQuery) Offset() int {
	return int(q.Page) * q.Limit()
}

// Matches проверяет заказ против фильтров (используется in-memory реализацией).
// dishName передаётся отдельно, потому что заказ хранит лишь ссылку на блюдо.
func (q OrderQuery) Matches(order Order, dishName string) bool {
	if q.Status != nil && order.Status != *q.Status {
		return false
	}
	if q.Search != "" && !containsFold(order.Notes, q.Search) && !containsFold(dishName, q.Search) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// OrderDetail — плоское представление заказа для презентационного слоя.
// Единственный JSON-контракт ядра наружу.
type OrderDetail struct {
	OrderID     string      `json:"order_id"`
	Status      OrderStatus `json:"status"`
	StatusLabel string      `json:"status_label"`
	CreatedAt   time.Time   `json:"created_at"`
	AmountMinor int64       `json:"amount_minor"`
	Quantity    int32       `json:"quantity"`
	Notes       string      `json:"notes,omitempty"`
	IsRecent    bool        `json:"is_recent"`

	// DishMissing поднимается, когда блюдо удалено из каталога;
	// презентационный слой подставляет заглушку вместо описания.
	DishMissing     bool   `json:"dish_missing"`
	DishName        string `json:"dish_name,omitempty"`
	DishDescription string `json:"dish_description,omitempty"`
	DishPriceMinor  int64  `json:"dish_price_minor,omitempty"`
	DishCategory    string `json:"dish_category,omitempty"`
}
