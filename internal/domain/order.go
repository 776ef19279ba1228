package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ожидает кухню.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPreparing — кухня готовит заказ.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReady — заказ готов к выдаче.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusDelivering — заказ передан в доставку.
	OrderStatusDelivering OrderStatus = "delivering"
	// OrderStatusCompleted — заказ доставлен клиенту (терминальный успех).
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusFailed — терминальный статус: отмена клиентом либо срыв на кухне.
	// Отдельного статуса «cancelled» нет.
	OrderStatusFailed OrderStatus = "failed"
)

// recentOrderWindow — окно, в котором заказ считается «свежим» для витрины истории.
const recentOrderWindow = 24 * time.Hour

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusReady,
		OrderStatusDelivering, OrderStatusCompleted, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal сообщает, завершён ли жизненный цикл заказа.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// Label возвращает человекочитаемую подпись статуса для плоского
// представления заказа. Локализация — забота презентационного слоя.
func (s OrderStatus) Label() string {
	switch s {
	case OrderStatusPending:
		return "Pending"
	case OrderStatusPreparing:
		return "Preparing"
	case OrderStatusReady:
		return "Ready"
	case OrderStatusDelivering:
		return "Delivering"
	case OrderStatusCompleted:
		return "Delivered"
	case OrderStatusFailed:
		return "Canceled"
	default:
		return string(s)
	}
}

// Order — заказ клиента на одно блюдо, отслеживаемый по статусам.
type Order struct {
	ID         string
	CustomerID string
	// DishID пустой, если блюдо удалено из каталога (исторический заказ сохраняется).
	DishID   string
	Quantity int32
	// AmountMinor — снимок цены на момент создания заказа. Изменение цены блюда
	// задним числом на сумму не влияет; пересчёт возможен только явным
	// административным действием.
	AmountMinor int64
	Status      OrderStatus
	Notes       string
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CanBeCancelled сообщает, допускает ли текущий статус отмену вообще
// (клиентская отмена строже: только pending).
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusPreparing
}

// CanBeReordered проверяет, можно ли повторить заказ с учётом текущего состояния блюда.
func (o *Order) CanBeReordered(dish *Dish) bool {
	if dish == nil {
		return false
	}
	return o.Status.Terminal() && dish.IsOrderable() && dish.Stock >= o.Quantity
}

// IsRecent сообщает, моложе ли заказ суток.
func (o *Order) IsRecent(now time.Time) bool {
	return now.Sub(o.CreatedAt) < recentOrderWindow
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.DishID == "" {
		errs = append(errs, ErrDishRequired)
	}
	if o.Quantity < 1 {
		errs = append(errs, ErrQuantityInvalid)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}

	return errs
}
