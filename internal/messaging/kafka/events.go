package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderPlaced           EventType = "order.placed"
	EventTypeOrderCanceled         EventType = "order.canceled"
	EventTypeOrderReordered        EventType = "order.reordered"
	EventTypeOrderStatusChanged    EventType = "order.status_changed"
	EventTypeOrderCompleted        EventType = "order.completed"
	EventTypeOrderAmountRecomputed EventType = "order.amount_recomputed"

	// Menu события
	EventTypeDishDelisted  EventType = "menu.dish_delisted"
	EventTypeDishRestocked EventType = "menu.dish_restocked"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "restaurant.order.events"
	TopicMenuEvents      = "restaurant.menu.events"
	TopicDeadLetterQueue = "restaurant.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType  EventType              `json:"event_type"`
	OrderID    string                 `json:"order_id"`
	CustomerID string                 `json:"customer_id"`
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, customerID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}
