package orders

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/domain"
	"github.com/TangB5/restaurant/internal/messaging/kafka"
	"github.com/TangB5/restaurant/internal/metrics"
)

// maxTransitionAttempts ограничивает повторы при конфликте версий.
const maxTransitionAttempts = 3

// Service реализует жизненный цикл заказа: размещение с резервированием
// остатка, отмену с возвратом, повтор и административные переводы статусов.
type Service struct {
	dishes     domain.DishRepository
	orders     domain.OrderRepository
	categories domain.CategoryRepository
	outbox     domain.OutboxRepository
	timeline   domain.TimelineRepository
	logger     *log.Entry
	metrics    *metrics.OrderMetrics
}

// NewService создаёт рабочий экземпляр сервиса заказов.
func NewService(
	dishes domain.DishRepository,
	orders domain.OrderRepository,
	categories domain.CategoryRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Service {
	svc := newService(dishes, orders, categories, outbox, timeline, logger)
	svc.metrics = metrics.NewOrderMetrics()
	return svc
}

// NewServiceWithoutMetrics создаёт сервис без метрик (для тестов).
func NewServiceWithoutMetrics(
	dishes domain.DishRepository,
	orders domain.OrderRepository,
	categories domain.CategoryRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Service {
	return newService(dishes, orders, categories, outbox, timeline, logger)
}

func newService(
	dishes domain.DishRepository,
	orders domain.OrderRepository,
	categories domain.CategoryRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "orders")
	}
	return &Service{
		dishes:     dishes,
		orders:     orders,
		categories: categories,
		outbox:     outbox,
		timeline:   timeline,
		logger:     logger,
	}
}

// PlaceOrderRequest — параметры размещения заказа.
type PlaceOrderRequest struct {
	CustomerID string
	DishID     string
	Quantity   int32
	Notes      string
}

// PlaceOrder резервирует остаток и создаёт заказ атомарно. Сумма заказа
// фиксируется по цене блюда на момент размещения.
func (s *Service) PlaceOrder(req PlaceOrderRequest) (domain.Order, error) {
	started := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordPlaceDuration(time.Since(started))
		}
	}()

	if req.Quantity == 0 {
		req.Quantity = 1
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: req.CustomerID,
		DishID:     req.DishID,
		Quantity:   req.Quantity,
		Status:     domain.OrderStatusPending,
		Notes:      req.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}

	placed, dish, err := s.orders.PlaceReserving(order)
	if err != nil {
		s.recordStockRejection(err)
		s.logger.WithError(err).WithFields(log.Fields{
			"dish_id":     req.DishID,
			"customer_id": req.CustomerID,
		}).Warn("order placement rejected")
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":     placed.ID,
		"dish_id":      dish.ID,
		"amount_minor": placed.AmountMinor,
		"stock_left":   dish.Stock,
	}).Info("order placed")

	if s.metrics != nil {
		s.metrics.RecordOrderPlaced()
	}
	s.emitEvent(placed, kafka.EventTypeOrderPlaced, "order placed")

	if !dish.Available {
		s.emitDishDelisted(dish)
	}

	return placed, nil
}

// CancelOrder отменяет заказ клиента и возвращает остаток на склад.
// Клиентская отмена допускается строго из pending: повторный вызов по
// уже отменённому заказу получает NotCancellable, остаток при этом
// возвращается ровно один раз.
func (s *Service) CancelOrder(orderID, customerID, reason string) (domain.Order, error) {
	for attempt := 0; ; attempt++ {
		order, err := s.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}
		if order.CustomerID != customerID {
			return domain.Order{}, domain.ErrOrderForbidden
		}
		if order.Status != domain.OrderStatusPending {
			return domain.Order{}, domain.ErrOrderNotCancellable
		}

		order.Status = domain.OrderStatusFailed
		finished, dish, err := s.orders.FinishReleasing(order)
		if domain.IsVersionConflict(err) && attempt < maxTransitionAttempts-1 {
			continue
		}
		if err != nil {
			return domain.Order{}, err
		}

		s.logger.WithFields(log.Fields{
			"order_id": finished.ID,
			"reason":   reason,
			"restored": finished.Quantity,
			"stock":    dish.Stock,
		}).Info("order canceled")

		if s.metrics != nil {
			s.metrics.RecordOrderCanceled()
		}
		s.emitEvent(finished, kafka.EventTypeOrderCanceled, reason)
		return finished, nil
	}
}

// Reorder повторяет завершённый заказ: создаёт новый pending-заказ на то же
// блюдо с тем же количеством по текущей цене.
func (s *Service) Reorder(orderID, customerID string) (domain.Order, error) {
	previous, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if previous.CustomerID != customerID {
		return domain.Order{}, domain.ErrOrderForbidden
	}
	if !previous.Status.Terminal() {
		return domain.Order{}, domain.ErrOrderNotReorderable
	}
	if previous.DishID == "" {
		return domain.Order{}, domain.ErrDishNotFound
	}

	now := time.Now().UTC()
	fresh := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		DishID:     previous.DishID,
		Quantity:   previous.Quantity,
		Status:     domain.OrderStatusPending,
		Notes:      previous.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	placed, dish, err := s.orders.PlaceReserving(fresh)
	if err != nil {
		s.recordStockRejection(err)
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":    placed.ID,
		"previous_id": previous.ID,
		"dish_id":     dish.ID,
	}).Info("order reordered")

	if s.metrics != nil {
		s.metrics.RecordOrderPlaced()
		s.metrics.RecordOrderReordered()
	}
	s.emitEvent(placed, kafka.EventTypeOrderReordered, "reordered from "+previous.ID)

	if !dish.Available {
		s.emitDishDelisted(dish)
	}

	return placed, nil
}

// OrderDetail возвращает плоское представление заказа для клиента.
func (s *Service) OrderDetail(orderID, customerID string) (domain.OrderDetail, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.OrderDetail{}, err
	}
	if order.CustomerID != customerID {
		return domain.OrderDetail{}, domain.ErrOrderForbidden
	}
	return s.buildDetail(order), nil
}

// ListOrders возвращает страницу истории заказов клиента.
func (s *Service) ListOrders(customerID string, q domain.OrderQuery) ([]domain.OrderDetail, int, error) {
	list, total, err := s.orders.ListByCustomer(customerID, q)
	if err != nil {
		return nil, 0, err
	}

	details := make([]domain.OrderDetail, 0, len(list))
	for _, order := range list {
		details = append(details, s.buildDetail(order))
	}
	return details, total, nil
}

// Timeline возвращает хронику событий заказа.
func (s *Service) Timeline(orderID, customerID string) ([]domain.TimelineEvent, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, domain.ErrOrderForbidden
	}
	return s.timeline.List(orderID)
}

// buildDetail собирает OrderDetail, подставляя заглушку вместо удалённого блюда.
func (s *Service) buildDetail(order domain.Order) domain.OrderDetail {
	detail := domain.OrderDetail{
		OrderID:     order.ID,
		Status:      order.Status,
		StatusLabel: order.Status.Label(),
		CreatedAt:   order.CreatedAt,
		AmountMinor: order.AmountMinor,
		Quantity:    order.Quantity,
		Notes:       order.Notes,
		IsRecent:    order.IsRecent(time.Now().UTC()),
		DishMissing: order.DishID == "",
	}
	if order.DishID == "" {
		return detail
	}

	dish, err := s.dishes.Get(order.DishID)
	if err != nil {
		detail.DishMissing = true
		return detail
	}
	detail.DishName = dish.Name
	detail.DishDescription = dish.Description
	detail.DishPriceMinor = dish.PriceMinor
	if dish.CategoryID != "" && s.categories != nil {
		if category, err := s.categories.Get(dish.CategoryID); err == nil {
			detail.DishCategory = category.Name
		}
	}
	return detail
}

func (s *Service) recordStockRejection(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, domain.ErrOutOfStock):
		s.metrics.RecordStockRejection("out_of_stock")
	case errors.Is(err, domain.ErrDishUnavailable):
		s.metrics.RecordStockRejection("unavailable")
	case errors.Is(err, domain.ErrDishNotFound):
		s.metrics.RecordStockRejection("not_found")
	}
}

// emitEvent пишет событие в timeline и transactional outbox.
// Сбой записи события не откатывает уже применённый перевод статуса.
func (s *Service) emitEvent(order domain.Order, eventType kafka.EventType, reason string) {
	if s.timeline != nil {
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     string(eventType),
			Reason:   reason,
			Occurred: time.Now().UTC(),
		}
		if err := s.timeline.Append(event); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("append timeline event failed")
		} else if s.metrics != nil {
			s.metrics.RecordTimelineEvent()
		}
	}

	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(kafka.NewOrderEvent(eventType, order.ID, order.CustomerID, string(order.Status), map[string]interface{}{
		"amount_minor": order.AmountMinor,
		"quantity":     order.Quantity,
		"reason":       reason,
	}))
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("marshal outbox payload failed")
		return
	}
	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     string(eventType),
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue outbox message failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

// emitDishDelisted публикует событие ухода блюда с витрины после распродажи.
func (s *Service) emitDishDelisted(dish domain.Dish) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"dish_id": dish.ID,
		"name":    dish.Name,
		"stock":   dish.Stock,
	})
	if err != nil {
		return
	}
	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "dish",
		AggregateID:   dish.ID,
		EventType:     string(kafka.EventTypeDishDelisted),
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("dish_id", dish.ID).Error("enqueue dish delisted event failed")
	}
}
