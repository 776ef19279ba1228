package orders

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/domain"
	"github.com/TangB5/restaurant/internal/messaging/kafka"
)

// advanceSources перечисляет статусы, из которых разрешён перевод в целевой.
// Переводы идут строго по конвейеру кухни; завершение — административный
// override без ограничения на исходный статус (nil = любой).
var advanceSources = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPreparing:  {domain.OrderStatusPending},
	domain.OrderStatusReady:      {domain.OrderStatusPreparing},
	domain.OrderStatusDelivering: {domain.OrderStatusReady},
	domain.OrderStatusCompleted:  nil,
}

// BulkResult — итог массовой операции над заказами.
type BulkResult struct {
	// Updated — идентификаторы успешно переведённых заказов.
	Updated []string `json:"updated"`
	// Skipped — пропущенные заказы с причиной пропуска.
	Skipped map[string]string `json:"skipped"`
}

// AdvanceOrders массово переводит заказы в целевой статус. Заказы в
// недопустимом исходном статусе пропускаются, операция продолжается.
func (s *Service) AdvanceOrders(orderIDs []string, target domain.OrderStatus) (BulkResult, error) {
	sources, ok := advanceSources[target]
	if !ok {
		return BulkResult{}, domain.ErrStatusInvalid
	}

	result := BulkResult{Skipped: make(map[string]string)}
	for _, orderID := range orderIDs {
		if err := s.advanceOne(orderID, target, sources); err != nil {
			result.Skipped[orderID] = err.Error()
			continue
		}
		result.Updated = append(result.Updated, orderID)
	}

	if s.metrics != nil && len(result.Updated) > 0 {
		s.metrics.RecordAdminTransition(string(target))
	}
	s.logger.WithFields(log.Fields{
		"target":  target,
		"updated": len(result.Updated),
		"skipped": len(result.Skipped),
	}).Info("bulk status transition applied")

	return result, nil
}

func (s *Service) advanceOne(orderID string, target domain.OrderStatus, sources []domain.OrderStatus) error {
	for attempt := 0; ; attempt++ {
		order, err := s.orders.Get(orderID)
		if err != nil {
			return err
		}

		allowed := len(sources) == 0
		for _, src := range sources {
			if order.Status == src {
				allowed = true
				break
			}
		}
		if !allowed {
			return domain.ErrStatusInvalid
		}

		order.Status = target
		order.UpdatedAt = time.Now().UTC()
		err = s.orders.Save(order)
		if domain.IsVersionConflict(err) && attempt < maxTransitionAttempts-1 {
			continue
		}
		if err != nil {
			return err
		}

		order.Version++
		eventType := kafka.EventTypeOrderStatusChanged
		if target == domain.OrderStatusCompleted {
			eventType = kafka.EventTypeOrderCompleted
			if s.metrics != nil {
				s.metrics.RecordOrderCompleted()
			}
		}
		s.emitEvent(order, eventType, "admin transition to "+string(target))
		return nil
	}
}

// CancelOrders массово отменяет заказы с возвратом остатков. Админская
// отмена шире клиентской: допускает и pending, и preparing.
func (s *Service) CancelOrders(orderIDs []string, reason string) (BulkResult, error) {
	result := BulkResult{Skipped: make(map[string]string)}
	for _, orderID := range orderIDs {
		if err := s.cancelOneAdmin(orderID, reason); err != nil {
			result.Skipped[orderID] = err.Error()
			continue
		}
		result.Updated = append(result.Updated, orderID)
	}

	if s.metrics != nil && len(result.Updated) > 0 {
		s.metrics.RecordAdminTransition(string(domain.OrderStatusFailed))
	}
	s.logger.WithFields(log.Fields{
		"reason":   reason,
		"canceled": len(result.Updated),
		"skipped":  len(result.Skipped),
	}).Info("bulk cancel applied")

	return result, nil
}

func (s *Service) cancelOneAdmin(orderID, reason string) error {
	for attempt := 0; ; attempt++ {
		order, err := s.orders.Get(orderID)
		if err != nil {
			return err
		}
		if !order.CanBeCancelled() {
			return domain.ErrOrderNotCancellable
		}

		order.Status = domain.OrderStatusFailed
		finished, _, err := s.orders.FinishReleasing(order)
		if domain.IsVersionConflict(err) && attempt < maxTransitionAttempts-1 {
			continue
		}
		if err != nil {
			return err
		}

		if s.metrics != nil {
			s.metrics.RecordOrderCanceled()
		}
		s.emitEvent(finished, kafka.EventTypeOrderCanceled, reason)
		return nil
	}
}

// RecomputeAmount пересчитывает сумму заказа по текущей цене блюда.
// Единственный путь изменить снимок суммы; доступен только админке.
func (s *Service) RecomputeAmount(orderID string) (domain.Order, error) {
	for attempt := 0; ; attempt++ {
		order, err := s.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}
		if order.DishID == "" {
			return domain.Order{}, domain.ErrDishNotFound
		}

		dish, err := s.dishes.Get(order.DishID)
		if err != nil {
			return domain.Order{}, err
		}

		previous := order.AmountMinor
		order.AmountMinor = dish.PriceMinor * int64(order.Quantity)
		order.UpdatedAt = time.Now().UTC()
		err = s.orders.Save(order)
		if domain.IsVersionConflict(err) && attempt < maxTransitionAttempts-1 {
			continue
		}
		if err != nil {
			return domain.Order{}, err
		}

		order.Version++
		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"from":     previous,
			"to":       order.AmountMinor,
		}).Info("order amount recomputed")
		s.emitEvent(order, kafka.EventTypeOrderAmountRecomputed, "amount recomputed by admin")
		return order, nil
	}
}
