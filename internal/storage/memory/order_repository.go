package memory

import (
	"sort"
	"time"

	"github.com/TangB5/restaurant/internal/domain"
)

type orderRepository struct {
	store *Store
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	order, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *orderRepository) ListByCustomer(customerID string, q domain.OrderQuery) ([]domain.Order, int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matched := make([]domain.Order, 0)
	for _, order := range r.store.orders {
		if order.CustomerID != customerID {
			continue
		}
		dishName := ""
		if dish, ok := r.store.dishes[order.DishID]; ok {
			dishName = dish.Name
		}
		if !q.Matches(order, dishName) {
			continue
		}
		matched = append(matched, order)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	offset := int(q.Offset())
	if offset >= total {
		return []domain.Order{}, total, nil
	}
	end := offset + int(q.Limit())
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *orderRepository) ListByStatus(status domain.OrderStatus, limit int) ([]domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.store.orders {
		if order.Status == status {
			result = append(result, order)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *orderRepository) Save(order domain.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	r.store.orders[order.ID] = order
	return nil
}

// PlaceReserving атомарно списывает остаток и создаёт заказ. Либо происходит
// и то и другое, либо ничего — частичных состояний не бывает.
func (r *orderRepository) PlaceReserving(order domain.Order) (domain.Order, domain.Dish, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.orders[order.ID]; exists {
		return domain.Order{}, domain.Dish{}, domain.ErrOrderVersionConflict
	}

	dish, err := r.store.reserveLocked(order.DishID, order.Quantity)
	if err != nil {
		return domain.Order{}, domain.Dish{}, err
	}

	if order.AmountMinor == 0 {
		order.AmountMinor = dish.PriceMinor * int64(order.Quantity)
	}
	r.store.orders[order.ID] = order
	return order, dish, nil
}

// FinishReleasing атомарно переводит заказ в терминальный статус и возвращает
// остаток на склад. Если блюдо уже удалено, возврат пропускается молча.
func (r *orderRepository) FinishReleasing(order domain.Order) (domain.Order, domain.Dish, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.orders[order.ID]
	if !ok {
		return domain.Order{}, domain.Dish{}, domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.Order{}, domain.Dish{}, domain.ErrOrderVersionConflict
	}

	order.Version++
	order.UpdatedAt = time.Now().UTC()
	r.store.orders[order.ID] = order

	var dish domain.Dish
	if order.DishID != "" {
		if released, err := r.store.releaseLocked(order.DishID, order.Quantity); err == nil {
			dish = released
		}
	}
	return order, dish, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
