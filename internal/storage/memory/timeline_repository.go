package memory

import (
	"sort"
	"sync"

	"github.com/TangB5/restaurant/internal/domain"
)

// TimelineRepository хранит хронику заказов в памяти.
type TimelineRepository struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт пустую хронику.
func NewTimelineRepository() *TimelineRepository {
	return &TimelineRepository{events: make(map[string][]domain.TimelineEvent)}
}

func (r *TimelineRepository) Append(event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[event.OrderID] = append(r.events[event.OrderID], event)
	return nil
}

func (r *TimelineRepository) List(orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.events[orderID]
	result := make([]domain.TimelineEvent, len(stored))
	copy(result, stored)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Occurred.Before(result[j].Occurred)
	})
	return result, nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
