package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TangB5/restaurant/internal/domain"
)

type outboxStatus string

const (
	outboxStatusPending outboxStatus = "pending"
	outboxStatusSent    outboxStatus = "sent"
	outboxStatusFailed  outboxStatus = "failed"
)

type outboxRecord struct {
	msg       domain.OutboxMessage
	status    outboxStatus
	attempts  int
	createdAt time.Time
}

// OutboxRepository — in-memory реализация transactional outbox.
type OutboxRepository struct {
	mu      sync.Mutex
	records map[string]*outboxRecord
}

// NewOutboxRepository создаёт пустой outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{records: make(map[string]*outboxRecord)}
}

func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	r.records[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		createdAt: time.Now().UTC(),
	}
	return msg, nil
}

func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make([]*outboxRecord, 0)
	for _, rec := range r.records {
		if rec.status == outboxStatusPending {
			pending = append(pending, rec)
		}
	}
	// Публикуем в порядке записи, чтобы события заказа не обгоняли друг друга.
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].createdAt.Before(pending[j].createdAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		rec.attempts++
		result = append(result, rec.msg)
	}
	return result, nil
}

func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := domain.OutboxStats{}
	for _, rec := range r.records {
		if rec.status != outboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.createdAt
		}
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(id string) error {
	return r.mark(id, outboxStatusSent)
}

func (r *OutboxRepository) MarkFailed(id string) error {
	return r.mark(id, outboxStatusFailed)
}

func (r *OutboxRepository) mark(id string, status outboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	rec.status = status
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
