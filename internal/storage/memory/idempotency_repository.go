package memory

import (
	"sync"
	"time"

	"github.com/TangB5/restaurant/internal/domain"
)

// IdempotencyRepository хранит ключи идемпотентности в памяти.
type IdempotencyRepository struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
}

// NewIdempotencyRepository создаёт пустое хранилище ключей.
func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{records: make(map[string]domain.IdempotencyRecord)}
}

func (r *IdempotencyRepository) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[key]; ok {
		if existing.RequestHash != requestHash {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	now := time.Now().UTC()
	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.records[key] = record
	return record, nil
}

func (r *IdempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return cloneIdempotencyRecord(record), nil
}

func (r *IdempotencyRepository) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *IdempotencyRepository) finish(key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = time.Now().UTC()
	r.records[key] = record
	return nil
}

func (r *IdempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for key, record := range r.records {
		if limit > 0 && deleted >= limit {
			break
		}
		if record.TTLAt.Before(before) {
			delete(r.records, key)
			deleted++
		}
	}
	return deleted, nil
}

// cloneIdempotencyRecord копирует запись вместе с телом ответа,
// чтобы вызывающий не мог изменить хранимое состояние.
func cloneIdempotencyRecord(record domain.IdempotencyRecord) domain.IdempotencyRecord {
	record.ResponseBody = append([]byte(nil), record.ResponseBody...)
	return record
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
