// Package idempotency содержит воркер очистки просроченных idempotency-ключей.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/domain"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultSweepBatch    = 500
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restaurant_idempotency_cleanup_runs_total",
		Help: "Idempotency cleanup runs by result.",
	}, []string{"result"})
	sweepDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "restaurant_idempotency_cleanup_deleted_total",
		Help: "Expired idempotency records removed overall.",
	})
	sweepLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "restaurant_idempotency_cleanup_last_deleted",
		Help: "Records removed by the most recent cleanup run.",
	})
)

// CleanupWorker периодически удаляет просроченные idempotency-записи,
// чтобы таблица ключей не росла бесконечно.
type CleanupWorker struct {
	keys     domain.IdempotencyRepository
	logger   *log.Entry
	interval time.Duration
	batch    int
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithInterval задаёт паузу между проходами очистки.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize задаёт сколько записей удаляется за один запрос.
func WithBatchSize(size int) CleanupOption {
	return func(w *CleanupWorker) {
		if size > 0 {
			w.batch = size
		}
	}
}

// NewCleanupWorker создаёт воркер очистки поверх репозитория ключей.
func NewCleanupWorker(keys domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		keys:     keys,
		logger:   log.WithField("component", "idempotency-cleanup-worker"),
		interval: defaultSweepInterval,
		batch:    defaultSweepBatch,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run выполняет очистку сразу и затем по тикеру до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.keys == nil {
		w.logger.Warn("idempotency cleanup disabled: no repository configured")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) sweep(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, time.Now().UTC())
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil:
		sweepRuns.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("idempotency cleanup pass failed")
	default:
		sweepRuns.WithLabelValues("ok").Inc()
		sweepLastDeleted.Set(float64(deleted))
		if deleted > 0 {
			w.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
		}
	}
}

// DeleteExpired удаляет записи с ttl <= before порциями, пока репозиторий
// возвращает полный батч. Возвращает суммарное число удалённых записей.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := w.keys.DeleteExpired(before, w.batch)
		if err != nil {
			return total, err
		}
		if n > 0 {
			total += n
			sweepDeleted.Add(float64(n))
		}
		if n < w.batch {
			return total, nil
		}
	}
}
