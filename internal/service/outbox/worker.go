// Package outbox публикует события заказов и меню из transactional outbox.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/domain"
)

const (
	defaultPollInterval = 1 * time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 3
	defaultBackoffBase  = 50 * time.Millisecond
)

var (
	publishResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restaurant_outbox_publish_attempts_total",
		Help: "Outbox publish attempts by result.",
	}, []string{"result"})
	backlogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "restaurant_outbox_pending_records",
		Help: "Pending records currently sitting in the outbox table.",
	})
	backlogAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "restaurant_outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest unpublished outbox record, seconds.",
	})
)

// Worker вычитывает pending-сообщения из outbox и доставляет их в брокер.
// Сообщение либо уходит в основной sink (с retry), либо после исчерпания
// попыток помечается failed и дублируется в DLQ.
type Worker struct {
	store       domain.OutboxRepository
	sink        domain.OutboxPublisher
	deadLetter  domain.OutboxPublisher
	mirrors     []domain.OutboxPublisher
	logger      *log.Entry
	interval    time.Duration
	batch       int
	attempts    int
	backoffBase time.Duration
}

// Option настраивает Worker при создании.
type Option func(*Worker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDLQPublisher задаёт приёмник для сообщений, которые не удалось
// опубликовать после всех retry.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) {
		w.deadLetter = publisher
	}
}

// WithFanout добавляет best-effort подписчиков (например, websocket-ленту
// бэк-офиса): их ошибки логируются, но не влияют на судьбу сообщения.
func WithFanout(publishers ...domain.OutboxPublisher) Option {
	return func(w *Worker) {
		w.mirrors = append(w.mirrors, publishers...)
	}
}

// WithPollInterval задаёт период опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize задаёт максимум сообщений за один проход.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batch = size
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации до failed/DLQ.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.attempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт базовую задержку exponential backoff.
// Ноль отключает задержки между попытками.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) {
		if delay >= 0 {
			w.backoffBase = delay
		}
	}
}

// NewWorker создаёт outbox worker с дефолтными параметрами,
// скорректированными опциями.
func NewWorker(store domain.OutboxRepository, sink domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		store:       store,
		sink:        sink,
		logger:      log.WithField("component", "outbox-worker"),
		interval:    defaultPollInterval,
		batch:       defaultBatchSize,
		attempts:    defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run крутит polling-цикл до отмены ctx. Первый проход выполняется сразу,
// не дожидаясь тикера.
func (w *Worker) Run(ctx context.Context) {
	if w.store == nil || w.sink == nil {
		w.logger.Warn("outbox worker disabled: no repository or publisher configured")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce вычитывает один батч и прогоняет каждое сообщение
// через publish/fanout/mark.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	w.observeBacklog()

	batch, err := w.store.PullPending(w.batch)
	if err != nil {
		w.logger.WithError(err).Warn("cannot pull pending outbox records")
		return
	}

	for _, msg := range batch {
		if ctx.Err() != nil {
			return
		}
		w.deliver(ctx, msg)
	}

	if len(batch) > 0 {
		w.observeBacklog()
	}
}

// deliver доводит одно сообщение до терминального состояния: sent или failed.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) {
	if err := w.publishWithRetry(ctx, msg); err != nil {
		publishResults.WithLabelValues("failed").Inc()
		w.logger.WithError(err).WithFields(log.Fields{
			"outbox_id":  msg.ID,
			"event_type": msg.EventType,
		}).Error("outbox record exhausted publish attempts")

		if dlqErr := w.divertToDLQ(msg, err); dlqErr != nil {
			publishResults.WithLabelValues("dlq_failed").Inc()
			w.logger.WithError(dlqErr).WithField("outbox_id", msg.ID).Warn("dead-letter publish failed")
		}
		if markErr := w.store.MarkFailed(msg.ID); markErr != nil {
			w.logger.WithError(markErr).WithField("outbox_id", msg.ID).Warn("cannot mark outbox record failed")
		}
		return
	}

	w.mirror(msg)

	if err := w.store.MarkSent(msg.ID); err != nil {
		w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("cannot mark outbox record sent")
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		lastErr = w.sink.Publish(msg)
		if lastErr == nil {
			publishResults.WithLabelValues("sent").Inc()
			return nil
		}
		publishResults.WithLabelValues("retry_error").Inc()

		if attempt >= w.attempts {
			return fmt.Errorf("publish failed after %d attempts: %w", w.attempts, lastErr)
		}

		if delay := w.backoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// mirror рассылает уже опубликованное событие best-effort подписчикам.
func (w *Worker) mirror(msg domain.OutboxMessage) {
	for _, sub := range w.mirrors {
		if sub == nil {
			continue
		}
		if err := sub.Publish(msg); err != nil {
			w.logger.WithError(err).WithField("outbox_id", msg.ID).Debug("fanout subscriber rejected event")
		}
	}
}

func (w *Worker) observeBacklog() {
	stats, err := w.store.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("cannot read outbox backlog stats")
		return
	}

	backlogSize.Set(float64(stats.PendingCount))

	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		if since := time.Since(stats.OldestPendingAt).Seconds(); since > 0 {
			age = since
		}
	}
	backlogAge.Set(age)
}

// backoff удваивает базовую задержку на каждую неудачную попытку.
func (w *Worker) backoff(attempt int) time.Duration {
	if w.backoffBase <= 0 {
		return 0
	}
	const ceiling = time.Duration(1<<63 - 1)
	delay := w.backoffBase
	for i := 1; i < attempt; i++ {
		if delay > ceiling/2 {
			return ceiling
		}
		delay <<= 1
	}
	return delay
}

// divertToDLQ заворачивает исходное событие вместе с текстом ошибки
// и публикует его в dead letter queue. Формат payload читает dlq-reprocess.
func (w *Worker) divertToDLQ(msg domain.OutboxMessage, publishErr error) error {
	if w.deadLetter == nil {
		return nil
	}

	wrapped, err := json.Marshal(map[string]any{
		"outbox_id":        msg.ID,
		"aggregate_type":   msg.AggregateType,
		"aggregate_id":     msg.AggregateID,
		"event_type":       msg.EventType,
		"payload":          json.RawMessage(msg.Payload),
		"publish_error":    publishErr.Error(),
		"dlq_published_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	if err := w.deadLetter.Publish(domain.OutboxMessage{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       wrapped,
	}); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}
