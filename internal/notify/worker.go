package notify

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/messaging/kafka"
)

// completionSender — используемая воркером часть EmailSender.
type completionSender interface {
	SendOrderCompleted(ctx context.Context, order CompletedOrder) error
}

// NewCompletionHandler возвращает Kafka-handler, который отправляет письмо
// на каждое событие order.completed. Остальные события пропускаются.
func NewCompletionHandler(sender completionSender, logger *log.Entry) kafka.MessageHandler {
	if logger == nil {
		logger = log.New().WithField("component", "notify-worker")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := kafka.ParseEventEnvelope(message)
		if err != nil {
			// Непарсящееся сообщение бессмысленно ретраить.
			logger.WithError(err).Warn("skipping malformed event")
			return nil
		}
		if envelope.EventType != string(kafka.EventTypeOrderCompleted) {
			return nil
		}

		var event kafka.OrderEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			logger.WithError(err).WithField("outbox_id", envelope.ID).Warn("skipping malformed completion payload")
			return nil
		}

		order := CompletedOrder{
			OrderID:    event.OrderID,
			CustomerID: event.CustomerID,
		}
		if raw, ok := event.Metadata["amount_minor"]; ok {
			if amount, ok := raw.(float64); ok {
				order.AmountMinor = int64(amount)
			}
		}

		// Ошибка отправки возвращается наружу: consumer повторит и при
		// исчерпании retry переложит сообщение в DLQ.
		return sender.SendOrderCompleted(ctx, order)
	}
}
