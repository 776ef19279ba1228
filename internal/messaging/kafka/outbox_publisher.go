package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/TangB5/restaurant/internal/domain"
)

// EventEnvelope — формат сообщения, в котором outbox-записи уходят в Kafka.
type EventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	// Ключ партиционирования: все события одного заказа идут в одну партицию,
	// чтобы потребители видели их в порядке записи.
	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := EventEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	return p.producer.PublishEvent(p.topic, key, envelope)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

// EventRouter раскладывает outbox-сообщения по topic-ам в зависимости от
// типа агрегата: события блюд уходят в topic меню, всё остальное — в topic
// заказов.
type EventRouter struct {
	orders domain.OutboxPublisher
	menu   domain.OutboxPublisher
}

// NewEventRouter создаёт роутер поверх одного producer-а.
func NewEventRouter(producer *Producer) domain.OutboxPublisher {
	return &EventRouter{
		orders: NewOutboxPublisher(producer, TopicOrderEvents),
		menu:   NewOutboxPublisher(producer, TopicMenuEvents),
	}
}

func (r *EventRouter) Publish(event domain.OutboxMessage) error {
	if event.AggregateType == "dish" {
		return r.menu.Publish(event)
	}
	return r.orders.Publish(event)
}

var _ domain.OutboxPublisher = (*EventRouter)(nil)
