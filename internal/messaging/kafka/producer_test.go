package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndSucceed()

	event := NewOrderEvent(
		EventTypeOrderPlaced,
		"order-123",
		"customer-1",
		"pending",
		map[string]interface{}{
			"dish_id": "dish-1",
		},
	)

	err := producer.PublishEvent(TopicOrderEvents, "order-123", event)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewOrderEvent(EventTypeOrderPlaced, "order-123", "customer-1", "pending", nil)

	err := producer.PublishEvent(TopicOrderEvents, "order-123", event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewOrderEvent(t *testing.T) {
	orderID := "order-123"
	customerID := "customer-1"
	status := "preparing"
	metadata := map[string]interface{}{
		"amount_minor": 4500,
	}

	event := NewOrderEvent(EventTypeOrderStatusChanged, orderID, customerID, status, metadata)

	if event.EventType != EventTypeOrderStatusChanged {
		t.Errorf("expected event type %s, got %s", EventTypeOrderStatusChanged, event.EventType)
	}
	if event.OrderID != orderID {
		t.Errorf("expected order id %s, got %s", orderID, event.OrderID)
	}
	if event.CustomerID != customerID {
		t.Errorf("expected customer id %s, got %s", customerID, event.CustomerID)
	}
	if event.Status != status {
		t.Errorf("expected status %s, got %s", status, event.Status)
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}
