package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// MessageHandler обрабатывает одно сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer - групповой consumer с retry-счётчиком в заголовках
// и отгрузкой безнадёжных сообщений в DLQ.
type Consumer struct {
	group       sarama.ConsumerGroup
	topics      []string
	handler     MessageHandler
	logger      *log.Entry
	wg          sync.WaitGroup
	dlqProducer *Producer
	maxRetries  int
}

// NewConsumer создаёт consumer без DLQ: сообщение после всех retry
// остаётся неподтверждённым.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler) (*Consumer, error) {
	return NewConsumerWithDLQ(brokers, groupID, topics, handler, nil, 3)
}

// NewConsumerWithDLQ создаёт consumer, который после maxRetries неудач
// перекладывает сообщение в dead letter queue.
func NewConsumerWithDLQ(brokers []string, groupID string, topics []string, handler MessageHandler, dlqProducer *Producer, maxRetries int) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return &Consumer{
		group:       group,
		topics:      topics,
		handler:     handler,
		logger:      log.WithField("component", "kafka-consumer"),
		dlqProducer: dlqProducer,
		maxRetries:  maxRetries,
	}, nil
}

// Start запускает consume-цикл в фоне. Возврат из Consume без ошибки
// означает rebalance, поэтому цикл продолжается до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)

	go func() {
		defer c.wg.Done()
		for ctx.Err() == nil {
			if err := c.group.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("consume session ended with error")
			}
		}
	}()

	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и дожидается фоновых горутин.
func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close consumer group: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup реализует sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup реализует sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim вычитывает партицию до закрытия канала или конца сессии.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if session.Context().Err() != nil {
			return nil
		}

		fields := log.Fields{
			"topic":     message.Topic,
			"partition": message.Partition,
			"offset":    message.Offset,
		}
		c.logger.WithFields(fields).Debug("message received")

		if err := c.handleMessageWithRetry(session.Context(), message); err != nil {
			// Offset не двигаем: сообщение будет перечитано после rebalance.
			c.logger.WithError(err).WithFields(fields).Error("message processing gave up")
			continue
		}

		session.MarkMessage(message, "")
	}
	return nil
}

// handleMessageWithRetry пропускает сообщение через handler; когда
// счётчик retry в заголовках достигает лимита, сообщение уходит в DLQ
// и считается обработанным.
func (c *Consumer) handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	if err := c.handler(ctx, message); err != nil {
		attempts := c.getRetryCount(message)
		if attempts < c.maxRetries {
			c.logger.WithFields(log.Fields{
				"topic":       message.Topic,
				"retry_count": attempts,
				"max_retries": c.maxRetries,
			}).Warn("handler failed, message will be retried")
			return err
		}

		if c.dlqProducer == nil {
			return err
		}
		if dlqErr := c.sendToDLQ(message, err); dlqErr != nil {
			c.logger.WithError(dlqErr).Error("dead letter handoff failed")
			return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
		}
		c.logger.WithFields(log.Fields{
			"topic":       message.Topic,
			"retry_count": attempts,
		}).Info("message diverted to DLQ")
	}
	return nil
}

// getRetryCount читает счётчик попыток из заголовка x-retry-count.
func (c *Consumer) getRetryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if string(header.Key) != HeaderRetryCount {
			continue
		}
		if count, err := strconv.Atoi(string(header.Value)); err == nil {
			return count
		}
	}
	return 0
}

// sendToDLQ публикует исходное сообщение вместе с причиной отказа.
func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, processingErr error) error {
	return c.dlqProducer.PublishEvent(TopicDeadLetterQueue, string(message.Key), map[string]interface{}{
		"original_topic":     message.Topic,
		"original_partition": message.Partition,
		"original_offset":    message.Offset,
		"original_key":       string(message.Key),
		"original_value":     string(message.Value),
		"error_message":      processingErr.Error(),
		"failed_at":          time.Now().UTC().Format(time.RFC3339),
		"retry_count":        c.getRetryCount(message),
	})
}

// ParseOrderEvent декодирует OrderEvent из тела сообщения.
func ParseOrderEvent(message *sarama.ConsumerMessage) (*OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("unmarshal order event: %w", err)
	}
	return &event, nil
}

// ParseEventEnvelope декодирует конверт outbox-события из тела сообщения.
func ParseEventEnvelope(message *sarama.ConsumerMessage) (*EventEnvelope, error) {
	var envelope EventEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	return &envelope, nil
}
