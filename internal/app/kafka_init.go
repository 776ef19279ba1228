package app

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/messaging/kafka"
	"github.com/TangB5/restaurant/internal/notify"
)

const (
	completionConsumerGroup = "restaurant-notify"
	completionMaxRetries    = 3
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой или если произошла ошибка.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	if brokers == "" {
		return nil, nil
	}

	brokerList := strings.Split(brokers, ",")
	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// startCompletionConsumer подписывает email-уведомления о выданных заказах
// на topic заказов. Возвращает nil, если уведомления не сконфигурированы
// или consumer не удалось создать: приложение работает дальше без них.
func startCompletionConsumer(ctx context.Context, cfg Config, producer *kafka.Producer, logger *log.Entry) *kafka.Consumer {
	if producer == nil || !cfg.Email.Enabled() {
		return nil
	}

	sender, err := notify.NewEmailSender(ctx, cfg.Email, log.WithField("component", "notify"))
	if err != nil {
		logger.WithError(err).Warn("email sender init failed, notifications disabled")
		return nil
	}

	handler := notify.NewCompletionHandler(sender, log.WithField("component", "notify"))
	brokers := strings.Split(cfg.KafkaBrokers, ",")
	consumer, err := kafka.NewConsumerWithDLQ(
		brokers,
		completionConsumerGroup,
		[]string{kafka.TopicOrderEvents},
		handler,
		producer,
		completionMaxRetries,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create completion consumer, notifications disabled")
		return nil
	}

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("completion consumer stopped")
		}
	}()

	logger.Info("completion consumer started")
	return consumer
}

// stopConsumer останавливает consumer если он не nil.
func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop completion consumer")
	}
}
