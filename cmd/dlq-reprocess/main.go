// Команда dlq-reprocess возвращает сообщения из restaurant.dlq обратно в
// рабочие topic-и. В DLQ попадают два вида сообщений: конверты outbox-воркера,
// который не смог опубликовать событие, и необработанные сообщения
// consumer-ов. По умолчанию — dry-run: кандидаты только логируются.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

type replayRecord struct {
	topic string
	key   string
	value []byte
}

// consumerDLQPayload — формат, в котором consumer складывает необработанные
// сообщения в DLQ.
type consumerDLQPayload struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
}

// outboxDLQPayload — вложенный payload конверта, который outbox worker
// публикует в DLQ после исчерпания retry.
type outboxDLQPayload struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

var newReplayDependencies = func(cfg config) (offsetClient, partitionConsumerSource, replayProducer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	consumer := saramaConsumerAdapter{consumer: rawConsumer}

	if !cfg.execute {
		return client, consumer, nil, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Compression = sarama.CompressionSnappy
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, consumer, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: RESTAURANT_KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.targetTopic, "target-topic", "", "force target topic; empty routes by aggregate type")
	flag.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("RESTAURANT_KAFKA_BROKERS")
	}

	cfg.brokers = parseBrokers(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or RESTAURANT_KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return config{}, fmt.Errorf("source-topic is required")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	client, consumer, producer, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	closers := []func() error{}
	if producer != nil {
		closers = append(closers, producer.Close)
	}
	if consumer != nil {
		closers = append(closers, consumer.Close)
	}
	if client != nil {
		closers = append(closers, client.Close)
	}
	defer func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}()

	return runReplay(ctx, cfg, client, consumer, producer)
}

func runReplay(ctx context.Context, cfg config, client offsetClient, consumer partitionConsumerSource, producer replayProducer) error {
	if client == nil || consumer == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && producer == nil {
		return fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := client.Partitions(cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total partitionStats
	for _, partition := range partitions {
		remaining := cfg.limit - total.processed
		if remaining <= 0 {
			break
		}

		stats, err := processPartition(ctx, consumer, client, producer, cfg, partition, remaining)
		if err != nil {
			return err
		}
		total.add(stats)
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}

	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")

	return nil
}

type partitionStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *partitionStats) add(other partitionStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// scanWindow - границы чтения партиции: [start, end) без выхода за
// доступные offset-ы.
type scanWindow struct {
	start int64
	end   int64
}

func resolveScanWindow(client offsetClient, cfg config, partition int32, limit int) (scanWindow, bool, error) {
	oldest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return scanWindow{}, false, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return scanWindow{}, false, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return scanWindow{}, false, nil
	}

	window := scanWindow{start: oldest, end: newest}
	if cfg.fromNewest {
		if tail := newest - int64(limit); tail > oldest {
			window.start = tail
		}
	}
	return window, true, nil
}

// handleDLQMessage классифицирует одно DLQ-сообщение и либо публикует
// (execute), либо логирует кандидата (dry-run).
func handleDLQMessage(msg *sarama.ConsumerMessage, cfg config, producer replayProducer, stats *partitionStats) error {
	stats.processed++

	record, ok, err := extractReplayRecord(msg, cfg.targetTopic)
	if err != nil {
		stats.skipped++
		log.WithError(err).WithFields(log.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Warn("skip unsupported dlq message")
		return nil
	}
	if !ok {
		stats.skipped++
		return nil
	}

	if !cfg.execute {
		log.WithFields(log.Fields{
			"partition":    msg.Partition,
			"offset":       msg.Offset,
			"target_topic": record.topic,
			"key":          record.key,
		}).Info("dlq replay candidate")
		stats.replayed++
		return nil
	}

	if err := publishReplay(producer, record); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	stats.replayed++
	return nil
}

func processPartition(
	ctx context.Context,
	consumer partitionConsumerSource,
	client offsetClient,
	producer replayProducer,
	cfg config,
	partition int32,
	limit int,
) (partitionStats, error) {
	var stats partitionStats
	if limit <= 0 {
		return stats, nil
	}

	window, ok, err := resolveScanWindow(client, cfg, partition, limit)
	if err != nil || !ok {
		return stats, err
	}

	pc, err := consumer.ConsumePartition(cfg.sourceTopic, partition, window.start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()

		case <-idle.C:
			return stats, nil

		case err := <-pc.Errors():
			if err != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}

		case msg, open := <-pc.Messages():
			if !open || msg == nil {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(cfg.idleTimeout)

			// За пределами окна лежат сообщения, записанные уже
			// после старта утилиты.
			if msg.Offset >= window.end {
				return stats, nil
			}

			if err := handleDLQMessage(msg, cfg, producer, &stats); err != nil {
				return stats, err
			}

			if msg.Offset+1 >= window.end {
				return stats, nil
			}
		}
	}

	return stats, nil
}

func publishReplay(producer replayProducer, record replayRecord) error {
	if producer == nil {
		return fmt.Errorf("producer is nil")
	}

	producerMessage := &sarama.ProducerMessage{
		Topic:     record.topic,
		Key:       sarama.StringEncoder(record.key),
		Value:     sarama.ByteEncoder(record.value),
		Timestamp: time.Now().UTC(),
	}

	_, _, err := producer.SendMessage(producerMessage)
	return err
}

// extractReplayRecord восстанавливает исходное сообщение из DLQ-записи.
// Возвращает ok=false для сообщений, которые воспроизвести нельзя.
func extractReplayRecord(msg *sarama.ConsumerMessage, forcedTopic string) (replayRecord, bool, error) {
	// Сообщения consumer-а несут исходные topic и тело как есть.
	var fromConsumer consumerDLQPayload
	if err := json.Unmarshal(msg.Value, &fromConsumer); err == nil && fromConsumer.OriginalValue != "" {
		topic := firstNonEmpty(forcedTopic, strings.TrimSpace(fromConsumer.OriginalTopic), kafka.TopicOrderEvents)
		return replayRecord{
			topic: topic,
			key:   fromConsumer.OriginalKey,
			value: []byte(fromConsumer.OriginalValue),
		}, true, nil
	}

	// Конверт outbox-воркера: исходное событие лежит внутри dlq-payload.
	var envelope kafka.EventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return replayRecord{}, false, nil
	}
	if len(envelope.Payload) == 0 {
		return replayRecord{}, false, nil
	}

	var dlqPayload outboxDLQPayload
	if err := json.Unmarshal(envelope.Payload, &dlqPayload); err != nil {
		return replayRecord{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(dlqPayload.Payload) == 0 {
		return replayRecord{}, false, fmt.Errorf("outbox dlq payload does not contain original event payload")
	}

	replay := kafka.EventEnvelope{
		ID:            firstNonEmpty(dlqPayload.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(dlqPayload.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(dlqPayload.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(dlqPayload.EventType, envelope.EventType),
		Payload:       dlqPayload.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return replayRecord{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	key := replay.AggregateID
	if key == "" {
		key = replay.ID
	}

	return replayRecord{
		topic: replayTopic(replay.AggregateType, forcedTopic),
		key:   key,
		value: encoded,
	}, true, nil
}

// replayTopic выбирает topic так же, как это делает роутер outbox-воркера.
func replayTopic(aggregateType, forcedTopic string) string {
	if forcedTopic != "" {
		return forcedTopic
	}
	if aggregateType == "dish" {
		return kafka.TopicMenuEvents
	}
	return kafka.TopicOrderEvents
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
