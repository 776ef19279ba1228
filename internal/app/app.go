package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/TangB5/restaurant/internal/health"
	"github.com/TangB5/restaurant/internal/messaging/kafka"
	"github.com/TangB5/restaurant/internal/notify"
	"github.com/TangB5/restaurant/internal/service/catalog"
	idemsvc "github.com/TangB5/restaurant/internal/service/idempotency"
	"github.com/TangB5/restaurant/internal/service/orders"
	"github.com/TangB5/restaurant/internal/service/outbox"
	"github.com/TangB5/restaurant/internal/transport/httpapi"
	"github.com/TangB5/restaurant/internal/version"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	// PostgresDSN пустой — приложение работает на in-memory хранилище.
	PostgresDSN string
	// KafkaBrokers — список брокеров через запятую; пустой — без Kafka.
	KafkaBrokers string
	Email        notify.EmailConfig
}

// DefaultConfig возвращает базовые адреса для HTTP API и метрик.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
	}
}

func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	ordersSvc := orders.NewService(
		deps.Dishes,
		deps.Orders,
		deps.Categories,
		deps.Outbox,
		deps.Timeline,
		log.WithField("component", "orders"),
	)
	catalogSvc := catalog.NewService(
		deps.Dishes,
		deps.Categories,
		deps.Outbox,
		log.WithField("component", "catalog"),
	)

	feedHub := httpapi.NewFeedHub(log.WithField("component", "feed"))
	go feedHub.Run(ctx.Done())

	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)

	// Без Kafka лента бэк-офиса остаётся единственным потребителем outbox:
	// сообщения уходят в websocket и помечаются отправленными.
	workerOptions := []outbox.Option{
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
	}
	var outboxWorker *outbox.Worker
	if kafkaProducer != nil {
		workerOptions = append(workerOptions,
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)),
			outbox.WithFanout(feedHub),
		)
		outboxWorker = outbox.NewWorker(deps.Outbox, kafka.NewEventRouter(kafkaProducer), workerOptions...)
	} else {
		logger.Info("kafka не настроен, outbox публикует только в websocket-ленту")
		outboxWorker = outbox.NewWorker(deps.Outbox, feedHub, workerOptions...)
	}
	go outboxWorker.Run(ctx)

	cleanupWorker := idemsvc.NewCleanupWorker(
		deps.Idempotency,
		idemsvc.WithLogger(log.WithField("component", "idempotency-cleanup")),
	)
	go cleanupWorker.Run(ctx)

	completionConsumer := startCompletionConsumer(ctx, cfg, kafkaProducer, logger)

	healthHandler := healthcheck.NewHandler(version.String())
	if deps.Store != nil {
		store := deps.Store
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(pingCtx)
		}))
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiHandler := httpapi.NewHandler(ordersSvc, catalogSvc, deps.Idempotency, log.WithField("component", "httpapi"))
	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(apiHandler, feedHub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		stopConsumer(completionConsumer, logger)
		closeKafka(kafkaProducer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		stopConsumer(completionConsumer, logger)
		closeKafka(kafkaProducer, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus
// и health-эндпоинты.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
