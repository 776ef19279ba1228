package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/app"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

const (
	envHTTPAddr       = "RESTAURANT_HTTP_ADDR"
	envMetricsAddr    = "RESTAURANT_METRICS_ADDR"
	envPostgresDSN    = "RESTAURANT_POSTGRES_DSN"
	envKafkaBrokers   = "RESTAURANT_KAFKA_BROKERS"
	envSESRegion      = "RESTAURANT_SES_REGION"
	envSESAccessKeyID = "RESTAURANT_SES_ACCESS_KEY_ID"
	envSESSecretKey   = "RESTAURANT_SES_SECRET_ACCESS_KEY"
	envSESSender      = "RESTAURANT_SES_SENDER"
	envSESRecipient   = "RESTAURANT_SES_RECIPIENT"
)

type envLookup func(key string) (string, bool)

// readConfigFromEnv формирует конфигурацию приложения, позволяя
// переопределить настройки через переменные окружения.
func readConfigFromEnv(lookup envLookup) app.Config {
	cfg := app.DefaultConfig()

	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set(envHTTPAddr, &cfg.HTTPAddr)
	set(envMetricsAddr, &cfg.MetricsAddr)
	set(envPostgresDSN, &cfg.PostgresDSN)
	set(envKafkaBrokers, &cfg.KafkaBrokers)
	set(envSESRegion, &cfg.Email.Region)
	set(envSESAccessKeyID, &cfg.Email.AccessKeyID)
	set(envSESSecretKey, &cfg.Email.SecretAccessKey)
	set(envSESSender, &cfg.Email.Sender)
	set(envSESRecipient, &cfg.Email.Recipient)

	return cfg
}

func main() {
	setupLogger()
	cfg := readConfigFromEnv(os.LookupEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"postgres":     cfg.PostgresDSN != "",
		"kafka":        cfg.KafkaBrokers != "",
	}).Info("запускаем restaurant-server")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("restaurant-server остановлен")
}
