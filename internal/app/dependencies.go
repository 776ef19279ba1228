package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/domain"
	"github.com/TangB5/restaurant/internal/storage/memory"
	"github.com/TangB5/restaurant/internal/storage/postgres"
)

// Dependencies содержит хранилища приложения. При пустом DSN собирается
// in-memory вариант: удобно для разработки и демо без инфраструктуры.
type Dependencies struct {
	// Store не nil только в postgres-режиме.
	Store       *postgres.Store
	Dishes      domain.DishRepository
	Categories  domain.CategoryRepository
	Orders      domain.OrderRepository
	Outbox      domain.OutboxRepository
	Timeline    domain.TimelineRepository
	Idempotency domain.IdempotencyRepository
	Logger      *log.Entry
}

// NewDependencies создаёт хранилища по конфигурации. В postgres-режиме
// заодно применяет недостающие миграции.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	if cfg.PostgresDSN == "" {
		logger.Info("postgres DSN не задан, используем in-memory хранилище")
		store := memory.NewStore()
		return &Dependencies{
			Dishes:      store.DishRepository(),
			Categories:  store.CategoryRepository(),
			Orders:      store.OrderRepository(),
			Outbox:      memory.NewOutboxRepository(),
			Timeline:    memory.NewTimelineRepository(),
			Idempotency: memory.NewIdempotencyRepository(),
			Logger:      logger,
		}, nil
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("postgres хранилище инициализировано")

	return &Dependencies{
		Store:       store,
		Dishes:      postgres.NewDishRepository(store),
		Categories:  postgres.NewCategoryRepository(store),
		Orders:      postgres.NewOrderRepository(store),
		Outbox:      postgres.NewOutboxRepository(store),
		Timeline:    postgres.NewTimelineRepository(store),
		Idempotency: postgres.NewIdempotencyRepository(store),
		Logger:      logger,
	}, nil
}

// Close освобождает подключение к базе, если оно было открыто.
func (d *Dependencies) Close() {
	if d == nil || d.Store == nil {
		return
	}
	if err := d.Store.Close(); err != nil {
		d.Logger.WithError(err).Warn("failed to close postgres store")
	}
}
