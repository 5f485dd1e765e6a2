package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/bookstore/internal/health"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/postgres"
)

// Dependencies содержит хранилища, выбранные конфигурацией.
type Dependencies struct {
	Books       domain.BookRepository
	Carts       domain.CartRepository
	Orders      domain.OrderRepository
	Settlements domain.SettlementStore
	Outbox      domain.OutboxRepository
	Timeline    domain.TimelineRepository
	Idempotency domain.IdempotencyRepository

	// StorageChecker равен nil для in-memory хранилища.
	StorageChecker healthcheck.Checker

	closeFn func() error
}

// Close освобождает подключения к хранилищу.
func (d *Dependencies) Close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// initRuntimeDependencies открывает хранилище по cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		logger.Warn("используется in-memory хранилище, данные не переживут перезапуск")
		return newMemoryDependencies(), nil
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres schema: %w", err)
			}
			logger.Info("схема postgres применена")
		}
		logger.Info("хранилище postgres подключено")
		return &Dependencies{
			Books:          postgres.NewBookRepository(store),
			Carts:          postgres.NewCartRepository(store),
			Orders:         postgres.NewOrderRepository(store),
			Settlements:    store,
			Outbox:         postgres.NewOutboxRepository(store),
			Timeline:       postgres.NewTimelineRepository(store),
			Idempotency:    postgres.NewIdempotencyRepository(store),
			StorageChecker: healthcheck.NewPingChecker("postgres", store, 0),
			closeFn:        store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func newMemoryDependencies() *Dependencies {
	store := memory.NewStore()
	return &Dependencies{
		Books:       store.Books(),
		Carts:       store.Carts(),
		Orders:      store.Orders(),
		Settlements: store,
		Outbox:      store.Outbox(),
		Timeline:    memory.NewTimelineRepository(),
		Idempotency: memory.NewIdempotencyRepository(),
	}
}
