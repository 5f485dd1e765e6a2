package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderVersionConflict, если ID уже занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя от новых к старым.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// ListByStatus возвращает заказы в статусе status, обновлённые в окне [updatedAfter, updatedBefore].
	// Нулевой updatedAfter снимает нижнюю границу.
	ListByStatus(ctx context.Context, status OrderStatus, updatedAfter, updatedBefore time.Time, limit int) ([]Order, error)
	// CompareAndSetStatus атомарно меняет статус expected → next.
	// Возвращает false, если текущий статус отличается от expected, и ErrInvalidTransition,
	// если переход expected → next запрещён жизненным циклом заказа.
	CompareAndSetStatus(ctx context.Context, id string, expected, next OrderStatus) (bool, error)
}

// BookRepository описывает хранилище каталога.
type BookRepository interface {
	Create(ctx context.Context, book Book) error
	Get(ctx context.Context, id string) (Book, error)
	List(ctx context.Context, query BookQuery) ([]Book, int, error)
	// Update сохраняет название, автора и цену и в той же операции меняет остаток на stockDelta.
	// Если остаток не проходит проверку, не сохраняется ничего.
	Update(ctx context.Context, book Book, stockDelta int32) (Book, error)
	// AdjustStock меняет остаток на delta. Отрицательный результат даёт ErrInsufficientStock,
	// переполнение int32 даёт ErrBookStockTooLarge.
	AdjustStock(ctx context.Context, id string, delta int32) (Book, error)
	// Delete удаляет книгу из каталога. Снимки цен в заказах и корзинах не трогаются.
	Delete(ctx context.Context, id string) error
}

// CartRepository описывает хранилище корзин.
type CartRepository interface {
	// Get возвращает корзину пользователя или ErrCartNotFound.
	Get(ctx context.Context, userID string) (Cart, error)
	Save(ctx context.Context, cart Cart) error
	// Clear очищает корзину; отсутствие корзины ошибкой не считается.
	Clear(ctx context.Context, userID string) error
}

// SettlementStore применяет settlement атомарно вместе с outbox-сообщением.
type SettlementStore interface {
	Settle(ctx context.Context, settlement Settlement, event OutboxMessage) (SettlementResult, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
