// Package outbox публикует события заказов из transactional outbox в брокер.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

var (
	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_outbox_publish_attempts_total",
		Help: "Outbox publish attempts by result: sent, retry_error, failed, dlq_failed.",
	}, []string{"result"})
	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookstore_outbox_pending_records",
		Help: "Pending records in the order event outbox.",
	})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookstore_outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest pending outbox record.",
	})
)

// maxRetryInterval ограничивает паузу между повторами публикации.
const maxRetryInterval = 5 * time.Second

// Worker переносит pending-сообщения из outbox в брокер. Сообщение, не ушедшее за
// maxAttempts попыток, помечается failed и копируется в DLQ, если она настроена.
type Worker struct {
	repo       domain.OutboxRepository
	publisher  domain.OutboxPublisher
	dlq        domain.OutboxPublisher
	logger     *log.Entry
	interval   time.Duration
	batch      int
	attempts   int
	retryDelay time.Duration
	now        func() time.Time
}

// Option настраивает Worker. Нулевые и отрицательные значения оставляют умолчание.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDLQPublisher задаёт publisher для сообщений, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batch = size
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации перед failed/DLQ.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.attempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу экспоненциального backoff; 0 повторяет сразу.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retryDelay = max(delay, 0) }
}

// WithClock подменяет источник времени для DLQ-конверта и метрик возраста.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// Result описывает итог одного цикла публикации.
type Result struct {
	Sent   int
	Failed int
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:       repo,
		publisher:  publisher,
		logger:     log.WithField("component", "outbox-worker"),
		interval:   time.Second,
		batch:      100,
		attempts:   3,
		retryDelay: 50 * time.Millisecond,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce забирает батч в порядке записи и доставляет сообщения по одному.
func (w *Worker) ProcessOnce(ctx context.Context) Result {
	var result Result
	if ctx.Err() != nil {
		return result
	}
	w.observeBacklog(ctx)

	events, err := w.repo.PullPending(ctx, w.batch)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return result
	}

	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		sent, err := w.deliver(ctx, event)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if sent {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	if len(events) > 0 {
		w.observeBacklog(ctx)
	}
	return result
}

// deliver публикует одно сообщение и фиксирует исход в outbox.
func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) (bool, error) {
	logger := w.logger.WithFields(log.Fields{
		"outbox_id":    event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	})

	publishErr := w.publish(ctx, event)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	if publishErr == nil {
		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			logger.WithError(err).Warn("failed to mark outbox message as sent")
		}
		return true, nil
	}

	logger.WithError(publishErr).Error("outbox publish failed after retries")
	publishAttempts.WithLabelValues("failed").Inc()

	if err := w.deadLetter(ctx, event, publishErr); err != nil {
		logger.WithError(err).Warn("failed to publish to DLQ")
		publishAttempts.WithLabelValues("dlq_failed").Inc()
	}
	if err := w.repo.MarkFailed(ctx, event.ID); err != nil {
		logger.WithError(err).Warn("failed to mark outbox message as failed")
	}
	return false, publishErr
}

func (w *Worker) backOff() backoff.BackOff {
	if w.retryDelay == 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.retryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = max(maxRetryInterval, w.retryDelay)
	return b
}

func (w *Worker) publish(ctx context.Context, event domain.OutboxMessage) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := w.publisher.Publish(ctx, event); err != nil {
			publishAttempts.WithLabelValues("retry_error").Inc()
			return struct{}{}, err
		}
		publishAttempts.WithLabelValues("sent").Inc()
		return struct{}{}, nil
	},
		backoff.WithBackOff(w.backOff()),
		backoff.WithMaxTries(uint(w.attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		return fmt.Errorf("publish failed after %d attempts: %w", w.attempts, err)
	}
	return nil
}

func (w *Worker) deadLetter(ctx context.Context, event domain.OutboxMessage, cause error) error {
	if w.dlq == nil {
		return nil
	}
	msg, err := NewDeadLetter(event, cause, w.now()).Message()
	if err != nil {
		return err
	}
	if err := w.dlq.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) observeBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	pendingRecords.Set(float64(stats.PendingCount))
	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = max(w.now().Sub(stats.OldestPendingAt).Seconds(), 0)
	}
	oldestPendingAge.Set(age)
}
