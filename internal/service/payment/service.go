// Package payment реализует сверку платежей: выдача подписанной формы оплаты,
// проверка callback шлюза, опрос статуса и атомарный settlement заказа.
package payment

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/esewa"
	"github.com/vladislavdragonenkov/bookstore/internal/metrics"
)

const tracerName = "github.com/vladislavdragonenkov/bookstore/internal/service/payment"

// Источники изменений в timeline.
const (
	SourceCallback   = "callback"
	SourcePoll       = "poll"
	SourceReconciler = "reconciler"
	SourceAPI        = "api"
)

// Service реализует операции платёжного потока поверх репозиториев и шлюза.
type Service struct {
	cfg         esewa.Config
	orders      domain.OrderRepository
	settlements domain.SettlementStore
	outbox      domain.OutboxRepository
	timeline    domain.TimelineRepository
	gateway     domain.PaymentGateway
	metrics     *metrics.PaymentMetrics
	tracer      trace.Tracer
	logger      *log.Entry
	now         func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithTimeline включает запись событий timeline.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(s *Service) { s.timeline = timeline }
}

// WithMetrics подключает Prometheus-метрики.
func WithMetrics(m *metrics.PaymentMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт платёжный сервис.
func NewService(
	cfg esewa.Config,
	orders domain.OrderRepository,
	settlements domain.SettlementStore,
	outbox domain.OutboxRepository,
	gateway domain.PaymentGateway,
	opts ...Option,
) *Service {
	s := &Service{
		cfg:         cfg,
		orders:      orders,
		settlements: settlements,
		outbox:      outbox,
		gateway:     gateway,
		tracer:      otel.Tracer(tracerName),
		logger:      log.WithField("component", "payment"),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// loadOwned читает заказ пользователя. Чужой заказ неотличим от отсутствующего.
func (s *Service) loadOwned(ctx context.Context, orderID, userID string) (domain.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.OwnedBy(userID) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) load(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, domain.Wrap(domain.ErrInternal, err)
	}
	return order, nil
}
