// Package orders реализует оформление заказа из корзины и чтение заказов пользователя.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const defaultListLimit = 100

// Service оформляет и выдаёт заказы.
type Service struct {
	orders   domain.OrderRepository
	books    domain.BookRepository
	carts    domain.CartRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithTimeline включает запись события создания заказа.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(s *Service) { s.timeline = timeline }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис заказов.
func NewService(
	orders domain.OrderRepository,
	books domain.BookRepository,
	carts domain.CartRepository,
	outbox domain.OutboxRepository,
	opts ...Option,
) *Service {
	s := &Service{
		orders: orders,
		books:  books,
		carts:  carts,
		outbox: outbox,
		logger: log.WithField("component", "orders"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateFromCart оформляет заказ из корзины пользователя. Цена фиксируется по каталогу
// на момент оформления, остаток проверяется, корзина после создания очищается.
func (s *Service) CreateFromCart(ctx context.Context, userID string) (domain.Order, error) {
	if userID == "" {
		return domain.Order{}, domain.ErrAuthRequired
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrCartNotFound) {
			return domain.Order{}, domain.ErrCartEmpty
		}
		return domain.Order{}, domain.Wrap(domain.ErrInternal, err)
	}
	if len(cart.Items) == 0 {
		return domain.Order{}, domain.ErrCartEmpty
	}

	now := s.now()
	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, item := range cart.Items {
		book, err := s.books.Get(ctx, item.BookID)
		if errors.Is(err, domain.ErrBookNotFound) {
			// Книга удалена из каталога после добавления в корзину.
			s.logger.WithFields(log.Fields{"user_id": userID, "book_id": item.BookID}).Warn("skipping unknown book in cart")
			continue
		}
		if err != nil {
			return domain.Order{}, domain.Wrap(domain.ErrInternal, err)
		}
		if book.Stock < item.Qty {
			return domain.Order{}, domain.Wrap(domain.ErrInsufficientStock,
				fmt.Errorf("not enough stock for %q", book.Title))
		}
		order.Items = append(order.Items, domain.OrderItem{
			ID:         uuid.NewString(),
			BookID:     book.ID,
			Qty:        item.Qty,
			PriceMinor: book.PriceMinor,
		})
	}
	if len(order.Items) == 0 {
		return domain.Order{}, domain.ErrCartEmpty
	}
	order.TotalMinor = order.ItemsTotal()

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, domain.Wrap(domain.ErrInternal, err)
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"user_id":      userID,
		"total_amount": domain.FormatAmount(order.TotalMinor),
	})
	logger.Info("order created")

	if err := s.carts.Clear(ctx, userID); err != nil {
		logger.WithError(err).Warn("clear cart after order failed")
	}
	s.emitCreated(ctx, order, logger)

	return order, nil
}

// Get возвращает заказ пользователя. Чужой заказ неотличим от отсутствующего.
func (s *Service) Get(ctx context.Context, orderID, userID string) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, domain.Wrap(domain.ErrInternal, err)
	}
	if !order.OwnedBy(userID) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// List возвращает заказы пользователя от новых к старым.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID, defaultListLimit)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err)
	}
	return orders, nil
}

// Timeline возвращает историю заказа пользователя.
func (s *Service) Timeline(ctx context.Context, orderID, userID string) ([]domain.TimelineEvent, error) {
	if _, err := s.Get(ctx, orderID, userID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return nil, nil
	}
	events, err := s.timeline.List(ctx, orderID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err)
	}
	return events, nil
}

func (s *Service) emitCreated(ctx context.Context, order domain.Order, logger *log.Entry) {
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":     order.ID,
		"user_id":      order.UserID,
		"status":       order.Status,
		"total_amount": domain.FormatAmount(order.TotalMinor),
		"items":        len(order.Items),
		"ts":           order.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		logger.WithError(err).Error("marshal event failed")
		return
	}
	if s.outbox != nil {
		msg := domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     domain.EventOrderCreated,
			Payload:       payload,
		}
		if _, err := s.outbox.Enqueue(ctx, msg); err != nil {
			logger.WithError(err).Error("enqueue event failed")
		}
	}
	if s.timeline != nil {
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.EventOrderCreated,
			Source:   "api",
			Occurred: order.CreatedAt,
		}
		if err := s.timeline.Append(ctx, event); err != nil {
			logger.WithError(err).Warn("append timeline event failed")
		}
	}
}
