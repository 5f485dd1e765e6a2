package payment

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// settle переводит заказ в paid одной атомарной операцией хранилища.
// Повторный вызов для оплаченного заказа возвращает Applied == false без побочных эффектов.
func (s *Service) settle(ctx context.Context, order domain.Order, paymentRefID, source string) (domain.SettlementResult, error) {
	logger := s.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"user_id":        order.UserID,
		"payment_ref_id": paymentRefID,
		"source":         source,
	})

	now := s.now()
	st := domain.NewSettlement(order, paymentRefID, now)

	paidOrder := order
	paidOrder.Status = domain.OrderStatusPaid
	paidOrder.PaymentRefID = paymentRefID
	event := s.orderEvent(paidOrder, domain.EventOrderPaid, "", source, now)

	res, err := s.settlements.Settle(ctx, st, event)
	if err != nil {
		logger.WithError(err).Error("settlement failed")
		if domain.KindOf(err) == domain.KindNotFound {
			return domain.SettlementResult{}, domain.ErrOrderNotFound
		}
		return domain.SettlementResult{}, domain.Wrap(domain.ErrInternal, err)
	}

	if !res.Applied {
		if res.Order.Status == domain.OrderStatusPaid {
			logger.Info("order already paid, settlement skipped")
			if s.metrics != nil {
				s.metrics.RecordDuplicate()
			}
		} else {
			logger.WithField("order_status", res.Order.Status).
				Error("gateway reported payment for order that cannot be settled")
		}
		return res, nil
	}

	logger.Info("order settled")
	if s.metrics != nil {
		s.metrics.RecordSettlement()
	}
	s.appendTimeline(ctx, order.ID, domain.EventOrderPaid, paymentRefID, source)

	if len(res.Shortfalls) > 0 {
		for _, sf := range res.Shortfalls {
			logger.WithFields(log.Fields{
				"book_id":   sf.BookID,
				"requested": sf.Requested,
				"available": sf.Available,
			}).Warn("stock shortfall at settlement, stock clamped at zero")
			s.appendTimeline(ctx, order.ID, domain.EventStockShortfall, sf.BookID, source)
		}
		if s.metrics != nil {
			s.metrics.RecordStockShortfalls(len(res.Shortfalls))
		}
	}

	return res, nil
}

// markFailed переводит pending → failed. Оплаченный заказ не понижается.
func (s *Service) markFailed(ctx context.Context, order domain.Order, reason, source string) (domain.OrderStatus, error) {
	return s.transition(ctx, order, domain.OrderStatusPending, domain.OrderStatusFailed,
		domain.EventOrderPaymentFailed, reason, source)
}

// markPending возвращает failed → pending, пока шлюз не принял решения.
func (s *Service) markPending(ctx context.Context, order domain.Order, source string) (domain.OrderStatus, error) {
	return s.transition(ctx, order, domain.OrderStatusFailed, domain.OrderStatusPending,
		domain.EventOrderPaymentPending, "gateway decision pending", source)
}

// transition выполняет CAS expected → next и возвращает фактический статус заказа.
func (s *Service) transition(
	ctx context.Context,
	order domain.Order,
	expected, next domain.OrderStatus,
	eventType, reason, source string,
) (domain.OrderStatus, error) {
	logger := s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     expected,
		"to":       next,
		"source":   source,
	})

	if order.Status != expected {
		// Быстрый путь без записи: заказ уже не в ожидаемом статусе.
		return order.Status, nil
	}

	swapped, err := s.orders.CompareAndSetStatus(ctx, order.ID, expected, next)
	if err != nil {
		logger.WithError(err).Error("order status update failed")
		return "", domain.Wrap(domain.ErrInternal, err)
	}
	if !swapped {
		current, err := s.load(ctx, order.ID)
		if err != nil {
			return "", err
		}
		logger.WithField("order_status", current.Status).Debug("order status changed concurrently")
		return current.Status, nil
	}

	logger.Info("order status changed")
	now := s.now()
	order.Status = next
	if _, err := s.outbox.Enqueue(ctx, s.orderEvent(order, eventType, reason, source, now)); err != nil {
		logger.WithError(err).Error("enqueue event failed")
	}
	s.appendTimeline(ctx, order.ID, eventType, reason, source)

	return next, nil
}

// orderEvent строит outbox-сообщение о заказе.
func (s *Service) orderEvent(order domain.Order, eventType, reason, source string, ts time.Time) domain.OutboxMessage {
	payload := map[string]interface{}{
		"order_id":     order.ID,
		"user_id":      order.UserID,
		"status":       order.Status,
		"total_amount": domain.FormatAmount(order.TotalMinor),
		"source":       source,
		"ts":           ts.UTC().Format(time.RFC3339Nano),
	}
	if order.PaymentRefID != "" {
		payload["payment_ref_id"] = order.PaymentRefID
	}
	if reason != "" {
		payload["reason"] = reason
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
	}

	return domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
}

func (s *Service) appendTimeline(ctx context.Context, orderID, eventType, reason, source string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Source:   source,
		Occurred: s.now(),
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append timeline event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(domain.KindOf(err)))
}
