package payment

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// StatusResult описывает ответ на опрос статуса оплаты.
type StatusResult struct {
	OrderID       string               `json:"orderId"`
	OrderStatus   domain.OrderStatus   `json:"orderStatus"`
	PaymentStatus domain.GatewayStatus `json:"paymentStatus"`
	RefID         string               `json:"refId"`
}

// PollStatus запрашивает у шлюза статус оплаты заказа пользователя и применяет его.
// Ошибка шлюза возвращается как UpstreamFailure без изменения заказа.
func (s *Service) PollStatus(ctx context.Context, orderID, userID string) (StatusResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.PollStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.loadOwned(ctx, orderID, userID)
	if err != nil {
		recordSpanError(span, err)
		return StatusResult{}, err
	}
	res, err := s.poll(ctx, order, SourcePoll)
	if err != nil {
		recordSpanError(span, err)
	}
	return res, err
}

// ReconcileOrder выполняет тот же опрос без проверки владельца; вызывается фоновым сверщиком.
func (s *Service) ReconcileOrder(ctx context.Context, orderID string) (StatusResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.ReconcileOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.load(ctx, orderID)
	if err != nil {
		recordSpanError(span, err)
		return StatusResult{}, err
	}
	res, err := s.poll(ctx, order, SourceReconciler)
	if err != nil {
		recordSpanError(span, err)
	}
	return res, err
}

func (s *Service) poll(ctx context.Context, order domain.Order, source string) (StatusResult, error) {
	logger := s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"source":   source,
	})

	report, err := s.checkStatus(ctx, order)
	if err != nil {
		logger.WithError(err).Warn("payment status check failed")
		return StatusResult{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordPoll(string(report.Status))
	}
	logger = logger.WithField("gateway_status", report.Status)

	result := StatusResult{
		OrderID:       order.ID,
		PaymentStatus: report.Status,
		RefID:         report.RefID,
	}

	switch {
	case report.Status == domain.GatewayStatusNotFound && source == SourceReconciler:
		// Шлюз не знает транзакцию: пользователь мог ещё не дойти до оплаты.
		// Фоновая сверка не закрывает такой заказ, решение остаётся за callback или опросом пользователя.
		result.OrderStatus = order.Status
	case report.Status == domain.GatewayStatusComplete:
		res, err := s.settle(ctx, order, report.RefID, source)
		if err != nil {
			return StatusResult{}, err
		}
		result.OrderStatus = res.Order.Status
	case report.Status.InProgress():
		status, err := s.markPending(ctx, order, source)
		if err != nil {
			return StatusResult{}, err
		}
		result.OrderStatus = status
	default:
		status, err := s.markFailed(ctx, order, "gateway status "+string(report.Status), source)
		if err != nil {
			return StatusResult{}, err
		}
		result.OrderStatus = status
	}

	logger.WithField("order_status", result.OrderStatus).Debug("payment status applied")
	return result, nil
}

func (s *Service) checkStatus(ctx context.Context, order domain.Order) (domain.StatusReport, error) {
	query := domain.StatusQuery{
		ProductCode:     s.cfg.MerchantCode,
		TotalAmount:     domain.FormatAmount(order.TotalMinor),
		TransactionUUID: order.ID,
	}

	start := time.Now()
	report, err := s.gateway.CheckStatus(ctx, query)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if s.metrics != nil {
		s.metrics.RecordGatewayLatency(outcome, time.Since(start))
	}
	if err != nil {
		if domain.KindOf(err) == domain.KindUpstreamFailure {
			return domain.StatusReport{}, err
		}
		return domain.StatusReport{}, domain.Wrap(domain.ErrGatewayUnavailable, err)
	}
	return report, nil
}
