package payment

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/esewa"
)

// OrderSummary содержит краткие данные заказа в ответе инициации.
type OrderSummary struct {
	ID          string `json:"id"`
	TotalAmount string `json:"totalAmount"`
}

// PaymentRequest - всё, что нужно клиенту для перехода на форму оплаты.
type PaymentRequest struct {
	PaymentURL string           `json:"paymentUrl"`
	Params     esewa.FormParams `json:"params"`
	Order      OrderSummary     `json:"order"`
}

// InitiatePayment формирует подписанную форму оплаты заказа. Состояние заказа не меняется.
func (s *Service) InitiatePayment(ctx context.Context, orderID, userID string) (PaymentRequest, error) {
	ctx, span := s.tracer.Start(ctx, "payment.InitiatePayment")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.loadOwned(ctx, orderID, userID)
	if err != nil {
		recordSpanError(span, err)
		return PaymentRequest{}, err
	}

	switch order.Status {
	case domain.OrderStatusPaid:
		return PaymentRequest{}, domain.ErrOrderAlreadyPaid
	case domain.OrderStatusCancelled:
		return PaymentRequest{}, domain.ErrOrderCancelled
	}

	params := esewa.NewFormParams(s.cfg, order.TotalMinor, order.ID)

	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"user_id":      userID,
		"total_amount": params.TotalAmount,
	}).Info("payment initiated")
	s.appendTimeline(ctx, order.ID, domain.EventPaymentInitiated, "", SourceAPI)
	if s.metrics != nil {
		s.metrics.RecordInitiation()
	}

	return PaymentRequest{
		PaymentURL: s.cfg.PaymentURL,
		Params:     params,
		Order: OrderSummary{
			ID:          order.ID,
			TotalAmount: params.TotalAmount,
		},
	}, nil
}
