package payment

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/esewa"
	"github.com/vladislavdragonenkov/bookstore/internal/metrics"
)

// CallbackResult описывает итог обработки redirect шлюза на success_url.
type CallbackResult struct {
	OrderID         string               `json:"orderId"`
	OrderStatus     domain.OrderStatus   `json:"orderStatus"`
	GatewayStatus   domain.GatewayStatus `json:"paymentStatus"`
	TransactionCode string               `json:"transactionCode"`
	TotalAmount     string               `json:"totalAmount"`
	// Settled: этот вызов перевёл заказ в paid.
	Settled bool `json:"settled"`
	// Duplicate: заказ уже был оплачен раньше, побочных эффектов не было.
	Duplicate  bool                    `json:"duplicate"`
	Shortfalls []domain.StockShortfall `json:"-"`
}

// Completed сообщает, подтвердил ли шлюз оплату.
func (r CallbackResult) Completed() bool {
	return r.GatewayStatus == domain.GatewayStatusComplete && r.OrderStatus == domain.OrderStatusPaid
}

// VerifyCallback проверяет подпись и сумму callback и применяет его к заказу.
// При ошибке проверки заказ не меняется.
func (s *Service) VerifyCallback(ctx context.Context, encoded string) (CallbackResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.VerifyCallback")
	defer span.End()

	cb, err := esewa.DecodeCallback(encoded)
	if err != nil {
		s.logger.WithError(err).Warn("payment callback without decodable data")
		s.recordCallback(metrics.ResultRejected)
		recordSpanError(span, err)
		return CallbackResult{}, err
	}
	span.SetAttributes(attribute.String("order.id", cb.TransactionUUID))

	logger := s.logger.WithFields(log.Fields{
		"order_id":         cb.TransactionUUID,
		"transaction_code": cb.TransactionCode,
		"gateway_status":   cb.Status,
	})

	if !cb.Verify(s.cfg.SecretKey) {
		s.securityViolation(logger, domain.CodeSignatureMismatch, "payment callback signature mismatch")
		recordSpanError(span, domain.ErrSignatureMismatch)
		return CallbackResult{}, domain.ErrSignatureMismatch
	}
	if cb.ProductCode != s.cfg.MerchantCode {
		s.securityViolation(logger.WithField("product_code", cb.ProductCode),
			domain.CodeSignatureMismatch, "payment callback for another merchant")
		recordSpanError(span, domain.ErrSignatureMismatch)
		return CallbackResult{}, domain.ErrSignatureMismatch
	}

	order, err := s.load(ctx, cb.TransactionUUID)
	if err != nil {
		logger.WithError(err).Warn("payment callback for unknown order")
		s.recordCallback(metrics.ResultRejected)
		recordSpanError(span, err)
		return CallbackResult{}, err
	}

	paid, parseErr := domain.ParseAmount(string(cb.TotalAmount))
	if parseErr != nil || paid != order.TotalMinor {
		s.securityViolation(logger.WithFields(log.Fields{
			"callback_amount": string(cb.TotalAmount),
			"order_amount":    domain.FormatAmount(order.TotalMinor),
		}), domain.CodeAmountMismatch, "payment callback amount mismatch")
		s.appendTimeline(ctx, order.ID, domain.EventPaymentRejected, domain.CodeAmountMismatch, SourceCallback)
		recordSpanError(span, domain.ErrAmountMismatch)
		return CallbackResult{}, domain.ErrAmountMismatch
	}

	result := CallbackResult{
		OrderID:         order.ID,
		GatewayStatus:   cb.GatewayStatus(),
		TransactionCode: cb.TransactionCode,
		TotalAmount:     domain.FormatAmount(paid),
	}

	if result.GatewayStatus == domain.GatewayStatusComplete {
		res, err := s.settle(ctx, order, cb.TransactionCode, SourceCallback)
		if err != nil {
			recordSpanError(span, err)
			return CallbackResult{}, err
		}
		result.OrderStatus = res.Order.Status
		result.Settled = res.Applied
		result.Duplicate = !res.Applied && res.Order.Status == domain.OrderStatusPaid
		result.Shortfalls = res.Shortfalls
		switch {
		case result.Settled:
			s.recordCallback(metrics.ResultSettled)
		case result.Duplicate:
			s.recordCallback(metrics.ResultDuplicate)
		default:
			s.recordCallback(metrics.ResultFailed)
		}
		return result, nil
	}

	status, err := s.markFailed(ctx, order, "gateway status "+strings.ToUpper(cb.Status), SourceCallback)
	if err != nil {
		recordSpanError(span, err)
		return CallbackResult{}, err
	}
	result.OrderStatus = status
	s.recordCallback(metrics.ResultFailed)
	return result, nil
}

// securityViolation логирует подозрение на подделку отдельным событием безопасности.
func (s *Service) securityViolation(logger *log.Entry, code, msg string) {
	logger.WithFields(log.Fields{
		"security_event": true,
		"code":           code,
	}).Error(msg)
	if s.metrics != nil {
		s.metrics.RecordSecurityViolation(code)
	}
	s.recordCallback(metrics.ResultRejected)
}

func (s *Service) recordCallback(result string) {
	if s.metrics != nil {
		s.metrics.RecordCallback(result)
	}
}
