package payment

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// FailureResult описывает ответ на redirect шлюза на failure_url.
type FailureResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

const failureReason = "Payment was cancelled or failed on eSewa"

// HandleFailureRedirect только логирует параметры redirect. Заказ не меняется:
// параметры не подписаны, и статус определяется опросом шлюза.
func (s *Service) HandleFailureRedirect(ctx context.Context, params map[string][]string) FailureResult {
	_, span := s.tracer.Start(ctx, "payment.HandleFailureRedirect")
	defer span.End()

	fields := make(log.Fields, len(params))
	for k, v := range params {
		if len(v) > 0 {
			fields["param_"+k] = v[0]
		}
	}

	s.logger.WithFields(fields).Info("payment failure redirect received")
	if s.metrics != nil {
		s.metrics.RecordCallback("failure_redirect")
	}

	return FailureResult{Success: false, Reason: failureReason}
}
