package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения label result для проверки callback.
const (
	ResultSettled   = "settled"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
	ResultRejected  = "rejected"
)

// PaymentMetrics содержит метрики платёжного потока.
type PaymentMetrics struct {
	initiations        prometheus.Counter
	callbacks          *prometheus.CounterVec
	polls              *prometheus.CounterVec
	settlements        prometheus.Counter
	duplicates         prometheus.Counter
	securityViolations *prometheus.CounterVec
	stockShortfalls    prometheus.Counter
	gatewayLatency     *prometheus.HistogramVec
	timelineEvents     prometheus.Counter
}

// NewPaymentMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewPaymentMetrics() *PaymentMetrics {
	return NewPaymentMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPaymentMetricsWithRegisterer регистрирует метрики в указанном registerer.
func NewPaymentMetricsWithRegisterer(registerer prometheus.Registerer) *PaymentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PaymentMetrics{
		initiations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_payment_initiations_total",
			Help: "Total number of signed payment requests issued",
		}),
		callbacks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_payment_callbacks_total",
			Help: "Gateway callbacks by verification result",
		}, []string{"result"}),
		polls: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_payment_polls_total",
			Help: "Status polls by gateway status",
		}, []string{"gateway_status"}),
		settlements: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_payment_settlements_total",
			Help: "Orders settled as paid",
		}),
		duplicates: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_payment_duplicate_settlements_total",
			Help: "Settlement attempts skipped because the order was already paid",
		}),
		securityViolations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_payment_security_violations_total",
			Help: "Callbacks rejected as suspected tampering",
		}, []string{"code"}),
		stockShortfalls: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_stock_shortfalls_total",
			Help: "Book lines whose stock was clamped at zero during settlement",
		}),
		gatewayLatency: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "bookstore_gateway_request_duration_seconds",
			Help:    "Latency of payment gateway status checks",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		}),
	}
}

// RecordInitiation учитывает выданную форму оплаты.
func (m *PaymentMetrics) RecordInitiation() {
	m.initiations.Inc()
}

// RecordCallback учитывает результат обработки callback.
func (m *PaymentMetrics) RecordCallback(result string) {
	m.callbacks.WithLabelValues(result).Inc()
}

// RecordPoll учитывает опрос статуса.
func (m *PaymentMetrics) RecordPoll(gatewayStatus string) {
	m.polls.WithLabelValues(gatewayStatus).Inc()
}

// RecordSettlement учитывает переход заказа в paid.
func (m *PaymentMetrics) RecordSettlement() {
	m.settlements.Inc()
}

// RecordDuplicate учитывает повторный settlement уже оплаченного заказа.
func (m *PaymentMetrics) RecordDuplicate() {
	m.duplicates.Inc()
}

// RecordSecurityViolation учитывает отклонённый callback.
func (m *PaymentMetrics) RecordSecurityViolation(code string) {
	m.securityViolations.WithLabelValues(code).Inc()
}

// RecordStockShortfalls учитывает позиции, по которым остатка не хватило.
func (m *PaymentMetrics) RecordStockShortfalls(n int) {
	m.stockShortfalls.Add(float64(n))
}

// RecordGatewayLatency записывает длительность запроса к шлюзу.
func (m *PaymentMetrics) RecordGatewayLatency(outcome string, d time.Duration) {
	m.gatewayLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *PaymentMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}
