package domain

import "time"

// Типы событий timeline и outbox.
const (
	EventOrderCreated        = "OrderCreated"
	EventPaymentInitiated    = "PaymentInitiated"
	EventOrderPaid           = "OrderPaid"
	EventOrderPaymentFailed  = "OrderPaymentFailed"
	EventOrderPaymentPending = "OrderPaymentPending"
	EventPaymentRejected     = "PaymentRejected"
	EventStockShortfall      = "StockShortfall"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	// Source: откуда пришло изменение, callback, poll, reconciler, api.
	Source   string
	Occurred time.Time
}
