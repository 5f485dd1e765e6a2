package domain

import (
	"context"
	"sort"
	"time"
)

// GatewayStatus: статус транзакции, как его сообщает платёжный шлюз.
type GatewayStatus string

const (
	GatewayStatusComplete      GatewayStatus = "COMPLETE"
	GatewayStatusPending       GatewayStatus = "PENDING"
	GatewayStatusAmbiguous     GatewayStatus = "AMBIGUOUS"
	GatewayStatusFullRefund    GatewayStatus = "FULL_REFUND"
	GatewayStatusPartialRefund GatewayStatus = "PARTIAL_REFUND"
	GatewayStatusNotFound      GatewayStatus = "NOT_FOUND"
	GatewayStatusCanceled      GatewayStatus = "CANCELED"
)

// InProgress сообщает, что шлюз ещё не принял окончательного решения.
func (s GatewayStatus) InProgress() bool {
	return s == GatewayStatusPending || s == GatewayStatusAmbiguous
}

// StatusQuery задаёт параметры запроса статуса транзакции у шлюза.
type StatusQuery struct {
	ProductCode     string
	TotalAmount     string
	TransactionUUID string
}

// StatusReport описывает ответ шлюза на запрос статуса.
type StatusReport struct {
	Status          GatewayStatus
	RefID           string
	TotalAmount     string
	TransactionUUID string
}

// PaymentGateway описывает исходящие вызовы к платёжному шлюзу.
type PaymentGateway interface {
	// CheckStatus запрашивает статус транзакции. Ошибка означает, что статус неизвестен.
	CheckStatus(ctx context.Context, query StatusQuery) (StatusReport, error)
}

// StockDecrement задаёт относительное списание остатка по одной книге.
type StockDecrement struct {
	BookID string
	Qty    int32
}

// Settlement описывает весь набор изменений при оплате заказа: статус paid,
// ссылку на платёж, списание остатков и очистку корзины. Применяется одной единицей.
type Settlement struct {
	OrderID      string
	UserID       string
	From         []OrderStatus
	PaymentRefID string
	Decrements   []StockDecrement
	SettledAt    time.Time
}

// NewSettlement строит settlement для заказа. Позиции с одной книгой суммируются,
// порядок книг стабилен, чтобы блокировки в хранилище брались в одном порядке.
func NewSettlement(order Order, paymentRefID string, now time.Time) Settlement {
	qtyByBook := make(map[string]int32, len(order.Items))
	for _, item := range order.Items {
		qtyByBook[item.BookID] += item.Qty
	}

	decrements := make([]StockDecrement, 0, len(qtyByBook))
	for bookID, qty := range qtyByBook {
		decrements = append(decrements, StockDecrement{BookID: bookID, Qty: qty})
	}
	sort.Slice(decrements, func(i, j int) bool { return decrements[i].BookID < decrements[j].BookID })

	return Settlement{
		OrderID:      order.ID,
		UserID:       order.UserID,
		From:         []OrderStatus{OrderStatusPending, OrderStatusFailed},
		PaymentRefID: paymentRefID,
		Decrements:   decrements,
		SettledAt:    now.UTC(),
	}
}

// Allows проверяет, можно ли применить settlement к заказу в статусе status.
func (s Settlement) Allows(status OrderStatus) bool {
	if !CanTransition(status, OrderStatusPaid) {
		return false
	}
	for _, from := range s.From {
		if from == status {
			return true
		}
	}
	return false
}

// StockShortfall фиксирует расхождение: на момент оплаты остатка не хватило.
type StockShortfall struct {
	BookID    string
	Requested int32
	Available int32
}

// SettlementResult описывает итог применения settlement.
type SettlementResult struct {
	// Applied == false означает, что заказ уже не в допустимом статусе (например, уже paid).
	Applied    bool
	Order      Order
	Shortfalls []StockShortfall
}
