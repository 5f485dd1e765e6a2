package memory

import (
	"context"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// Settle применяет settlement под одной блокировкой: заказ, остатки, корзина и
// outbox-событие меняются вместе или не меняются вовсе.
func (s *Store) Settle(_ context.Context, st domain.Settlement, event domain.OutboxMessage) (domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.orders[st.OrderID]
	if !ok {
		return domain.SettlementResult{}, domain.ErrOrderNotFound
	}
	if !st.Allows(rec.order.Status) {
		return domain.SettlementResult{Applied: false, Order: cloneOrder(rec.order)}, nil
	}

	now := s.now()
	if !st.SettledAt.IsZero() {
		now = st.SettledAt
	}

	rec.order.Status = domain.OrderStatusPaid
	rec.order.PaymentRefID = st.PaymentRefID
	rec.order.Version++
	rec.order.UpdatedAt = now
	s.orders[st.OrderID] = rec

	var shortfalls []domain.StockShortfall
	for _, dec := range st.Decrements {
		book, ok := s.books[dec.BookID]
		if !ok {
			shortfalls = append(shortfalls, domain.StockShortfall{BookID: dec.BookID, Requested: dec.Qty})
			continue
		}
		if book.book.Stock < dec.Qty {
			shortfalls = append(shortfalls, domain.StockShortfall{
				BookID:    dec.BookID,
				Requested: dec.Qty,
				Available: book.book.Stock,
			})
			book.book.Stock = 0
		} else {
			book.book.Stock -= dec.Qty
		}
		book.book.UpdatedAt = now
		s.books[dec.BookID] = book
	}

	s.clearCartLocked(st.UserID)

	if event.EventType != "" {
		s.enqueueLocked(event)
	}

	return domain.SettlementResult{
		Applied:    true,
		Order:      cloneOrder(rec.order),
		Shortfalls: shortfalls,
	}, nil
}

var _ domain.SettlementStore = (*Store)(nil)
