package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// Settle применяет settlement в одной транзакции. Строка заказа блокируется FOR UPDATE,
// поэтому из нескольких одновременных подтверждений списание выполнит только первое.
// Книги блокируются в порядке Decrements (он отсортирован), что исключает взаимные блокировки.
func (s *Store) Settle(ctx context.Context, st domain.Settlement, event domain.OutboxMessage) (domain.SettlementResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := s.now()
	if !st.SettledAt.IsZero() {
		now = st.SettledAt
	}

	var result domain.SettlementResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		order, err := getOrder(ctx, tx, st.OrderID, true)
		if err != nil {
			return err
		}
		if !st.Allows(order.Status) {
			result = domain.SettlementResult{Applied: false, Order: order}
			return nil
		}

		if err := tx.QueryRowContext(ctx, `
			UPDATE orders
			SET status = $2,
			    payment_ref_id = $3,
			    version = version + 1,
			    updated_at = $4
			WHERE id = $1
			RETURNING version
		`, st.OrderID, string(domain.OrderStatusPaid), st.PaymentRefID, now).Scan(&order.Version); err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		order.Status = domain.OrderStatusPaid
		order.PaymentRefID = st.PaymentRefID
		order.UpdatedAt = now

		shortfalls, err := decrementStock(ctx, tx, st.Decrements, now)
		if err != nil {
			return err
		}

		userID := st.UserID
		if userID == "" {
			userID = order.UserID
		}
		if err := clearCart(ctx, tx, userID, now); err != nil {
			return err
		}

		if event.EventType != "" {
			if _, err := enqueueOutbox(ctx, tx, event, now); err != nil {
				return err
			}
		}

		result = domain.SettlementResult{Applied: true, Order: order, Shortfalls: shortfalls}
		return nil
	})
	if err != nil {
		return domain.SettlementResult{}, err
	}
	return result, nil
}

// decrementStock списывает остатки с ограничением снизу нулём и возвращает нехватки.
func decrementStock(ctx context.Context, tx *sql.Tx, decrements []domain.StockDecrement, now time.Time) ([]domain.StockShortfall, error) {
	var shortfalls []domain.StockShortfall
	for _, dec := range decrements {
		var available int32
		err := tx.QueryRowContext(ctx, `SELECT stock FROM books WHERE id = $1 FOR UPDATE`, dec.BookID).Scan(&available)
		if errors.Is(err, sql.ErrNoRows) {
			shortfalls = append(shortfalls, domain.StockShortfall{BookID: dec.BookID, Requested: dec.Qty})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock book %s: %w", dec.BookID, err)
		}
		if available < dec.Qty {
			shortfalls = append(shortfalls, domain.StockShortfall{
				BookID:    dec.BookID,
				Requested: dec.Qty,
				Available: available,
			})
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE books
			SET stock = GREATEST(stock - $2, 0),
			    updated_at = $3
			WHERE id = $1
		`, dec.BookID, dec.Qty, now); err != nil {
			return nil, fmt.Errorf("decrement stock for %s: %w", dec.BookID, err)
		}
	}
	return shortfalls, nil
}

var _ domain.SettlementStore = (*Store)(nil)
