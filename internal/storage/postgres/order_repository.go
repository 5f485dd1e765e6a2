package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const orderColumns = `id, user_id, status, total_minor, payment_ref_id, version, created_at, updated_at`

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.store.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			order.ID, order.UserID, string(order.Status), order.TotalMinor,
			order.PaymentRefID, order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderVersionConflict
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for i, item := range order.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, position, book_id, qty, price_minor)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, item.ID, order.ID, i, item.BookID, item.Qty, item.PriceMinor); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return getOrder(ctx, r.store.db, id, false)
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, limit, userID)
}

func (r *orderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus, updatedAfter, updatedBefore time.Time, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	after := sql.NullTime{Time: updatedAfter, Valid: !updatedAfter.IsZero()}
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1
		  AND updated_at <= $2
		  AND ($3::timestamptz IS NULL OR updated_at >= $3)
		ORDER BY created_at ASC, id ASC
	`, limit, string(status), updatedBefore, after)
}

func (r *orderRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.OrderStatus) (bool, error) {
	if !domain.CanTransition(expected, next) {
		return false, domain.ErrInvalidTransition
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE id = $1
		  AND status = $2
	`, id, string(expected), string(next), r.store.now())
	if err != nil {
		return false, fmt.Errorf("compare and set order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	var exists bool
	if err := r.store.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return false, domain.ErrOrderNotFound
	}
	return false, nil
}

func (r *orderRepository) list(ctx context.Context, query string, limit int, args ...any) ([]domain.Order, error) {
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders, err := collectRows(rows, "order", func(rows *sql.Rows) (domain.Order, error) {
		return scanOrder(rows)
	})
	if err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := loadOrderItems(ctx, r.store.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(
		&order.ID, &order.UserID, &status, &order.TotalMinor,
		&order.PaymentRefID, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

// getOrder читает заказ с позициями; forUpdate блокирует строку заказа до конца транзакции.
func getOrder(ctx context.Context, q queryer, id string, forUpdate bool) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := loadOrderItems(ctx, q, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func loadOrderItems(ctx context.Context, q queryer, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, book_id, qty, price_minor
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	return collectRows(rows, "order item", func(rows *sql.Rows) (domain.OrderItem, error) {
		var item domain.OrderItem
		err := rows.Scan(&item.ID, &item.BookID, &item.Qty, &item.PriceMinor)
		return item, err
	})
}

var _ domain.OrderRepository = (*orderRepository)(nil)
