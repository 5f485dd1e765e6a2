package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type cartRepository struct {
	store *Store
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{store: store}
}

func (r *cartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cart := domain.Cart{UserID: userID}
	err := r.store.db.QueryRowContext(ctx, `SELECT updated_at FROM carts WHERE user_id = $1`, userID).
		Scan(&cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}
	cart.UpdatedAt = cart.UpdatedAt.UTC()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT book_id, qty, price_minor
		FROM cart_items
		WHERE user_id = $1
		ORDER BY position ASC
	`, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.BookID, &item.Qty, &item.PriceMinor); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart items: %w", err)
	}

	cart.Recalculate()
	return cart, nil
}

// Save перезаписывает позиции корзины целиком в одной транзакции.
func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) error {
	if cart.UserID == "" {
		return domain.ErrUserRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := r.store.now()
	return r.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO carts (user_id, updated_at)
			VALUES ($1, $2)
			ON CONFLICT (user_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		`, cart.UserID, now); err != nil {
			return fmt.Errorf("upsert cart: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, cart.UserID); err != nil {
			return fmt.Errorf("delete cart items: %w", err)
		}
		for i, item := range cart.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cart_items (user_id, position, book_id, qty, price_minor)
				VALUES ($1,$2,$3,$4,$5)
			`, cart.UserID, i, item.BookID, item.Qty, item.PriceMinor); err != nil {
				return fmt.Errorf("insert cart item: %w", err)
			}
		}
		return nil
	})
}

func (r *cartRepository) Clear(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return clearCart(ctx, r.store.db, userID, r.store.now())
}

func clearCart(ctx context.Context, q queryer, userID string, now time.Time) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	if _, err := q.ExecContext(ctx, `UPDATE carts SET updated_at = $2 WHERE user_id = $1`, userID, now); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
