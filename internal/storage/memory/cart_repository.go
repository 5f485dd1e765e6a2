package memory

import (
	"context"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type cartRecord struct {
	cart domain.Cart
}

// CartRepository хранит корзины в памяти, по одной на пользователя.
type CartRepository struct {
	s *Store
}

// Get возвращает корзину пользователя или ErrCartNotFound.
func (r *CartRepository) Get(_ context.Context, userID string) (domain.Cart, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.carts[userID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cloneCart(rec.cart), nil
}

// Save перезаписывает корзину целиком; сумма пересчитывается.
func (r *CartRepository) Save(_ context.Context, cart domain.Cart) error {
	if cart.UserID == "" {
		return domain.ErrUserRequired
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cart = cloneCart(cart)
	cart.Recalculate()
	cart.UpdatedAt = r.s.now()
	r.s.carts[cart.UserID] = cartRecord{cart: cart}
	return nil
}

// Clear очищает корзину пользователя.
func (r *CartRepository) Clear(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.clearCartLocked(userID)
	return nil
}

func (s *Store) clearCartLocked(userID string) {
	rec, ok := s.carts[userID]
	if !ok {
		return
	}
	rec.cart.Clear()
	rec.cart.UpdatedAt = s.now()
	s.carts[userID] = rec
}

func cloneCart(src domain.Cart) domain.Cart {
	dst := src
	dst.Items = append([]domain.CartItem(nil), src.Items...)
	return dst
}

var _ domain.CartRepository = (*CartRepository)(nil)
