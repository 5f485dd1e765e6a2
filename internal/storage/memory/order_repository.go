package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type orderRecord struct {
	order domain.Order
	seq   int64
}

// OrderRepository: in-memory реализация domain.OrderRepository.
type OrderRepository struct {
	s *Store
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *OrderRepository) Create(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	r.s.orders[order.ID] = orderRecord{order: cloneOrder(order), seq: r.s.nextSeq()}
	return nil
}

// Get возвращает заказ или ErrOrderNotFound.
func (r *OrderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(rec.order), nil
}

// ListByUser возвращает заказы пользователя от новых к старым, не больше limit (если >0).
func (r *OrderRepository) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.UserID == userID }, true, limit), nil
}

// ListByStatus возвращает заказы в статусе status, обновлённые в окне [updatedAfter, updatedBefore].
// Самые старые идут первыми.
func (r *OrderRepository) ListByStatus(_ context.Context, status domain.OrderStatus, updatedAfter, updatedBefore time.Time, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool {
		if o.Status != status || o.UpdatedAt.After(updatedBefore) {
			return false
		}
		return updatedAfter.IsZero() || !o.UpdatedAt.Before(updatedAfter)
	}, false, limit), nil
}

func (r *OrderRepository) list(match func(domain.Order) bool, newestFirst bool, limit int) []domain.Order {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	recs := make([]orderRecord, 0, len(r.s.orders))
	for _, rec := range r.s.orders {
		if match(rec.order) {
			recs = append(recs, rec)
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.order.CreatedAt.Equal(b.order.CreatedAt) {
			if newestFirst {
				return a.order.CreatedAt.After(b.order.CreatedAt)
			}
			return a.order.CreatedAt.Before(b.order.CreatedAt)
		}
		if newestFirst {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})

	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}

	result := make([]domain.Order, 0, len(recs))
	for _, rec := range recs {
		result = append(result, cloneOrder(rec.order))
	}
	return result
}

// CompareAndSetStatus меняет статус expected → next одной операцией под блокировкой.
func (r *OrderRepository) CompareAndSetStatus(_ context.Context, id string, expected, next domain.OrderStatus) (bool, error) {
	if !domain.CanTransition(expected, next) {
		return false, domain.ErrInvalidTransition
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.orders[id]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if rec.order.Status != expected {
		return false, nil
	}
	rec.order.Status = next
	rec.order.Version++
	rec.order.UpdatedAt = r.s.now()
	r.s.orders[id] = rec
	return true, nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
