package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func TestOrderRepository_PostgresCreateGetAndList(t *testing.T) {
	store := migratedStore(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder("order-1", "user-1", now.Add(-2*time.Minute))
	order2 := sampleOrder("order-2", "user-1", now.Add(-time.Minute))

	if err := repo.Create(ctx, order1); err != nil {
		t.Fatalf("create order1: %v", err)
	}
	if err := repo.Create(ctx, order2); err != nil {
		t.Fatalf("create order2: %v", err)
	}

	got, err := repo.Get(ctx, order1.ID)
	if err != nil {
		t.Fatalf("get order1: %v", err)
	}
	if got.UserID != order1.UserID || got.Status != order1.Status || got.TotalMinor != order1.TotalMinor {
		t.Fatalf("unexpected order payload: %+v", got)
	}
	if len(got.Items) != 2 || got.Items[0].BookID != "book-a" || got.Items[1].BookID != "book-b" {
		t.Fatalf("unexpected items: %+v", got.Items)
	}

	listed, err := repo.ListByUser(ctx, "user-1", 1)
	if err != nil {
		t.Fatalf("list by user with limit: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != order2.ID {
		t.Fatalf("unexpected list result with limit: %+v", listed)
	}

	stale, err := repo.ListByStatus(ctx, domain.OrderStatusPending, time.Time{}, now.Add(-90*time.Second), 0)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != order1.ID {
		t.Fatalf("unexpected stale pending orders: %+v", stale)
	}

	windowed, err := repo.ListByStatus(ctx, domain.OrderStatusPending, now.Add(-90*time.Second), now.Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("list by status with lower bound: %v", err)
	}
	for _, o := range windowed {
		if o.ID == order1.ID {
			t.Fatalf("order updated before the window must be excluded: %+v", windowed)
		}
	}
}

func TestOrderRepository_PostgresCompareAndSetStatus(t *testing.T) {
	store := migratedStore(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	order := sampleOrder("order-cas", "user-2", time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	ok, err := repo.CompareAndSetStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusFailed)
	if err != nil || !ok {
		t.Fatalf("expected successful CAS, got ok=%v err=%v", ok, err)
	}
	ok, err = repo.CompareAndSetStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusPaid)
	if err != nil || ok {
		t.Fatalf("expected rejected CAS, got ok=%v err=%v", ok, err)
	}

	got, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.OrderStatusFailed || got.Version != 1 {
		t.Fatalf("unexpected state after CAS: status=%s version=%d", got.Status, got.Version)
	}

	if _, err := repo.CompareAndSetStatus(ctx, "missing", domain.OrderStatusPending, domain.OrderStatusFailed); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := repo.CompareAndSetStatus(ctx, order.ID, domain.OrderStatusPaid, domain.OrderStatusPending); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestOrderRepository_PostgresConcurrentCASSingleWinner(t *testing.T) {
	store := migratedStore(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	order := sampleOrder("order-race", "user-3", time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.CompareAndSetStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusFailed)
			if err == nil && ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Fatalf("expected exactly one CAS winner, got %d", winners.Load())
	}
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := migratedStore(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing-order"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	base := sampleOrder("order-dup", "user-4", time.Now().UTC())
	if err := repo.Create(ctx, base); err != nil {
		t.Fatalf("create base order: %v", err)
	}
	if err := repo.Create(ctx, base); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict on duplicate create, got %v", err)
	}
}

func sampleOrder(id, userID string, createdAt time.Time) domain.Order {
	createdAt = createdAt.Round(time.Microsecond)
	return domain.Order{
		ID:     id,
		UserID: userID,
		Status: domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{ID: id + "-item-1", BookID: "book-a", Qty: 2, PriceMinor: 20000},
			{ID: id + "-item-2", BookID: "book-b", Qty: 1, PriceMinor: 10000},
		},
		TotalMinor: 50000,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}
