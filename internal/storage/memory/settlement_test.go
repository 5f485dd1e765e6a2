package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
)

func seedSettlement(t *testing.T, stockA, stockB int32) (*memory.Store, domain.Order) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()

	_ = store.Books().Create(ctx, domain.Book{ID: "book-a", Title: "A", PriceMinor: 20000, Stock: stockA})
	_ = store.Books().Create(ctx, domain.Book{ID: "book-b", Title: "B", PriceMinor: 10000, Stock: stockB})
	_ = store.Carts().Save(ctx, domain.Cart{UserID: "user-1", Items: []domain.CartItem{{BookID: "book-a", Qty: 1, PriceMinor: 20000}}})

	order := newOrder("order-1", "user-1", time.Now().UTC())
	if err := store.Orders().Create(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return store, order
}

func TestStore_SettleAppliesAllEffects(t *testing.T) {
	store, order := seedSettlement(t, 5, 3)
	ctx := context.Background()

	event := domain.OutboxMessage{AggregateType: "order", AggregateID: order.ID, EventType: domain.EventOrderPaid}
	res, err := store.Settle(ctx, domain.NewSettlement(order, "TX-1", time.Now()), event)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if !res.Applied || res.Order.Status != domain.OrderStatusPaid || res.Order.PaymentRefID != "TX-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Shortfalls) != 0 {
		t.Fatalf("unexpected shortfalls: %+v", res.Shortfalls)
	}

	a, _ := store.Books().Get(ctx, "book-a")
	b, _ := store.Books().Get(ctx, "book-b")
	if a.Stock != 3 || b.Stock != 2 {
		t.Fatalf("expected stock {A:3,B:2}, got {A:%d,B:%d}", a.Stock, b.Stock)
	}

	cart, _ := store.Carts().Get(ctx, "user-1")
	if len(cart.Items) != 0 || cart.TotalMinor != 0 {
		t.Fatalf("expected empty cart, got %+v", cart)
	}

	if pending := store.Outbox().AllPending(); len(pending) != 1 || pending[0].EventType != domain.EventOrderPaid {
		t.Fatalf("expected one OrderPaid outbox message, got %+v", pending)
	}
}

func TestStore_SettleIsIdempotent(t *testing.T) {
	store, order := seedSettlement(t, 5, 3)
	ctx := context.Background()
	st := domain.NewSettlement(order, "TX-1", time.Now())
	event := domain.OutboxMessage{AggregateType: "order", AggregateID: order.ID, EventType: domain.EventOrderPaid}

	if _, err := store.Settle(ctx, st, event); err != nil {
		t.Fatalf("first settle failed: %v", err)
	}
	res, err := store.Settle(ctx, st, event)
	if err != nil {
		t.Fatalf("second settle failed: %v", err)
	}
	if res.Applied {
		t.Fatalf("second settle must not apply")
	}

	a, _ := store.Books().Get(ctx, "book-a")
	if a.Stock != 3 {
		t.Fatalf("stock decremented twice: %d", a.Stock)
	}
	if pending := store.Outbox().AllPending(); len(pending) != 1 {
		t.Fatalf("expected single outbox message, got %d", len(pending))
	}
}

func TestStore_SettleConcurrentSingleApplication(t *testing.T) {
	store, order := seedSettlement(t, 100, 100)
	ctx := context.Background()
	st := domain.NewSettlement(order, "TX-1", time.Now())

	var wg sync.WaitGroup
	results := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.Settle(ctx, st, domain.OutboxMessage{EventType: domain.EventOrderPaid})
			if err != nil {
				t.Errorf("settle failed: %v", err)
				return
			}
			results <- res.Applied
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for ok := range results {
		if ok {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one application, got %d", applied)
	}
	a, _ := store.Books().Get(ctx, "book-a")
	if a.Stock != 98 {
		t.Fatalf("expected stock 98, got %d", a.Stock)
	}
}

func TestStore_SettleClampsStockAndReportsShortfall(t *testing.T) {
	store, order := seedSettlement(t, 1, 3)
	ctx := context.Background()

	res, err := store.Settle(ctx, domain.NewSettlement(order, "TX-1", time.Now()), domain.OutboxMessage{})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if !res.Applied || len(res.Shortfalls) != 1 {
		t.Fatalf("expected one shortfall, got %+v", res)
	}
	sf := res.Shortfalls[0]
	if sf.BookID != "book-a" || sf.Requested != 2 || sf.Available != 1 {
		t.Fatalf("unexpected shortfall: %+v", sf)
	}
	a, _ := store.Books().Get(ctx, "book-a")
	if a.Stock != 0 {
		t.Fatalf("expected clamped stock 0, got %d", a.Stock)
	}
	if pending := store.Outbox().AllPending(); len(pending) != 0 {
		t.Fatalf("empty event type must not be enqueued")
	}
}

func TestStore_SettleFromCancelledIsRejected(t *testing.T) {
	store, order := seedSettlement(t, 5, 3)
	ctx := context.Background()
	_, _ = store.Orders().CompareAndSetStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled)

	res, err := store.Settle(ctx, domain.NewSettlement(order, "TX-1", time.Now()), domain.OutboxMessage{})
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if res.Applied || res.Order.Status != domain.OrderStatusCancelled {
		t.Fatalf("cancelled order must stay cancelled: %+v", res)
	}
}
