package domain

import (
	"testing"
	"time"
)

func TestNewSettlement_AggregatesItemsPerBook(t *testing.T) {
	order := Order{
		ID:     "order-1",
		UserID: "user-1",
		Items: []OrderItem{
			{BookID: "book-b", Qty: 1, PriceMinor: 100},
			{BookID: "book-a", Qty: 2, PriceMinor: 100},
			{BookID: "book-b", Qty: 3, PriceMinor: 100},
		},
	}

	s := NewSettlement(order, "ref-1", time.Now())

	if s.OrderID != "order-1" || s.UserID != "user-1" || s.PaymentRefID != "ref-1" {
		t.Fatalf("unexpected settlement header: %+v", s)
	}
	want := []StockDecrement{{BookID: "book-a", Qty: 2}, {BookID: "book-b", Qty: 4}}
	if len(s.Decrements) != len(want) {
		t.Fatalf("expected %d decrements, got %d", len(want), len(s.Decrements))
	}
	for i := range want {
		if s.Decrements[i] != want[i] {
			t.Fatalf("decrement[%d] = %+v, want %+v", i, s.Decrements[i], want[i])
		}
	}
}

func TestSettlementAllows(t *testing.T) {
	s := NewSettlement(Order{ID: "o"}, "", time.Now())

	if !s.Allows(OrderStatusPending) || !s.Allows(OrderStatusFailed) {
		t.Fatal("settlement must apply to pending and failed orders")
	}
	if s.Allows(OrderStatusPaid) || s.Allows(OrderStatusCancelled) {
		t.Fatal("settlement must not apply to terminal orders")
	}
}

func TestSettlementAllowsFollowsTransitionTable(t *testing.T) {
	s := NewSettlement(Order{ID: "o"}, "", time.Now())
	for _, status := range []OrderStatus{OrderStatusPending, OrderStatusFailed, OrderStatusPaid, OrderStatusCancelled} {
		if s.Allows(status) != CanTransition(status, OrderStatusPaid) {
			t.Fatalf("Allows(%s) disagrees with CanTransition", status)
		}
	}
}

func TestGatewayStatusInProgress(t *testing.T) {
	if !GatewayStatusPending.InProgress() || !GatewayStatusAmbiguous.InProgress() {
		t.Fatal("pending and ambiguous are in progress")
	}
	if GatewayStatusComplete.InProgress() || GatewayStatusCanceled.InProgress() {
		t.Fatal("complete and canceled are final")
	}
}
