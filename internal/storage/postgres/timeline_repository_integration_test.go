package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := migratedStore(t)
	repo := NewTimelineRepository(store)
	ctx := context.Background()

	base := time.Now().UTC().Round(time.Microsecond)
	events := []domain.TimelineEvent{
		{OrderID: "order-1", Type: domain.EventOrderPaid, Source: "callback", Occurred: base.Add(2 * time.Second)},
		{OrderID: "order-1", Type: domain.EventOrderCreated, Source: "api", Occurred: base},
		{OrderID: "order-2", Type: domain.EventOrderCreated, Occurred: base},
		{OrderID: "order-1", Type: domain.EventPaymentRejected, Reason: "amount mismatch", Source: "callback", Occurred: base.Add(time.Second)},
	}
	for _, event := range events {
		if err := repo.Append(ctx, event); err != nil {
			t.Fatalf("append %s: %v", event.Type, err)
		}
	}

	got, err := repo.List(ctx, "order-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{domain.EventOrderCreated, domain.EventPaymentRejected, domain.EventOrderPaid}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i, typ := range want {
		if got[i].Type != typ {
			t.Fatalf("event %d: expected %s, got %s", i, typ, got[i].Type)
		}
	}
	if got[1].Reason != "amount mismatch" || got[1].Source != "callback" {
		t.Fatalf("reason/source not persisted: %+v", got[1])
	}

	if err := repo.Append(ctx, domain.TimelineEvent{OrderID: "order-3", Type: domain.EventOrderCreated}); err != nil {
		t.Fatalf("append without time: %v", err)
	}
	got, err = repo.List(ctx, "order-3")
	if err != nil || len(got) != 1 || got[0].Occurred.IsZero() {
		t.Fatalf("expected defaulted occurred time, got %+v err=%v", got, err)
	}
}
