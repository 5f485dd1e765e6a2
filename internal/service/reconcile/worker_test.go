package reconcile_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/esewa"
	"github.com/vladislavdragonenkov/bookstore/internal/metrics"
	"github.com/vladislavdragonenkov/bookstore/internal/service/payment"
	"github.com/vladislavdragonenkov/bookstore/internal/service/reconcile"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
)

type recordingReconciler struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (r *recordingReconciler) ReconcileOrder(_ context.Context, orderID string) (payment.StatusResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, orderID)
	if r.fail[orderID] {
		return payment.StatusResult{}, domain.ErrGatewayUnavailable
	}
	return payment.StatusResult{OrderID: orderID, OrderStatus: domain.OrderStatusPending}, nil
}

func (r *recordingReconciler) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.calls...)
	sort.Strings(out)
	return out
}

type switchGateway struct {
	mu     sync.Mutex
	status domain.GatewayStatus
}

func (g *switchGateway) set(status domain.GatewayStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = status
}

func (g *switchGateway) CheckStatus(_ context.Context, q domain.StatusQuery) (domain.StatusReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return domain.StatusReport{
		Status:          g.status,
		RefID:           "REF-" + q.TransactionUUID,
		TotalAmount:     q.TotalAmount,
		TransactionUUID: q.TransactionUUID,
	}, nil
}

type completeGateway struct{}

func (completeGateway) CheckStatus(_ context.Context, q domain.StatusQuery) (domain.StatusReport, error) {
	return domain.StatusReport{
		Status:          domain.GatewayStatusComplete,
		RefID:           "REF-" + q.TransactionUUID,
		TotalAmount:     q.TotalAmount,
		TransactionUUID: q.TransactionUUID,
	}, nil
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return log.NewEntry(logger)
}

func seedOrder(t *testing.T, store *memory.Store, id string, status domain.OrderStatus, updatedAt time.Time) {
	t.Helper()
	require.NoError(t, store.Orders().Create(context.Background(), domain.Order{
		ID:         id,
		UserID:     "user-1",
		Status:     status,
		TotalMinor: 20000,
		Items:      []domain.OrderItem{{ID: id + "-i1", BookID: "book-a", Qty: 1, PriceMinor: 20000}},
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
	}))
}

func TestProcessOnceSelectsOrdersInsideWindow(t *testing.T) {
	store := memory.NewStore()
	seedOrder(t, store, "stale", domain.OrderStatusPending, now.Add(-10*time.Minute))
	seedOrder(t, store, "fresh", domain.OrderStatusPending, now.Add(-time.Minute))
	seedOrder(t, store, "abandoned", domain.OrderStatusPending, now.Add(-48*time.Hour))
	seedOrder(t, store, "recently-failed", domain.OrderStatusFailed, now.Add(-time.Hour))
	seedOrder(t, store, "long-failed", domain.OrderStatusFailed, now.Add(-48*time.Hour))
	seedOrder(t, store, "paid", domain.OrderStatusPaid, now.Add(-time.Hour))

	rec := &recordingReconciler{}
	w := reconcile.NewWorker(store.Orders(), rec,
		reconcile.WithMinAge(5*time.Minute),
		reconcile.WithClock(func() time.Time { return now }),
		reconcile.WithLogger(quietLogger()),
	)

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"recently-failed", "stale"}, rec.called())
}

func TestProcessOnceContinuesAfterGatewayErrors(t *testing.T) {
	store := memory.NewStore()
	for _, id := range []string{"o1", "o2", "o3"} {
		seedOrder(t, store, id, domain.OrderStatusPending, now.Add(-time.Hour))
	}

	rec := &recordingReconciler{fail: map[string]bool{"o2": true}}
	w := reconcile.NewWorker(store.Orders(), rec,
		reconcile.WithClock(func() time.Time { return now }),
		reconcile.WithConcurrency(2),
		reconcile.WithLogger(quietLogger()),
	)

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"o1", "o2", "o3"}, rec.called())
}

func TestProcessOnceRespectsBatchSize(t *testing.T) {
	store := memory.NewStore()
	for i, id := range []string{"o1", "o2", "o3"} {
		seedOrder(t, store, id, domain.OrderStatusPending, now.Add(-time.Hour+time.Duration(i)*time.Second))
	}

	rec := &recordingReconciler{}
	w := reconcile.NewWorker(store.Orders(), rec,
		reconcile.WithClock(func() time.Time { return now }),
		reconcile.WithBatchSize(2),
		reconcile.WithLogger(quietLogger()),
	)

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"o1", "o2"}, rec.called())
}

func TestProcessOnceSettlesThroughPaymentService(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Books().Create(ctx, domain.Book{ID: "book-a", Title: "A", PriceMinor: 20000, Stock: 4}))
	seedOrder(t, store, "stale", domain.OrderStatusPending, time.Now().UTC().Add(-time.Hour))

	cfg := esewa.DefaultConfig()
	cfg.SecretKey = "secret"
	svc := payment.NewService(cfg, store.Orders(), store, store.Outbox(), completeGateway{},
		payment.WithMetrics(metrics.NewPaymentMetricsWithRegisterer(prometheus.NewRegistry())),
		payment.WithLogger(quietLogger()),
	)

	w := reconcile.NewWorker(store.Orders(), svc, reconcile.WithLogger(quietLogger()))
	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	order, err := store.Orders().Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
	assert.Equal(t, "REF-stale", order.PaymentRefID)

	book, err := store.Books().Get(ctx, "book-a")
	require.NoError(t, err)
	assert.Equal(t, int32(3), book.Stock)
}

func TestProcessOnceSettlesPaymentCapturedAfterUnknownTransaction(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Books().Create(ctx, domain.Book{ID: "book-a", Title: "A", PriceMinor: 20000, Stock: 4}))
	seedOrder(t, store, "late", domain.OrderStatusPending, time.Now().UTC().Add(-10*time.Minute))

	gateway := &switchGateway{status: domain.GatewayStatusNotFound}
	cfg := esewa.DefaultConfig()
	cfg.SecretKey = "secret"
	svc := payment.NewService(cfg, store.Orders(), store, store.Outbox(), gateway,
		payment.WithMetrics(metrics.NewPaymentMetricsWithRegisterer(prometheus.NewRegistry())),
		payment.WithLogger(quietLogger()),
	)
	w := reconcile.NewWorker(store.Orders(), svc, reconcile.WithLogger(quietLogger()))

	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	order, err := store.Orders().Get(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status, "unknown transaction must not close the order")

	gateway.set(domain.GatewayStatusComplete)
	n, err = w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	order, err = store.Orders().Get(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
}

func TestProcessOnceRecoversRecentlyFailedOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Books().Create(ctx, domain.Book{ID: "book-a", Title: "A", PriceMinor: 20000, Stock: 4}))
	seedOrder(t, store, "retried", domain.OrderStatusFailed, time.Now().UTC().Add(-time.Hour))

	cfg := esewa.DefaultConfig()
	cfg.SecretKey = "secret"
	svc := payment.NewService(cfg, store.Orders(), store, store.Outbox(), completeGateway{},
		payment.WithMetrics(metrics.NewPaymentMetricsWithRegisterer(prometheus.NewRegistry())),
		payment.WithLogger(quietLogger()),
	)
	w := reconcile.NewWorker(store.Orders(), svc, reconcile.WithLogger(quietLogger()))

	_, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	order, err := store.Orders().Get(ctx, "retried")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
}

func TestProcessOnceCancelledContext(t *testing.T) {
	store := memory.NewStore()
	w := reconcile.NewWorker(store.Orders(), &recordingReconciler{}, reconcile.WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.ProcessOnce(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := memory.NewStore()
	seedOrder(t, store, "stale", domain.OrderStatusPending, now.Add(-time.Hour))
	rec := &recordingReconciler{}
	w := reconcile.NewWorker(store.Orders(), rec,
		reconcile.WithInterval(5*time.Millisecond),
		reconcile.WithClock(func() time.Time { return now }),
		reconcile.WithLogger(quietLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(rec.called()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestRunDisabledWithoutReconciler(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w := reconcile.NewWorker(nil, nil, reconcile.WithLogger(quietLogger()))
	w.Run(context.Background())
}
