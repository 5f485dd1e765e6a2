// Package reconcile опрашивает шлюз по заказам, зависшим в pending.
// Закрывает случай, когда пользователь не вернулся со страницы оплаты.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/service/payment"
)

const (
	defaultInterval    = time.Minute
	defaultMinAge      = 5 * time.Minute
	defaultLookback    = 24 * time.Hour
	defaultBatchSize   = 50
	defaultConcurrency = 4
)

var (
	reconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_reconcile_runs_total",
		Help: "Total number of reconciliation runs grouped by result.",
	}, []string{"result"})
	reconcileOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_reconcile_orders_total",
		Help: "Total number of reconciled orders grouped by resulting order status.",
	}, []string{"status"})
)

// Reconciler выполняет сверку одного заказа.
type Reconciler interface {
	ReconcileOrder(ctx context.Context, orderID string) (payment.StatusResult, error)
}

// Options задаёт параметры воркера.
type Options struct {
	Logger      *log.Entry
	Interval    time.Duration
	MinAge      time.Duration
	Lookback    time.Duration
	BatchSize   int
	Concurrency int
	Now         func() time.Time
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задаёт период между циклами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithMinAge задаёт, сколько заказ должен пробыть в pending до опроса.
func WithMinAge(age time.Duration) Option {
	return func(opts *Options) {
		opts.MinAge = age
	}
}

// WithLookback задаёт окно, в котором заказ ещё сверяется. Старше окна заказ
// больше не опрашивается: неоплаченные pending не забивают порцию навсегда.
func WithLookback(d time.Duration) Option {
	return func(opts *Options) {
		opts.Lookback = d
	}
}

// WithBatchSize ограничивает число заказов за цикл.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

// WithConcurrency ограничивает число одновременных запросов к шлюзу.
func WithConcurrency(n int) Option {
	return func(opts *Options) {
		opts.Concurrency = n
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// Worker периодически сверяет зависшие pending-заказы.
type Worker struct {
	orders      domain.OrderRepository
	reconciler  Reconciler
	logger      *log.Entry
	interval    time.Duration
	minAge      time.Duration
	lookback    time.Duration
	batchSize   int
	concurrency int
	now         func() time.Time
}

// NewWorker создаёт воркер сверки.
func NewWorker(orders domain.OrderRepository, reconciler Reconciler, options ...Option) *Worker {
	opts := Options{
		Interval:    defaultInterval,
		MinAge:      defaultMinAge,
		Lookback:    defaultLookback,
		BatchSize:   defaultBatchSize,
		Concurrency: defaultConcurrency,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "reconcile-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.MinAge < 0 {
		opts.MinAge = 0
	}
	if opts.Lookback <= opts.MinAge {
		opts.Lookback = opts.MinAge + defaultLookback
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Worker{
		orders:      orders,
		reconciler:  reconciler,
		logger:      logger,
		interval:    opts.Interval,
		minAge:      opts.MinAge,
		lookback:    opts.Lookback,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		now:         opts.Now,
	}
}

// Run выполняет циклы сверки до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.orders == nil || w.reconciler == nil {
		w.logger.Warn("reconcile worker is disabled: repo or reconciler is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *Worker) run(ctx context.Context) {
	n, err := w.ProcessOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		reconcileRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("reconcile run failed")
		return
	}
	reconcileRunsTotal.WithLabelValues("ok").Inc()
	if n > 0 {
		w.logger.WithField("orders", n).Info("reconcile run completed")
	}
}

// ProcessOnce сверяет одну порцию заказов и возвращает число опрошенных.
// В порцию входят pending и недавно ставшие failed заказы из окна [now-lookback, now-minAge]:
// пользователь мог оплатить после неудачной попытки и не вернуться со шлюза.
// Ошибка шлюза по отдельному заказу не прерывает цикл: заказ остаётся как был до следующего раза.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := w.now().UTC()
	cutoff := now.Add(-w.minAge)
	since := now.Add(-w.lookback)

	var orders []domain.Order
	for _, status := range []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusFailed} {
		limit := w.batchSize - len(orders)
		if limit <= 0 {
			break
		}
		batch, err := w.orders.ListByStatus(ctx, status, since, cutoff, limit)
		if err != nil {
			return 0, err
		}
		orders = append(orders, batch...)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, order := range orders {
		orderID := order.ID
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, err := w.reconciler.ReconcileOrder(gctx, orderID)
			if err != nil {
				reconcileOrdersTotal.WithLabelValues("error").Inc()
				w.logger.WithError(err).WithField("order_id", orderID).Warn("order reconciliation failed")
				return nil
			}
			reconcileOrdersTotal.WithLabelValues(string(res.OrderStatus)).Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	return len(orders), nil
}
