package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_idempotency_cleanup_runs_total",
		Help: "Idempotency cleanup runs by result.",
	}, []string{"result"})
	sweepDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_idempotency_cleanup_deleted_total",
		Help: "Expired idempotency records deleted.",
	})
	sweepLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookstore_idempotency_cleanup_last_deleted",
		Help: "Records deleted during the last cleanup run.",
	})
)

// ExpiredDeleter часть хранилища ключей, нужная для очистки.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Sweeper периодически удаляет записи с истёкшим TTL порциями.
type Sweeper struct {
	repo     ExpiredDeleter
	logger   *log.Entry
	interval time.Duration
	batch    int
	clock    func() time.Time
}

// SweeperOption настраивает Sweeper.
type SweeperOption func(*Sweeper)

func WithLogger(logger *log.Entry) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInterval задаёт паузу между запусками.
func WithInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithBatchSize ограничивает одно удаление, чтобы не держать долгих блокировок.
func WithBatchSize(size int) SweeperOption {
	return func(s *Sweeper) {
		if size > 0 {
			s.batch = size
		}
	}
}

func WithClock(clock func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSweeper создаёт воркер очистки.
func NewSweeper(repo ExpiredDeleter, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		repo:     repo,
		logger:   log.WithField("component", "idempotency-sweeper"),
		interval: 10 * time.Minute,
		batch:    500,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run очищает хранилище сразу и затем каждые interval до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("idempotency sweeper is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	deleted, err := s.Sweep(ctx, s.clock())
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		sweepRuns.WithLabelValues("error").Inc()
		s.logger.WithError(err).WithField("deleted", deleted).Warn("idempotency cleanup run failed")
		return
	}

	sweepRuns.WithLabelValues("ok").Inc()
	sweepLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
	}
}

// Sweep удаляет все записи с TTL не позже before. Неполная порция означает конец.
func (s *Sweeper) Sweep(ctx context.Context, before time.Time) (int, error) {
	before = before.UTC()
	total := 0
	for ctx.Err() == nil {
		n, err := s.repo.DeleteExpired(ctx, before, s.batch)
		total += n
		sweepDeleted.Add(float64(n))
		if err != nil || n < s.batch {
			return total, err
		}
	}
	return total, ctx.Err()
}
