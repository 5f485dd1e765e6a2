package esewa

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// ErrCircuitOpen возвращается, пока breaker не пропускает вызовы к шлюзу.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState описывает состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker размыкает цепь после maxFailures подряд и пробует снова через resetTimeout.
type CircuitBreaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	failures    int
	lastFailure time.Time
	state       CircuitState
	logger      *log.Entry
}

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.WithField("component", "esewa-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		state:        CircuitClosed,
		logger:       logger,
	}
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute выполняет операцию через circuit breaker.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	if err := cb.before(operation); err != nil {
		return err
	}
	err := fn()
	cb.after(operation, err)
	return err
}

func (cb *CircuitBreaker) before(operation string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
		cb.state = CircuitHalfOpen
		cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
		return nil
	}
	return ErrCircuitOpen
}

func (cb *CircuitBreaker) after(operation string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		// Отмена на стороне вызывающего ничего не говорит о здоровье шлюза.
		return
	}
	if err != nil {
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			if cb.state != CircuitOpen {
				cb.logger.WithFields(log.Fields{
					"operation": operation,
					"failures":  cb.failures,
				}).Warn("circuit breaker opened")
			}
			cb.state = CircuitOpen
		}
		return
	}

	if cb.state == CircuitHalfOpen {
		cb.logger.WithField("operation", operation).Info("circuit breaker closed")
	}
	cb.state = CircuitClosed
	cb.failures = 0
}

// GuardedGateway пропускает вызовы шлюза через circuit breaker.
type GuardedGateway struct {
	next    domain.PaymentGateway
	breaker *CircuitBreaker
}

// NewGuardedGateway оборачивает gateway circuit breaker'ом.
func NewGuardedGateway(next domain.PaymentGateway, breaker *CircuitBreaker) *GuardedGateway {
	return &GuardedGateway{next: next, breaker: breaker}
}

// CheckStatus вызывает шлюз, если цепь не разомкнута. Отказ breaker'а тоже возвращается как ErrGatewayUnavailable.
func (g *GuardedGateway) CheckStatus(ctx context.Context, query domain.StatusQuery) (domain.StatusReport, error) {
	var report domain.StatusReport
	err := g.breaker.Execute("check_status", func() error {
		var callErr error
		report, callErr = g.next.CheckStatus(ctx, query)
		return callErr
	})
	if errors.Is(err, ErrCircuitOpen) {
		return domain.StatusReport{}, domain.Wrap(domain.ErrGatewayUnavailable, err)
	}
	return report, err
}

// Breaker возвращает breaker для health-проверок.
func (g *GuardedGateway) Breaker() *CircuitBreaker {
	return g.breaker
}

var _ domain.PaymentGateway = (*GuardedGateway)(nil)
