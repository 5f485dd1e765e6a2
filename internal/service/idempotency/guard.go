// Package idempotency реализует повтор ответов по заголовку Idempotency-Key
// и фоновую очистку просроченных ключей.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// DefaultTTL срок хранения сохранённого ответа.
const DefaultTTL = domain.DefaultIdempotencyTTL

var guardDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bookstore_idempotency_requests_total",
	Help: "Requests carrying an idempotency key by decision: fresh, replayed, conflict, error.",
}, []string{"decision"})

// Replay сохранённый ответ на первый запрос с тем же ключом.
type Replay struct {
	Status int
	Body   []byte
}

// Guard занимает ключ перед выполнением запроса и сохраняет ответ после него.
type Guard struct {
	repo  domain.IdempotencyRepository
	ttl   time.Duration
	clock func() time.Time
}

// NewGuard создаёт Guard; ttl <= 0 означает DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{repo: repo, ttl: ttl, clock: time.Now}
}

// ScopedKey ограничивает ключ пользователем: одинаковые ключи разных
// пользователей не пересекаются.
func ScopedKey(userID, key string) string {
	return userID + ":" + key
}

// Fingerprint хэширует метод, путь и тело запроса.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(method), []byte(path), body} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Begin занимает ключ. Если по ключу уже сохранён ответ, он возвращается как Replay
// и запрос выполнять не нужно. Ошибки:
// ErrIdempotencyHashMismatch при другом теле запроса,
// ErrIdempotencyKeyAlreadyExists пока первый запрос ещё выполняется.
func (g *Guard) Begin(ctx context.Context, key, fingerprint string) (*Replay, error) {
	record, err := g.repo.CreateProcessing(ctx, key, fingerprint, g.clock().UTC().Add(g.ttl))
	switch {
	case err == nil:
		guardDecisions.WithLabelValues("fresh").Inc()
		return nil, nil
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) && record.Status != domain.IdempotencyStatusProcessing:
		guardDecisions.WithLabelValues("replayed").Inc()
		status := record.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		return &Replay{Status: status, Body: record.ResponseBody}, nil
	case domain.IsIdempotencyConflict(err):
		guardDecisions.WithLabelValues("conflict").Inc()
		return nil, err
	default:
		guardDecisions.WithLabelValues("error").Inc()
		return nil, domain.Wrap(domain.ErrInternal, err)
	}
}

// Complete сохраняет ответ под ключом. Ответ 5xx сохраняется как failed.
func (g *Guard) Complete(ctx context.Context, key string, status int, body []byte) error {
	if status >= http.StatusInternalServerError {
		return g.repo.MarkFailed(ctx, key, body, status)
	}
	return g.repo.MarkDone(ctx, key, body, status)
}
