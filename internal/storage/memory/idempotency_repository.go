package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// IdempotencyRepository хранит ключи идемпотентности в памяти процесса.
// Ключи не делят блокировку со Store: они не участвуют в settlement.
type IdempotencyRepository struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
	clock   func() time.Time
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{
		records: make(map[string]domain.IdempotencyRecord),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateProcessing занимает ключ. Живая запись с тем же ключом возвращается вместе с ошибкой
// конфликта; просроченная перезаписывается.
func (r *IdempotencyRepository) CreateProcessing(_ context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	now := r.clock()
	record, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, now)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[record.Key]; ok && !existing.Expired(now) {
		return copyRecord(existing), existing.Conflict(record.RequestHash)
	}
	r.records[record.Key] = record
	return copyRecord(record), nil
}

func (r *IdempotencyRepository) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.lookup(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	return copyRecord(record), nil
}

func (r *IdempotencyRepository) MarkDone(_ context.Context, key string, body []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusDone, body, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(_ context.Context, key string, body []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, body, httpStatus)
}

// DeleteExpired удаляет до limit записей с TTL не позже before, начиная с самых старых.
func (r *IdempotencyRepository) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.clock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []domain.IdempotencyRecord
	for _, record := range r.records {
		if record.Expired(before) {
			expired = append(expired, record)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].TTLAt.Before(expired[j].TTLAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, record := range expired {
		delete(r.records, record.Key)
	}
	return len(expired), nil
}

func (r *IdempotencyRepository) lookup(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	record, ok := r.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return record, nil
}

func (r *IdempotencyRepository) finish(key string, status domain.IdempotencyStatus, body []byte, httpStatus int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.lookup(key)
	if err != nil {
		return err
	}
	record.Status = status
	record.ResponseBody = append([]byte(nil), body...)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = r.clock()
	r.records[record.Key] = record
	return nil
}

func copyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	src.ResponseBody = append([]byte(nil), src.ResponseBody...)
	return src
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
