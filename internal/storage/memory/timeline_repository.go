package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// TimelineRepository хранит события заказов в памяти (для разработки и тестов).
type TimelineRepository struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() *TimelineRepository {
	return &TimelineRepository{events: make(map[string][]domain.TimelineEvent)}
}

// Append добавляет событие; порядок по времени сохраняется, равные по времени идут в порядке вставки.
func (r *TimelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := append(r.events[event.OrderID], event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	r.events[event.OrderID] = events

	return nil
}

// List возвращает события заказа в хронологическом порядке.
func (r *TimelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
