package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type timelineRepository struct {
	store *Store
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{store: store}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if event.Occurred.IsZero() {
		event.Occurred = r.store.now()
	}

	if _, err := r.store.db.ExecContext(ctx, `
		INSERT INTO timeline_events (order_id, type, reason, source, occurred)
		VALUES ($1,$2,$3,$4,$5)
	`, event.OrderID, event.Type, event.Reason, event.Source, event.Occurred); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT order_id, type, reason, source, occurred
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	return collectRows(rows, "timeline event", func(rows *sql.Rows) (domain.TimelineEvent, error) {
		var event domain.TimelineEvent
		err := rows.Scan(&event.OrderID, &event.Type, &event.Reason, &event.Source, &event.Occurred)
		event.Occurred = event.Occurred.UTC()
		return event, err
	})
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
