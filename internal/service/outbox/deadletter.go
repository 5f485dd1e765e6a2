package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// DeadLetter конверт события, которое не удалось опубликовать. Его читает dlq-replay.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	PublishedAt   time.Time       `json:"dlq_published_at"`
}

// NewDeadLetter упаковывает событие и причину отказа. Payload, не являющийся JSON,
// сохраняется строкой, чтобы конверт оставался валидным JSON.
func NewDeadLetter(event domain.OutboxMessage, cause error, at time.Time) DeadLetter {
	payload := json.RawMessage(event.Payload)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(event.Payload))
	}
	letter := DeadLetter{
		OutboxID:      event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   at.UTC(),
	}
	if cause != nil {
		letter.PublishError = cause.Error()
	}
	return letter
}

// Message превращает конверт в сообщение для DLQ-топика с тем же ID и ключом агрегата.
func (d DeadLetter) Message() (domain.OutboxMessage, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal dlq envelope: %w", err)
	}
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       body,
	}, nil
}

// Original восстанавливает исходное событие из конверта.
func (d DeadLetter) Original() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       append([]byte(nil), d.Payload...),
	}
}
