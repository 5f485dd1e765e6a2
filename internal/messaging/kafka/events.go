package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// Topics по умолчанию.
const (
	TopicOrderEvents     = "bookstore.order.events"
	TopicDeadLetterQueue = "bookstore.dlq"
)

// Заголовки Kafka-сообщений. Потребитель может маршрутизировать по ним без разбора тела.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Envelope описывает тело сообщения, которое уходит в topic событий заказа.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение. Тело, не являющееся JSON, передаётся строкой.
func NewEnvelope(msg domain.OutboxMessage, now time.Time) (Envelope, error) {
	payload := json.RawMessage(msg.Payload)
	switch {
	case len(payload) == 0:
		payload = json.RawMessage("null")
	case !json.Valid(payload):
		quoted, err := json.Marshal(string(msg.Payload))
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal raw payload: %w", err)
		}
		payload = quoted
	}

	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   now.UTC(),
	}, nil
}

// DecodeEnvelope разбирает тело сообщения из topic событий.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
