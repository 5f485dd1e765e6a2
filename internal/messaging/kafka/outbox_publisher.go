package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный topic.
// Ключом сообщения служит ID заказа, поэтому события одного заказа попадают в одну партицию.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт publisher; пустой topic заменяется на TopicOrderEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// Topic возвращает topic назначения.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

// Publish отправляет сообщение, обёрнутое в Envelope.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return domain.Wrap(domain.ErrOutboxPublish, fmt.Errorf("kafka outbox publisher is not initialized"))
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	env, err := NewEnvelope(event, p.producer.now())
	if err != nil {
		return domain.Wrap(domain.ErrOutboxPublish, err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return domain.Wrap(domain.ErrOutboxPublish, fmt.Errorf("marshal envelope: %w", err))
	}

	headers := map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
		HeaderOutboxID:      event.ID,
	}
	if err := p.producer.Send(ctx, p.topic, key, body, headers); err != nil {
		return domain.Wrap(domain.ErrOutboxPublish, err)
	}
	return nil
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
