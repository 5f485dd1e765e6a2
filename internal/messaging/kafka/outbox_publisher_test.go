package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		env, err := DecodeEnvelope(val)
		if err != nil {
			return err
		}
		if env.ID != "outbox-1" || env.AggregateID != "order-123" || env.EventType != domain.EventOrderPaid {
			return errors.New("envelope fields mismatch")
		}
		if string(env.Payload) != `{"status":"paid"}` {
			return errors.New("payload mismatch: " + string(env.Payload))
		}
		if !env.PublishedAt.Equal(fixed) {
			return errors.New("published_at mismatch")
		}
		return nil
	})

	producer := newProducer(mockProducer)
	producer.now = func() time.Time { return fixed }
	publisher := NewOutboxPublisher(producer, "")
	if publisher.Topic() != TopicOrderEvents {
		t.Fatalf("expected default topic, got %s", publisher.Topic())
	}

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     domain.EventOrderPaid,
		Payload:       []byte(`{"status":"paid"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(newProducer(mockProducer), TopicDeadLetterQueue)
	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:          "outbox-2",
		AggregateID: "order-234",
		EventType:   domain.EventOrderPaymentFailed,
		Payload:     []byte(`{"status":"failed"}`),
	})
	if !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestNewEnvelope_NonJSONPayload(t *testing.T) {
	t.Parallel()

	env, err := NewEnvelope(domain.OutboxMessage{ID: "x", Payload: []byte("plain text")}, time.Now())
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	var s string
	if err := json.Unmarshal(env.Payload, &s); err != nil || s != "plain text" {
		t.Fatalf("expected quoted payload, got %s (%v)", env.Payload, err)
	}

	env, err = NewEnvelope(domain.OutboxMessage{ID: "y"}, time.Now())
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	if string(env.Payload) != "null" {
		t.Fatalf("expected null payload, got %s", env.Payload)
	}
}
