package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/messaging/kafka"
)

// initKafkaProducer создаёт producer, если брокеры заданы.
// Пустой список означает работу без Kafka: nil, nil.
func initKafkaProducer(brokers []string, clientID string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, clientID)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// outboxPublishers возвращает основной и DLQ-публикатор.
// Без Kafka события только логируются, чтобы outbox не копился в локальном запуске.
func outboxPublishers(producer *kafka.Producer, cfg Config, logger *log.Entry) (domain.OutboxPublisher, domain.OutboxPublisher) {
	if producer == nil {
		return logPublisher{logger: logger.WithField("sink", "log")}, nil
	}
	return kafka.NewOutboxPublisher(producer, cfg.OutboxTopic), kafka.NewOutboxPublisher(producer, cfg.DLQTopic)
}

// logPublisher пишет события в лог вместо брокера.
type logPublisher struct {
	logger *log.Entry
}

func (p logPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"event_id":     event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}).Info("outbox event")
	return nil
}
