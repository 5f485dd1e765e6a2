package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	sendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_kafka_messages_total",
		Help: "Messages sent to Kafka by topic and result.",
	}, []string{"topic", "result"})
	sendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookstore_kafka_send_duration_seconds",
		Help:    "Synchronous Kafka send latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
)

// ErrNoBrokers возвращается, если список брокеров пуст.
var ErrNoBrokers = errors.New("kafka brokers are not configured")

// Producer отправляет сообщения синхронно: Send возвращается после подтверждения всех реплик.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

// producerConfig включает идемпотентную доставку; sarama требует для неё acks=all
// и не больше одного запроса в полёте на соединение.
func producerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.Idempotent = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, clientID string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	cfg := producerConfig(clientID)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka producer config: %w", err)
	}

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer: %w", err)
	}
	return newProducer(producer), nil
}

func newProducer(producer sarama.SyncProducer) *Producer {
	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
		now:      time.Now,
	}
}

// Send отправляет value в topic с ключом партиционирования key.
// sarama.SyncProducer не принимает ctx, поэтому отмена проверяется только до отправки.
func (p *Producer) Send(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Timestamp: p.now(),
		Headers:   make([]sarama.RecordHeader, 0, len(headers)),
	}
	for name, val := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(name), Value: []byte(val)})
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	sendDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())

	entry := p.logger.WithFields(log.Fields{"topic": topic, "key": key})
	if err != nil {
		sendTotal.WithLabelValues(topic, "error").Inc()
		entry.WithError(err).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	sendTotal.WithLabelValues(topic, "ok").Inc()
	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka message delivered")
	return nil
}

// Close сбрасывает буферы и закрывает соединения с брокерами.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
