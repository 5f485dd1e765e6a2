// Команда dlq-replay возвращает события из DLQ в topic событий заказов.
// По умолчанию работает в dry-run: только показывает, что будет переотправлено.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bookstore/internal/service/outbox"
)

const (
	defaultLimit       = 100
	defaultIdleTimeout = 2 * time.Second
	clientID           = "bookstore-dlq-replay"
)

type replayConfig struct {
	sourceTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// offsetSource: часть sarama.Client, нужная для обхода партиций.
type offsetSource interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

type partitionStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error)
}

type saramaPartitions struct {
	consumer sarama.Consumer
}

func (s saramaPartitions) ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

// replayStats описывает итог прохода по DLQ.
type replayStats struct {
	Scanned  int
	Replayed int
	Skipped  int
}

func (s *replayStats) add(other replayStats) {
	s.Scanned += other.Scanned
	s.Replayed += other.Replayed
	s.Skipped += other.Skipped
}

type replayer struct {
	cfg        replayConfig
	offsets    offsetSource
	partitions partitionSource
	// publisher == nil означает dry-run.
	publisher domain.OutboxPublisher
	logger    *log.Entry
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.WithError(err).Fatal("dlq replay failed")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dlq-replay",
		Usage: "re-publish outbox events from the dead letter topic",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "brokers", Usage: "Kafka brokers", EnvVars: []string{"KAFKA_BROKERS"}},
			&cli.StringFlag{Name: "source-topic", Value: kafka.TopicDeadLetterQueue, Usage: "DLQ topic to scan"},
			&cli.StringFlag{Name: "target-topic", Value: kafka.TopicOrderEvents, Usage: "topic to re-publish into"},
			&cli.IntFlag{Name: "limit", Value: defaultLimit, Usage: "max messages to scan"},
			&cli.BoolFlag{Name: "execute", Usage: "publish for real; dry-run otherwise"},
			&cli.BoolFlag{Name: "from-newest", Usage: "scan only the newest messages of each partition"},
			&cli.DurationFlag{Name: "idle-timeout", Value: defaultIdleTimeout, Usage: "stop reading a partition after this much silence"},
		},
		Action: runReplay,
	}
}

func configFromCLI(c *cli.Context) (replayConfig, []string, string, error) {
	brokers := splitBrokers(c.StringSlice("brokers"))
	cfg := replayConfig{
		sourceTopic: c.String("source-topic"),
		limit:       c.Int("limit"),
		execute:     c.Bool("execute"),
		fromNewest:  c.Bool("from-newest"),
		idleTimeout: c.Duration("idle-timeout"),
	}
	target := c.String("target-topic")

	var errs []error
	if len(brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers are required (--brokers or KAFKA_BROKERS)"))
	}
	if cfg.sourceTopic == "" || target == "" {
		errs = append(errs, errors.New("source and target topics are required"))
	}
	if cfg.limit <= 0 {
		errs = append(errs, errors.New("limit must be positive"))
	}
	if cfg.idleTimeout <= 0 {
		errs = append(errs, errors.New("idle-timeout must be positive"))
	}
	return cfg, brokers, target, errors.Join(errs...)
}

func runReplay(c *cli.Context) error {
	cfg, brokers, target, err := configFromCLI(c)
	if err != nil {
		return err
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = clientID
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(brokers, saramaCfg)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer client.Close()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer consumer.Close()

	r := &replayer{
		cfg:        cfg,
		offsets:    client,
		partitions: saramaPartitions{consumer: consumer},
		logger:     log.WithField("component", "dlq-replay"),
	}
	if cfg.execute {
		producer, err := kafka.NewProducer(brokers, clientID)
		if err != nil {
			return err
		}
		defer producer.Close()
		r.publisher = kafka.NewOutboxPublisher(producer, target)
	}

	stats, err := r.Run(c.Context)
	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  stats.Scanned,
		"replayed": stats.Replayed,
		"skipped":  stats.Skipped,
	}).Info("dlq replay finished")
	return err
}

// Run обходит партиции по возрастанию номера, пока не исчерпан лимит.
func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var total replayStats

	partitions, err := r.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		budget := r.cfg.limit - total.Scanned
		if budget <= 0 {
			break
		}
		stats, err := r.replayPartition(ctx, partition, budget)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (r *replayer) replayPartition(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	// newest указывает на следующее сообщение и служит границей чтения.
	newest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.fromNewest && newest-int64(budget) > oldest {
		start = newest - int64(budget)
	}

	stream, err := r.partitions.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.Scanned < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-stream.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-stream.Messages():
			if !ok || msg == nil {
				return stats, nil
			}
			if msg.Offset >= newest {
				return stats, nil
			}
			resetTimer(idle, r.cfg.idleTimeout)

			stats.Scanned++
			if err := r.replayOne(ctx, msg); err != nil {
				if errors.Is(err, errUndecodable) {
					stats.Skipped++
					r.logger.WithError(err).WithFields(log.Fields{
						"partition": msg.Partition,
						"offset":    msg.Offset,
					}).Warn("skip dlq message")
					continue
				}
				return stats, err
			}
			stats.Replayed++

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) replayOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	event, err := decodeDeadLetter(msg.Value)
	if err != nil {
		return err
	}

	entry := r.logger.WithFields(log.Fields{
		"partition":  msg.Partition,
		"offset":     msg.Offset,
		"outbox_id":  event.ID,
		"event_type": event.EventType,
	})
	if r.publisher == nil {
		entry.Info("dlq replay candidate")
		return nil
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("re-publish %s: %w", event.ID, err)
	}
	entry.Info("dlq message replayed")
	return nil
}

var errUndecodable = errors.New("undecodable dlq message")

// decodeDeadLetter восстанавливает исходное outbox-сообщение из DLQ:
// снаружи kafka.Envelope, в его payload лежит outbox.DeadLetter.
func decodeDeadLetter(value []byte) (domain.OutboxMessage, error) {
	env, err := kafka.DecodeEnvelope(value)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("%w: %v", errUndecodable, err)
	}

	var dead outbox.DeadLetter
	if err := json.Unmarshal(env.Payload, &dead); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("%w: dead letter: %v", errUndecodable, err)
	}
	if len(dead.Payload) == 0 {
		return domain.OutboxMessage{}, fmt.Errorf("%w: original payload is empty", errUndecodable)
	}

	msg := dead.Original()
	msg.ID = firstNonEmpty(msg.ID, env.ID)
	msg.AggregateType = firstNonEmpty(msg.AggregateType, env.AggregateType)
	msg.AggregateID = firstNonEmpty(msg.AggregateID, env.AggregateID)
	msg.EventType = firstNonEmpty(msg.EventType, env.EventType)
	return msg, nil
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// splitBrokers принимает и повторяющийся флаг, и список через запятую из окружения.
func splitBrokers(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
