package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/esewa"
	"github.com/vladislavdragonenkov/bookstore/internal/messaging/kafka"
)

// StorageDriver выбирает реализацию хранилищ.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// sandboxSecretKey: публичный секрет тестового окружения eSewa; допустим только с in-memory хранилищем.
const sandboxSecretKey = "8gBm/:&EnhH.1/q"

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr       string
	MetricsAddr    string
	GRPCHealthAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	Esewa esewa.Config

	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration

	KafkaBrokers  []string
	KafkaClientID string
	OutboxTopic   string
	DLQTopic      string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	// ReconcileInterval == 0 отключает фоновую сверку.
	ReconcileInterval    time.Duration
	ReconcileMinAge      time.Duration
	ReconcileBatchSize   int
	ReconcileConcurrency int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	OTLPEndpoint string
	ServiceName  string

	LogLevel  string
	LogFormat string

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки локального запуска: in-memory хранилище, без Kafka.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		Esewa:                       esewa.DefaultConfig(),
		BreakerMaxFailures:          5,
		BreakerResetTimeout:         30 * time.Second,
		KafkaClientID:               "bookstore-api",
		OutboxTopic:                 kafka.TopicOrderEvents,
		DLQTopic:                    kafka.TopicDeadLetterQueue,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		ReconcileInterval:           time.Minute,
		ReconcileMinAge:             5 * time.Minute,
		ReconcileBatchSize:          50,
		ReconcileConcurrency:        4,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		ServiceName:                 "bookstore-api",
		LogLevel:                    "info",
		LogFormat:                   "text",
		ShutdownTimeout:             10 * time.Second,
	}
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	esewaCfg := c.Esewa
	if esewaCfg.SecretKey == "" && c.StorageDriver == StorageDriverMemory {
		esewaCfg.SecretKey = sandboxSecretKey
	}
	if err := esewaCfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox poll interval must be positive"))
	}
	if c.ReconcileInterval < 0 || c.ReconcileMinAge < 0 {
		errs = append(errs, errors.New("reconcile interval and min age must be non-negative"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// esewaConfig возвращает настройки шлюза с sandbox-секретом для локального запуска.
func (c Config) esewaConfig() esewa.Config {
	cfg := c.Esewa
	if cfg.SecretKey == "" && c.StorageDriver == StorageDriverMemory {
		cfg.SecretKey = sandboxSecretKey
	}
	return cfg
}

// LoadConfig накладывает переменные окружения на DefaultConfig.
// lookup обычно os.LookupEnv.
func LoadConfig(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	env := envReader{lookup: lookup}

	env.str("BOOKSTORE_HTTP_ADDR", &cfg.HTTPAddr)
	env.str("BOOKSTORE_METRICS_ADDR", &cfg.MetricsAddr)
	env.str("BOOKSTORE_GRPC_HEALTH_ADDR", &cfg.GRPCHealthAddr)
	env.str("BOOKSTORE_POSTGRES_DSN", &cfg.PostgresDSN)
	if cfg.PostgresDSN != "" {
		cfg.StorageDriver = StorageDriverPostgres
	}
	var driver string
	env.str("BOOKSTORE_STORAGE_DRIVER", &driver)
	if driver != "" {
		cfg.StorageDriver = StorageDriver(strings.ToLower(driver))
	}
	env.boolean("BOOKSTORE_POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)

	env.str("BOOKSTORE_SERVER_URL", &cfg.Esewa.ServerURL)
	env.str("ESEWA_MERCHANT_CODE", &cfg.Esewa.MerchantCode)
	env.str("ESEWA_SECRET_KEY", &cfg.Esewa.SecretKey)
	env.str("ESEWA_PAYMENT_URL", &cfg.Esewa.PaymentURL)
	env.str("ESEWA_STATUS_URL", &cfg.Esewa.StatusURL)
	env.duration("ESEWA_TIMEOUT", &cfg.Esewa.Timeout)
	env.integer("ESEWA_BREAKER_MAX_FAILURES", &cfg.BreakerMaxFailures)
	env.duration("ESEWA_BREAKER_RESET_TIMEOUT", &cfg.BreakerResetTimeout)

	var brokers string
	env.str("KAFKA_BROKERS", &brokers)
	cfg.KafkaBrokers = splitList(brokers)
	env.str("KAFKA_CLIENT_ID", &cfg.KafkaClientID)
	env.str("BOOKSTORE_OUTBOX_TOPIC", &cfg.OutboxTopic)
	env.str("BOOKSTORE_DLQ_TOPIC", &cfg.DLQTopic)
	env.duration("BOOKSTORE_OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	env.integer("BOOKSTORE_OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	env.integer("BOOKSTORE_OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	env.duration("BOOKSTORE_OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)

	env.duration("BOOKSTORE_RECONCILE_INTERVAL", &cfg.ReconcileInterval)
	env.duration("BOOKSTORE_RECONCILE_MIN_AGE", &cfg.ReconcileMinAge)
	env.integer("BOOKSTORE_RECONCILE_BATCH_SIZE", &cfg.ReconcileBatchSize)
	env.integer("BOOKSTORE_RECONCILE_CONCURRENCY", &cfg.ReconcileConcurrency)

	env.duration("BOOKSTORE_IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	env.integer("BOOKSTORE_IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	env.str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTLPEndpoint)
	env.str("OTEL_SERVICE_NAME", &cfg.ServiceName)
	env.str("BOOKSTORE_LOG_LEVEL", &cfg.LogLevel)
	env.str("BOOKSTORE_LOG_FORMAT", &cfg.LogFormat)
	env.duration("BOOKSTORE_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if len(env.errs) > 0 {
		return Config{}, errors.Join(env.errs...)
	}
	return cfg, nil
}

// ConfigureLogger применяет уровень и формат логирования.
func ConfigureLogger(cfg Config) {
	if strings.EqualFold(cfg.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) value(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.value(key); ok {
		*dst = v
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
