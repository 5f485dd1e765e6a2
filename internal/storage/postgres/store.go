// Package postgres хранит каталог, корзины, заказы и служебные таблицы в PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// opTimeout ограничивает одну операцию репозитория.
const opTimeout = 5 * time.Second

// pgUniqueViolation код ошибки PostgreSQL для нарушения уникальности.
const pgUniqueViolation = "23505"

// ErrNotInitialized возвращается при обращении к незакрытому, но не открытому Store.
var ErrNotInitialized = errors.New("postgres store is not initialized")

type storeOptions struct {
	pingTimeout  time.Duration
	maxOpenConns int
	maxIdleConns int
	connLifetime time.Duration
	connIdleTime time.Duration
	clock        func() time.Time
}

// Option настраивает Store при открытии.
type Option func(*storeOptions)

// WithPool задаёт размер пула подключений.
func WithPool(maxOpen, maxIdle int) Option {
	return func(o *storeOptions) {
		if maxOpen > 0 {
			o.maxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			o.maxIdleConns = maxIdle
		}
	}
}

// WithPingTimeout ограничивает проверку доступности базы.
func WithPingTimeout(d time.Duration) Option {
	return func(o *storeOptions) {
		if d > 0 {
			o.pingTimeout = d
		}
	}
}

// WithClock подменяет источник времени для updated_at и TTL.
func WithClock(clock func() time.Time) Option {
	return func(o *storeOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Store оборачивает SQL-подключение к PostgreSQL.
type Store struct {
	db          *sql.DB
	clock       func() time.Time
	pingTimeout time.Duration
}

// Open открывает пул через драйвер pgx и проверяет, что база отвечает.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	o := storeOptions{
		pingTimeout:  5 * time.Second,
		maxOpenConns: 25,
		maxIdleConns: 25,
		connLifetime: 30 * time.Minute,
		connIdleTime: 5 * time.Minute,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxIdleConns)
	db.SetConnMaxLifetime(o.connLifetime)
	db.SetConnMaxIdleTime(o.connIdleTime)

	store := &Store{db: db, clock: o.clock, pingTimeout: o.pingTimeout}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

func (s *Store) now() time.Time { return s.clock().UTC() }

// DB возвращает raw SQL DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения. Store реализует health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// EnsureSchema доводит схему до последней версии.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает пул. Повторный вызов и nil-Store безопасны.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// queryer покрывает общее подмножество *sql.DB и *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx выполняет fn в транзакции; ошибка или паника fn откатывает транзакцию.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// collectRows сканирует все строки результата через scan и закрывает rows.
func collectRows[T any](rows *sql.Rows, what string, scan func(*sql.Rows) (T, error)) ([]T, error) {
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return out, nil
}
