package memory

import (
	"sync"
	"time"
)

// Store - in-memory хранилище заказов, каталога, корзин и outbox под одной блокировкой.
// Общая блокировка нужна settlement: статус заказа, остатки, корзина и outbox-событие
// меняются вместе.
type Store struct {
	mu     sync.RWMutex
	now    func() time.Time
	orders map[string]orderRecord
	books  map[string]bookRecord
	carts  map[string]cartRecord
	outbox map[string]*outboxRecord
	seq    int64
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		now:    func() time.Time { return time.Now().UTC() },
		orders: make(map[string]orderRecord),
		books:  make(map[string]bookRecord),
		carts:  make(map[string]cartRecord),
		outbox: make(map[string]*outboxRecord),
	}
}

// Orders возвращает репозиторий заказов поверх хранилища.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// Books возвращает репозиторий каталога.
func (s *Store) Books() *BookRepository { return &BookRepository{s: s} }

// Carts возвращает репозиторий корзин.
func (s *Store) Carts() *CartRepository { return &CartRepository{s: s} }

// Outbox возвращает outbox-репозиторий.
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{s: s} }

// nextSeq выдаёт монотонный номер вставки; вызывается под s.mu.
func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}
