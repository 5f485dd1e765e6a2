package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type bookRecord struct {
	book domain.Book
	seq  int64
}

// BookRepository хранит каталог в памяти.
type BookRepository struct {
	s *Store
}

// Create добавляет книгу.
func (r *BookRepository) Create(_ context.Context, book domain.Book) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.books[book.ID]; exists {
		return domain.Wrap(domain.ErrInvalidRequest, fmt.Errorf("book %s already exists", book.ID))
	}
	now := r.s.now()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now
	r.s.books[book.ID] = bookRecord{book: book, seq: r.s.nextSeq()}
	return nil
}

// Get возвращает книгу или ErrBookNotFound.
func (r *BookRepository) Get(_ context.Context, id string) (domain.Book, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.books[id]
	if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return rec.book, nil
}

// List фильтрует каталог и возвращает страницу вместе с общим числом совпадений.
func (r *BookRepository) List(_ context.Context, query domain.BookQuery) ([]domain.Book, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	recs := make([]bookRecord, 0, len(r.s.books))
	for _, rec := range r.s.books {
		if query.Matches(rec.book) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		ti, tj := strings.ToLower(recs[i].book.Title), strings.ToLower(recs[j].book.Title)
		if ti != tj {
			return ti < tj
		}
		return recs[i].seq < recs[j].seq
	})

	total := len(recs)
	start := query.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if query.Limit > 0 && start+query.Limit < end {
		end = start + query.Limit
	}

	page := make([]domain.Book, 0, end-start)
	for _, rec := range recs[start:end] {
		page = append(page, rec.book)
	}
	return page, total, nil
}

// Update сохраняет описательные поля, цену и относительное изменение остатка под одной блокировкой.
func (r *BookRepository) Update(_ context.Context, book domain.Book, stockDelta int32) (domain.Book, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.books[book.ID]
	if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	stock, err := domain.ApplyStockDelta(rec.book.Stock, stockDelta)
	if err != nil {
		return domain.Book{}, err
	}
	rec.book.Title = book.Title
	rec.book.Author = book.Author
	rec.book.PriceMinor = book.PriceMinor
	rec.book.Stock = stock
	rec.book.UpdatedAt = r.s.now()
	r.s.books[book.ID] = rec
	return rec.book, nil
}

// AdjustStock относительно меняет остаток книги.
func (r *BookRepository) AdjustStock(_ context.Context, id string, delta int32) (domain.Book, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.books[id]
	if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	stock, err := domain.ApplyStockDelta(rec.book.Stock, delta)
	if err != nil {
		return domain.Book{}, err
	}
	rec.book.Stock = stock
	rec.book.UpdatedAt = r.s.now()
	r.s.books[id] = rec
	return rec.book, nil
}

// Delete удаляет книгу.
func (r *BookRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.books[id]; !ok {
		return domain.ErrBookNotFound
	}
	delete(r.s.books, id)
	return nil
}

var _ domain.BookRepository = (*BookRepository)(nil)
