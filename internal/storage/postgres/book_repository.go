package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const bookColumns = `id, title, author, price_minor, stock, created_at, updated_at`

type bookRepository struct {
	store *Store
}

// NewBookRepository создаёт PostgreSQL-реализацию BookRepository.
func NewBookRepository(store *Store) domain.BookRepository {
	return &bookRepository{store: store}
}

func (r *bookRepository) Create(ctx context.Context, book domain.Book) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := r.store.now()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO books (`+bookColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, book.ID, book.Title, book.Author, book.PriceMinor, book.Stock, book.CreatedAt, book.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Wrap(domain.ErrInvalidRequest, fmt.Errorf("book %s already exists", book.ID))
		}
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (r *bookRepository) Get(ctx context.Context, id string) (domain.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	book, err := scanBook(r.store.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Book{}, domain.ErrBookNotFound
		}
		return domain.Book{}, fmt.Errorf("select book: %w", err)
	}
	return book, nil
}

func (r *bookRepository) List(ctx context.Context, query domain.BookQuery) ([]domain.Book, int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pattern := likePattern(query.Search)

	var total int
	if err := r.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM books
		WHERE $1 = '' OR title ILIKE $1 OR author ILIKE $1
	`, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	offset := query.Offset
	if offset < 0 {
		offset = 0
	}
	limit := any(nil)
	if query.Limit > 0 {
		limit = query.Limit
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+bookColumns+`
		FROM books
		WHERE $1 = '' OR title ILIKE $1 OR author ILIKE $1
		ORDER BY lower(title) ASC, created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := make([]domain.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate books: %w", err)
	}
	return books, total, nil
}

// Update меняет описание, цену и остаток одним UPDATE: при отказе по остатку цена тоже не меняется.
func (r *bookRepository) Update(ctx context.Context, book domain.Book, stockDelta int32) (domain.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	updated, err := scanBook(r.store.db.QueryRowContext(ctx, `
		UPDATE books
		SET title = $2,
		    author = $3,
		    price_minor = $4,
		    stock = stock + $5,
		    updated_at = $6
		WHERE id = $1
		  AND stock::bigint + $5 BETWEEN 0 AND 2147483647
		RETURNING `+bookColumns,
		book.ID, book.Title, book.Author, book.PriceMinor, stockDelta, r.store.now(),
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	return domain.Book{}, r.stockRejection(ctx, book.ID, stockDelta)
}

// AdjustStock меняет остаток одним UPDATE, границы [0, MaxInt32] проверяет сама база.
func (r *bookRepository) AdjustStock(ctx context.Context, id string, delta int32) (domain.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	book, err := scanBook(r.store.db.QueryRowContext(ctx, `
		UPDATE books
		SET stock = stock + $2,
		    updated_at = $3
		WHERE id = $1
		  AND stock::bigint + $2 BETWEEN 0 AND 2147483647
		RETURNING `+bookColumns,
		id, delta, r.store.now(),
	))
	if err == nil {
		return book, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Book{}, fmt.Errorf("adjust stock: %w", err)
	}
	return domain.Book{}, r.stockRejection(ctx, id, delta)
}

// stockRejection объясняет, почему условный UPDATE не затронул строку.
func (r *bookRepository) stockRejection(ctx context.Context, id string, delta int32) error {
	var stock int32
	err := r.store.db.QueryRowContext(ctx, `SELECT stock FROM books WHERE id = $1`, id).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrBookNotFound
	}
	if err != nil {
		return fmt.Errorf("check book stock: %w", err)
	}
	if _, err := domain.ApplyStockDelta(stock, delta); err != nil {
		return err
	}
	// Остаток успел измениться между запросами.
	return domain.ErrInsufficientStock
}

func (r *bookRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

func scanBook(row rowScanner) (domain.Book, error) {
	var book domain.Book
	if err := row.Scan(
		&book.ID, &book.Title, &book.Author, &book.PriceMinor,
		&book.Stock, &book.CreatedAt, &book.UpdatedAt,
	); err != nil {
		return domain.Book{}, err
	}
	book.CreatedAt = book.CreatedAt.UTC()
	book.UpdatedAt = book.UpdatedAt.UTC()
	return book, nil
}

// likePattern превращает строку поиска в шаблон ILIKE; спецсимволы экранируются.
func likePattern(search string) string {
	search = strings.TrimSpace(search)
	if search == "" {
		return ""
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(search)
	return "%" + escaped + "%"
}

var _ domain.BookRepository = (*bookRepository)(nil)
