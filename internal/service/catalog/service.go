// Package catalog реализует чтение каталога и административные изменения книг.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page описывает страницу результатов поиска.
type Page struct {
	Books []domain.Book
	Total int
	Page  int
	Limit int
}

// TotalPages возвращает число страниц при текущем размере.
func (p Page) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// BookUpdate описывает частичное изменение книги администратором. nil означает «не менять».
type BookUpdate struct {
	Title      *string
	Author     *string
	PriceMinor *int64
	// StockDelta меняет остаток относительно; абсолютной перезаписи нет.
	StockDelta *int32
}

// Service реализует операции каталога.
type Service struct {
	books  domain.BookRepository
	logger *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(books domain.BookRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{books: books, logger: logger}
}

// List ищет книги по подстроке и отдаёт страницу page (с 1) размером limit.
func (s *Service) List(ctx context.Context, search string, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	books, total, err := s.books.List(ctx, domain.BookQuery{
		Search: strings.TrimSpace(search),
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return Page{}, domain.Wrap(domain.ErrInternal, err)
	}
	return Page{Books: books, Total: total, Page: page, Limit: limit}, nil
}

// Get возвращает книгу.
func (s *Service) Get(ctx context.Context, id string) (domain.Book, error) {
	book, err := s.books.Get(ctx, id)
	if err != nil {
		return domain.Book{}, normalize(err)
	}
	return book, nil
}

// Create добавляет книгу в каталог.
func (s *Service) Create(ctx context.Context, book domain.Book) (domain.Book, error) {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	if errs := book.Validate(); len(errs) > 0 {
		return domain.Book{}, errs[0]
	}
	now := time.Now().UTC()
	book.CreatedAt, book.UpdatedAt = now, now

	if err := s.books.Create(ctx, book); err != nil {
		return domain.Book{}, normalize(err)
	}
	s.logger.WithFields(log.Fields{"book_id": book.ID, "stock": book.Stock}).Info("book created")
	return book, nil
}

// Update применяет частичное изменение одной операцией хранилища: отказ по остатку
// не оставляет сохранённой новую цену. Остаток меняется только относительно,
// чтобы не затереть параллельное списание при оплате.
func (s *Service) Update(ctx context.Context, id string, upd BookUpdate) (domain.Book, error) {
	var delta int32
	if upd.StockDelta != nil {
		delta = *upd.StockDelta
	}

	if upd.Title == nil && upd.Author == nil && upd.PriceMinor == nil {
		if delta == 0 {
			return s.Get(ctx, id)
		}
		book, err := s.books.AdjustStock(ctx, id, delta)
		if err != nil {
			return domain.Book{}, normalize(err)
		}
		s.logStock(book, delta)
		return book, nil
	}

	book, err := s.books.Get(ctx, id)
	if err != nil {
		return domain.Book{}, normalize(err)
	}
	if upd.Title != nil {
		book.Title = *upd.Title
	}
	if upd.Author != nil {
		book.Author = *upd.Author
	}
	if upd.PriceMinor != nil {
		book.PriceMinor = *upd.PriceMinor
	}
	if errs := book.Validate(); len(errs) > 0 {
		return domain.Book{}, errs[0]
	}

	if book, err = s.books.Update(ctx, book, delta); err != nil {
		return domain.Book{}, normalize(err)
	}
	if delta != 0 {
		s.logStock(book, delta)
	}
	return book, nil
}

// Delete убирает книгу из каталога. Оформленные заказы хранят свои снимки цен,
// а позиции корзин с этой книгой пропускаются при оформлении.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.books.Delete(ctx, id); err != nil {
		return normalize(err)
	}
	s.logger.WithField("book_id", id).Info("book deleted")
	return nil
}

func (s *Service) logStock(book domain.Book, delta int32) {
	s.logger.WithFields(log.Fields{
		"book_id": book.ID,
		"delta":   delta,
		"stock":   book.Stock,
	}).Info("book stock adjusted")
}

func normalize(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Wrap(domain.ErrInternal, err)
}
