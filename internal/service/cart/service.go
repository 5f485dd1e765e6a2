// Package cart реализует операции с корзиной пользователя.
package cart

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// Service управляет корзинами.
type Service struct {
	carts  domain.CartRepository
	books  domain.BookRepository
	logger *log.Entry
}

// NewService создаёт сервис корзины.
func NewService(carts domain.CartRepository, books domain.BookRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	return &Service{carts: carts, books: books, logger: logger}
}

// Get возвращает корзину; при первом обращении создаётся пустая.
func (s *Service) Get(ctx context.Context, userID string) (domain.Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	if errors.Is(err, domain.ErrCartNotFound) {
		c = domain.Cart{UserID: userID}
		if err := s.carts.Save(ctx, c); err != nil {
			return domain.Cart{}, domain.Wrap(domain.ErrInternal, err)
		}
		return s.carts.Get(ctx, userID)
	}
	if err != nil {
		return domain.Cart{}, domain.Wrap(domain.ErrInternal, err)
	}
	return c, nil
}

// AddItem добавляет книгу или увеличивает количество уже лежащей в корзине.
func (s *Service) AddItem(ctx context.Context, userID, bookID string, qty int32) (domain.Cart, error) {
	if qty < 1 {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}
	book, err := s.book(ctx, bookID)
	if err != nil {
		return domain.Cart{}, err
	}

	c, err := s.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}

	if idx := c.IndexOf(bookID); idx >= 0 {
		newQty := c.Items[idx].Qty + qty
		if book.Stock < newQty {
			return domain.Cart{}, insufficient(book, book.Stock-c.Items[idx].Qty)
		}
		c.Items[idx].Qty = newQty
	} else {
		if book.Stock < qty {
			return domain.Cart{}, insufficient(book, book.Stock)
		}
		c.Items = append(c.Items, domain.CartItem{BookID: bookID, Qty: qty, PriceMinor: book.PriceMinor})
	}

	return s.save(ctx, c)
}

// UpdateItem выставляет количество и обновляет снимок цены.
func (s *Service) UpdateItem(ctx context.Context, userID, bookID string, qty int32) (domain.Cart, error) {
	if qty < 1 {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}
	c, err := s.existing(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	idx := c.IndexOf(bookID)
	if idx < 0 {
		return domain.Cart{}, domain.ErrCartItemNotFound
	}

	book, err := s.book(ctx, bookID)
	if err != nil {
		return domain.Cart{}, err
	}
	if book.Stock < qty {
		return domain.Cart{}, insufficient(book, book.Stock)
	}

	c.Items[idx].Qty = qty
	c.Items[idx].PriceMinor = book.PriceMinor
	return s.save(ctx, c)
}

// RemoveItem удаляет позицию из корзины.
func (s *Service) RemoveItem(ctx context.Context, userID, bookID string) (domain.Cart, error) {
	c, err := s.existing(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	idx := c.IndexOf(bookID)
	if idx < 0 {
		return domain.Cart{}, domain.ErrCartItemNotFound
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return s.save(ctx, c)
}

// Clear очищает корзину.
func (s *Service) Clear(ctx context.Context, userID string) (domain.Cart, error) {
	c, err := s.existing(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	c.Clear()
	return s.save(ctx, c)
}

func (s *Service) existing(ctx context.Context, userID string) (domain.Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrCartNotFound) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, domain.Wrap(domain.ErrInternal, err)
	}
	return c, nil
}

func (s *Service) book(ctx context.Context, bookID string) (domain.Book, error) {
	book, err := s.books.Get(ctx, bookID)
	if err != nil {
		if errors.Is(err, domain.ErrBookNotFound) {
			return domain.Book{}, domain.ErrBookNotFound
		}
		return domain.Book{}, domain.Wrap(domain.ErrInternal, err)
	}
	return book, nil
}

func (s *Service) save(ctx context.Context, c domain.Cart) (domain.Cart, error) {
	c.Recalculate()
	if err := s.carts.Save(ctx, c); err != nil {
		s.logger.WithError(err).WithField("user_id", c.UserID).Error("save cart failed")
		return domain.Cart{}, domain.Wrap(domain.ErrInternal, err)
	}
	return c, nil
}

func insufficient(book domain.Book, available int32) error {
	if available < 0 {
		available = 0
	}
	return domain.Wrap(domain.ErrInsufficientStock, fmt.Errorf("only %d of %q available", available, book.Title))
}
