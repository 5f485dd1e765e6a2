package domain

import (
	"math"
	"strings"
	"time"
)

// Book описывает позицию каталога. Stock изменяется только относительными операциями.
type Book struct {
	ID         string
	Title      string
	Author     string
	PriceMinor int64
	Stock      int32
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate проверяет обязательные поля книги.
func (b *Book) Validate() []error {
	var errs []error
	if strings.TrimSpace(b.Title) == "" {
		errs = append(errs, ErrBookTitleRequired)
	}
	if b.PriceMinor < 0 {
		errs = append(errs, ErrBookPriceNegative)
	}
	if b.Stock < 0 {
		errs = append(errs, ErrBookStockNegative)
	}
	return errs
}

// ApplyStockDelta возвращает остаток после относительного изменения на delta.
// Результат должен остаться в пределах [0, MaxInt32].
func ApplyStockDelta(stock, delta int32) (int32, error) {
	next := int64(stock) + int64(delta)
	switch {
	case next < 0:
		return 0, ErrInsufficientStock
	case next > math.MaxInt32:
		return 0, ErrBookStockTooLarge
	}
	return int32(next), nil
}

// BookQuery задаёт поиск и пагинацию каталога.
type BookQuery struct {
	// Search ищет подстроку в названии или авторе без учёта регистра.
	Search string
	Offset int
	Limit  int
}

// Matches применяет фильтр Search к книге; используется in-memory хранилищем.
func (q BookQuery) Matches(b Book) bool {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(b.Title), needle) ||
		strings.Contains(strings.ToLower(b.Author), needle)
}

// CartItem описывает позицию корзины со снимком цены на момент добавления.
type CartItem struct {
	BookID     string
	Qty        int32
	PriceMinor int64
}

// Cart описывает корзину пользователя, по одной на пользователя.
type Cart struct {
	UserID     string
	Items      []CartItem
	TotalMinor int64
	UpdatedAt  time.Time
}

// Recalculate пересчитывает производную сумму корзины.
func (c *Cart) Recalculate() {
	var total int64
	for _, item := range c.Items {
		total += int64(item.Qty) * item.PriceMinor
	}
	c.TotalMinor = total
}

// IndexOf возвращает индекс позиции с книгой bookID или -1.
func (c *Cart) IndexOf(bookID string) int {
	for i, item := range c.Items {
		if item.BookID == bookID {
			return i
		}
	}
	return -1
}

// Clear очищает корзину.
func (c *Cart) Clear() {
	c.Items = nil
	c.TotalMinor = 0
}
