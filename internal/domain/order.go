package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending - заказ создан и ожидает оплаты.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid - оплата подтверждена шлюзом, склад и корзина обработаны.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusFailed - шлюз сообщил о неуспешной оплате; повторный опрос может вернуть заказ в работу.
	OrderStatusFailed OrderStatus = "failed"
	// OrderStatusCancelled - заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal возвращает true для статусов, из которых переходов нет.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// CanTransition проверяет допустимость перехода from → to.
// failed не терминален: опрос шлюза может вернуть заказ в pending или перевести в paid.
func CanTransition(from, to OrderStatus) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	switch from {
	case OrderStatusPending:
		return to == OrderStatusPaid || to == OrderStatusFailed || to == OrderStatusCancelled
	case OrderStatusFailed:
		return to == OrderStatusPaid || to == OrderStatusPending || to == OrderStatusCancelled
	default:
		return false
	}
}

// OrderItem - снимок позиции корзины на момент оформления заказа.
type OrderItem struct {
	ID     string
	BookID string
	Qty    int32
	// PriceMinor - цена за единицу в минимальных единицах (пайса), зафиксированная при оформлении.
	PriceMinor int64
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID           string
	UserID       string
	Items        []OrderItem
	TotalMinor   int64
	Status       OrderStatus
	PaymentRefID string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OwnedBy проверяет принадлежность заказа пользователю.
func (o *Order) OwnedBy(userID string) bool {
	return userID != "" && o.UserID == userID
}

// ItemsTotal считает сумму позиций: qty * price.
func (o *Order) ItemsTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += int64(item.Qty) * item.PriceMinor
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	for _, item := range o.Items {
		if item.BookID == "" {
			errs = append(errs, ErrItemBookRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if o.ItemsTotal() != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
