package domain

import "errors"

// ErrorKind - закрытый набор категорий ошибок. Транспортный слой переводит категорию
// в HTTP-статус, доменный код о транспорте ничего не знает.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindInvalidState      ErrorKind = "invalid_state"
	KindValidation        ErrorKind = "validation"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindSecurityViolation ErrorKind = "security_violation"
	KindUpstreamFailure   ErrorKind = "upstream_failure"
	KindInternal          ErrorKind = "internal"
)

// Машиночитаемые коды, которые видит клиент.
const (
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeOrderAlreadyPaid    = "ORDER_ALREADY_PAID"
	CodeOrderCancelled      = "ORDER_CANCELLED"
	CodeOrderInvalid        = "ORDER_INVALID"
	CodeOrderConflict       = "ORDER_CONFLICT"
	CodeNoPaymentData       = "NO_PAYMENT_DATA"
	CodeSignatureMismatch   = "SIGNATURE_MISMATCH"
	CodeAmountMismatch      = "AMOUNT_MISMATCH"
	CodeGatewayUnavailable  = "GATEWAY_UNAVAILABLE"
	CodeBookNotFound        = "BOOK_NOT_FOUND"
	CodeBookInvalid         = "BOOK_INVALID"
	CodeCartNotFound        = "CART_NOT_FOUND"
	CodeCartEmpty           = "CART_EMPTY"
	CodeCartItemNotFound    = "CART_ITEM_NOT_FOUND"
	CodeCartInvalidQuantity = "CART_INVALID_QUANTITY"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeAuthRequired        = "AUTH_REQUIRED"
	CodeForbidden           = "FORBIDDEN"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInternal            = "INTERNAL_SERVER_ERROR"
)

// Error описывает доменную ошибку с категорией и кодом.
// Sentinel-значения ниже сравниваются через errors.Is по указателю.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	// ErrOrderNotFound возвращается, если заказ не найден или принадлежит другому пользователю.
	ErrOrderNotFound = newError(KindNotFound, CodeOrderNotFound, "order not found")
	// ErrOrderAlreadyPaid - попытка оплатить уже оплаченный заказ.
	ErrOrderAlreadyPaid = newError(KindInvalidState, CodeOrderAlreadyPaid, "order is already paid")
	// ErrOrderCancelled - попытка оплатить отменённый заказ.
	ErrOrderCancelled = newError(KindInvalidState, CodeOrderCancelled, "order is cancelled")
	// ErrOrderVersionConflict - заказ с таким ID уже существует.
	ErrOrderVersionConflict = newError(KindInvalidState, CodeOrderConflict, "order version conflict")
	// ErrInvalidTransition - недопустимый переход статуса.
	ErrInvalidTransition = newError(KindInvalidState, CodeOrderConflict, "invalid order status transition")

	// ErrNoPaymentData - callback шлюза пустой или не декодируется.
	ErrNoPaymentData = newError(KindValidation, CodeNoPaymentData, "no payment data received")
	// ErrSignatureMismatch - подпись callback не совпала, подозрение на подделку.
	ErrSignatureMismatch = newError(KindSecurityViolation, CodeSignatureMismatch, "payment verification failed")
	// ErrAmountMismatch - сумма в callback не совпала с суммой заказа.
	ErrAmountMismatch = newError(KindSecurityViolation, CodeAmountMismatch, "payment verification failed")
	// ErrGatewayUnavailable - платёжный шлюз недоступен или вернул некорректный ответ.
	ErrGatewayUnavailable = newError(KindUpstreamFailure, CodeGatewayUnavailable, "payment gateway unavailable")

	ErrBookNotFound       = newError(KindNotFound, CodeBookNotFound, "book not found")
	ErrCartNotFound       = newError(KindNotFound, CodeCartNotFound, "cart not found")
	ErrCartEmpty          = newError(KindValidation, CodeCartEmpty, "cart is empty")
	ErrCartItemNotFound   = newError(KindNotFound, CodeCartItemNotFound, "item not found in cart")
	ErrInvalidQuantity    = newError(KindValidation, CodeCartInvalidQuantity, "quantity must be at least 1")
	ErrInsufficientStock  = newError(KindValidation, CodeInsufficientStock, "insufficient stock")
	ErrAuthRequired       = newError(KindUnauthorized, CodeAuthRequired, "authentication required")
	ErrForbidden          = newError(KindUnauthorized, CodeForbidden, "admin access required")
	ErrInvalidRequest     = newError(KindValidation, CodeInvalidRequest, "invalid request")
	ErrInternal           = newError(KindInternal, CodeInternal, "internal server error")
	ErrOutboxPublish      = newError(KindInternal, CodeInternal, "outbox publish failed")
	ErrInvalidAmount      = newError(KindValidation, CodeInvalidRequest, "invalid amount")
	ErrBookTitleRequired  = newError(KindValidation, CodeBookInvalid, "book title is required")
	ErrBookPriceNegative  = newError(KindValidation, CodeBookInvalid, "book price must be non-negative")
	ErrBookStockNegative  = newError(KindValidation, CodeBookInvalid, "book stock must be non-negative")
	ErrBookStockTooLarge  = newError(KindValidation, CodeBookInvalid, "book stock exceeds the allowed maximum")

	// Ошибки инвариантов заказа.
	ErrUserRequired     = newError(KindValidation, CodeOrderInvalid, "user_id is required")
	ErrItemsRequired    = newError(KindValidation, CodeOrderInvalid, "order must contain at least one item")
	ErrAmountNegative   = newError(KindValidation, CodeOrderInvalid, "total amount must be non-negative")
	ErrItemQtyInvalid   = newError(KindValidation, CodeOrderInvalid, "item qty must be greater than zero")
	ErrItemPriceInvalid = newError(KindValidation, CodeOrderInvalid, "item price must be non-negative")
	ErrItemBookRequired = newError(KindValidation, CodeOrderInvalid, "item book_id is required")
	ErrTotalMismatch    = newError(KindValidation, CodeOrderInvalid, "order total does not match items sum")

	// Ошибки idempotency-key.
	ErrIdempotencyKeyRequired         = newError(KindValidation, CodeInvalidRequest, "idempotency key is required")
	ErrIdempotencyRequestHashRequired = newError(KindValidation, CodeInvalidRequest, "idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = newError(KindNotFound, CodeIdempotencyConflict, "idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = newError(KindInvalidState, CodeIdempotencyConflict, "idempotency key already exists")
	ErrIdempotencyHashMismatch        = newError(KindInvalidState, CodeIdempotencyConflict, "idempotency key reused with different request")
)

// KindOf возвращает категорию ошибки; всё неизвестное считается internal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf возвращает машиночитаемый код ошибки.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// PublicMessage возвращает сообщение, безопасное для клиента.
// Обёртки и внутренние детали наружу не попадают.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != KindInternal {
		return de.Message
	}
	return ErrInternal.Message
}

// Wrap добавляет к доменной ошибке причину, сохраняя категорию и код.
func Wrap(base *Error, cause error) error {
	if cause == nil {
		return base
	}
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message, Err: &wrapped{base: base, cause: cause}}
}

// wrapped позволяет errors.Is находить и sentinel, и исходную причину.
type wrapped struct {
	base  *Error
	cause error
}

func (w *wrapped) Error() string   { return w.cause.Error() }
func (w *wrapped) Unwrap() []error { return []error{w.base, w.cause} }

// IsIdempotencyConflict проверяет, относится ли ошибка к повторному использованию ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
