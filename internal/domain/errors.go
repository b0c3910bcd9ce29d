package domain

import (
	"errors"
	"fmt"
)

// ErrorKind классифицирует доменные ошибки для транспорта и метрик.
type ErrorKind string

const (
	KindEmptyCart         ErrorKind = "EMPTY_CART"
	KindCartInactive      ErrorKind = "CART_INACTIVE"
	KindNoInventory       ErrorKind = "NO_INVENTORY"
	KindInsufficientStock ErrorKind = "INSUFFICIENT_STOCK"
	KindIllegalTransition ErrorKind = "ILLEGAL_TRANSITION"
	KindUnknownStatus     ErrorKind = "UNKNOWN_STATUS"
	KindInvalidArgument   ErrorKind = "INVALID_ARGUMENT"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindPersistence       ErrorKind = "PERSISTENCE"
)

var (
	// В корзине нет ни одной позиции.
	ErrEmptyCart = errors.New("cart is empty")
	// Корзина уже оформлена и не может быть использована повторно.
	ErrCartInactive = errors.New("cart is not active")
	// Для книги нет ни одной складской записи.
	ErrNoInventory = errors.New("no inventory for book")
	// Ни один склад не покрывает запрошенное количество.
	ErrInsufficientStock = errors.New("insufficient inventory")
	// Переход статуса запрещён порядком жизненного цикла.
	ErrIllegalTransition = errors.New("illegal order status transition")
	// Статус отсутствует в настроенной последовательности.
	ErrUnknownStatus = errors.New("unknown order status")
	// Некорректный аргумент (ошибка вызывающего кода).
	ErrInvalidArgument = errors.New("invalid argument")
	// Сбой хранилища, транзакция откатывается целиком.
	ErrPersistence = errors.New("persistence failure")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrCartNotFound возвращается, если корзина не найдена.
	ErrCartNotFound = errors.New("cart not found")
	// ErrBookNotFound возвращается, если книга не найдена в каталоге.
	ErrBookNotFound = errors.New("book not found")
	// ErrWarehouseNotFound возвращается, если склад не найден.
	ErrWarehouseNotFound = errors.New("warehouse not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// Номер заказа уже занят.
	ErrOrderNumberTaken = errors.New("order number already exists")
	// Ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrTransient помечает сбои хранилища, после которых запрос можно повторить
	// (deadlock, таймаут ожидания блокировки, конфликт сериализации).
	ErrTransient = errors.New("transient storage failure")
)

var kindSentinels = map[ErrorKind]error{
	KindEmptyCart:         ErrEmptyCart,
	KindCartInactive:      ErrCartInactive,
	KindNoInventory:       ErrNoInventory,
	KindInsufficientStock: ErrInsufficientStock,
	KindIllegalTransition: ErrIllegalTransition,
	KindUnknownStatus:     ErrUnknownStatus,
	KindInvalidArgument:   ErrInvalidArgument,
	KindPersistence:       ErrPersistence,
}

// Error несёт вид ошибки и её контекст (книга, статус, причина).
// errors.Is сравнивает её с сентинелом соответствующего вида.
type Error struct {
	Kind    ErrorKind
	BookID  int64
	Status  OrderStatus
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		if sentinel, ok := kindSentinels[e.Kind]; ok {
			msg = sentinel.Error()
		} else {
			msg = string(e.Kind)
		}
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is позволяет писать errors.Is(err, ErrInsufficientStock) для структурированной ошибки.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// NoInventory сообщает, что книга не заведена ни на одном складе.
func NoInventory(bookID int64) error {
	return &Error{
		Kind:    KindNoInventory,
		BookID:  bookID,
		Message: fmt.Sprintf("no inventory for book %d", bookID),
	}
}

// InsufficientStock сообщает, что ни одна складская запись не покрывает количество.
func InsufficientStock(bookID int64) error {
	return &Error{
		Kind:    KindInsufficientStock,
		BookID:  bookID,
		Message: fmt.Sprintf("insufficient inventory for book %d", bookID),
	}
}

// UnknownStatus сообщает о статусе вне настроенной последовательности.
func UnknownStatus(status OrderStatus) error {
	return &Error{
		Kind:    KindUnknownStatus,
		Status:  status,
		Message: fmt.Sprintf("unknown order status %q", status),
	}
}

// IllegalTransition сообщает о запрещённом переходе from -> to.
func IllegalTransition(from, to OrderStatus) error {
	return &Error{
		Kind:    KindIllegalTransition,
		Status:  to,
		Message: fmt.Sprintf("cannot transition order from %s to %s", from, to),
	}
}

// InvalidArgument оборачивает ошибку вызывающего кода.
func InvalidArgument(format string, args ...any) error {
	return &Error{
		Kind:    KindInvalidArgument,
		Message: fmt.Sprintf(format, args...),
	}
}

// Persistence помечает сбой хранилища при выполнении op.
// Уже классифицированные доменные ошибки возвращаются как есть.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var derr *Error
	if errors.As(err, &derr) {
		return err
	}
	if kind := KindOf(err); kind != "" && kind != KindPersistence {
		return err
	}
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}

// KindOf возвращает вид доменной ошибки или пустую строку для чужих ошибок.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	switch {
	case errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrCartNotFound),
		errors.Is(err, ErrBookNotFound),
		errors.Is(err, ErrWarehouseNotFound):
		return KindNotFound
	case errors.Is(err, ErrOrderVersionConflict), errors.Is(err, ErrOrderNumberTaken):
		return KindPersistence
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}

// IsTransient сообщает, что операцию можно безопасно повторить.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
