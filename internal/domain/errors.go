package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующей ссылки на блюдо.
	ErrDishRequired = errors.New("dish_id is required")
	// Ошибка при некорректном количестве (< 1).
	ErrQuantityInvalid = errors.New("quantity must be at least 1")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка неизвестного статуса заказа.
	ErrStatusInvalid = errors.New("order status is not supported")

	// Ошибка отсутствующего названия блюда.
	ErrDishNameRequired = errors.New("dish name is required")
	// Ошибка отсутствующей категории у блюда.
	ErrCategoryRequired = errors.New("category_id is required")
	// Ошибка отрицательной цены.
	ErrPriceNegative = errors.New("price_minor must be non-negative")
	// Ошибка отрицательного остатка.
	ErrStockNegative = errors.New("stock must be non-negative")
	// Ошибка рассинхронизации витрины: нулевой остаток при поднятом флаге доступности.
	ErrAvailabilityStale = errors.New("dish with empty stock must not be available")
	// Ошибка отсутствующего названия категории.
	ErrCategoryNameRequired = errors.New("category name is required")

	// ErrDishNotFound возвращается, если блюдо не найдено в каталоге.
	ErrDishNotFound = errors.New("dish not found")
	// ErrDishUnavailable — блюдо снято с витрины (вручную либо из-за остатка).
	ErrDishUnavailable = errors.New("dish is not available")
	// ErrOutOfStock — остатка не хватает для запрошенного количества.
	ErrOutOfStock = errors.New("dish is out of stock")
	// ErrDishVersionConflict сигнализирует о конфликте версий при сохранении блюда.
	ErrDishVersionConflict = errors.New("dish version conflict")
	// ErrCategoryNotFound возвращается, если категория меню не найдена.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderForbidden — заказ принадлежит другому клиенту.
	ErrOrderForbidden = errors.New("order belongs to another customer")
	// ErrOrderNotCancellable — статус заказа не допускает отмену.
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")
	// ErrOrderNotReorderable — повтор возможен только для завершённых заказов.
	ErrOrderNotReorderable = errors.New("order cannot be reordered")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении заказа.
	ErrOrderVersionConflict = errors.New("order version conflict")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован (повторный запрос).
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — тот же ключ пришёл с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrDishVersionConflict)
}
