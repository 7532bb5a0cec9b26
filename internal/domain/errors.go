package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора покупателя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего адреса доставки.
	ErrAddressRequired = errors.New("address_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// ErrEmptyOrder возвращается, если после фильтрации нерезолвящихся товаров
	// в снапшоте корзины не осталось ни одной позиции.
	ErrEmptyOrder = errors.New("cart snapshot resolved to an empty order")
	// Ошибка неподдерживаемого способа оплаты.
	ErrPaymentMethodInvalid = errors.New("payment method must be cod or online")
	// Ошибка отрицательной денежной суммы в заказе.
	ErrAmountNegative = errors.New("order amounts must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка, если total_price позиции не равен qty * unit_price.
	ErrItemTotalMismatch = errors.New("item total does not match qty * unit price")
	// Ошибка несоответствия subtotal и суммы позиций.
	ErrSubtotalMismatch = errors.New("order subtotal does not match items sum")
	// ErrAmountMismatch — total не равен subtotal - discount + delivery fee,
	// либо пересчитанная сумма не совпала с сохранённой перед открытием сессии.
	ErrAmountMismatch = errors.New("order amount mismatch")

	// ErrProductUnavailable — товар снят с продажи или не найден в каталоге;
	// такие строки корзины отфильтровываются из снапшота.
	ErrProductUnavailable = errors.New("product is unavailable")

	// ErrUnauthorized — вызывающий не совпадает с владельцем ресурса.
	ErrUnauthorized = errors.New("caller is not the resource owner")
	// ErrAddressNotOwned — адрес доставки не принадлежит покупателю.
	ErrAddressNotOwned = errors.New("address does not belong to user")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrStatusTransition — запрошен недопустимый переход статуса заказа.
	ErrStatusTransition = errors.New("illegal order status transition")
	// ErrPaymentStatusTransition — запрошен недопустимый переход статуса оплаты.
	ErrPaymentStatusTransition = errors.New("illegal payment status transition")
	// ErrOrderNotPayable — для заказа нельзя открыть платёжную сессию
	// (COD, уже оплачен или отменён).
	ErrOrderNotPayable = errors.New("order is not payable")

	// ErrSessionNotFound — платёжная сессия не найдена.
	ErrSessionNotFound = errors.New("payment session not found")
	// ErrSessionConsumed — сессия уже потреблена виджетом.
	ErrSessionConsumed = errors.New("payment session already consumed")
	// ErrSignatureMismatch — подпись шлюза не прошла проверку; пользователю
	// следует обратиться в поддержку, а не повторять оплату.
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	// ErrGatewayUnavailable — временная ошибка шлюза, попытку можно повторить.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected — шлюз отклонил запрос на открытие сессии.
	ErrGatewayRejected = errors.New("payment gateway rejected request")

	// ErrInvoiceNotFound — инвойс по рецепту не найден.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrInvoiceNotPayable — инвойс уже оплачен или не отправлен покупателю.
	ErrInvoiceNotPayable = errors.New("invoice is not payable")

	// ErrIdempotencyKeyRequired — пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — записи по ключу нет.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch — тот же ключ пришёл с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency request hash mismatch")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsRetryable сообщает, имеет ли смысл повторять операцию с тем же заказом:
// временные ошибки шлюза и конфликты версий не являются окончательными.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) || errors.Is(err, ErrOrderVersionConflict)
}
