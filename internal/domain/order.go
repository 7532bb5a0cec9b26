package domain

import "time"

// OrderStatus описывает жизненный цикл заказа аптечного магазина.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата и исполнение ещё впереди.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — заказ принят в обработку аптекой.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён; из этого статуса возврата нет.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	// PaymentStatusPending — деньги ещё не получены (в том числе COD).
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid — оплата криптографически подтверждена верификатором.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed — оплата окончательно не состоялась.
	PaymentStatusFailed PaymentStatus = "failed"
)

// PaymentMethod определяет способ оплаты заказа.
type PaymentMethod string

const (
	// PaymentMethodCOD — оплата наличными при получении, без шлюза.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodOnline — оплата через платёжный шлюз.
	PaymentMethodOnline PaymentMethod = "online"
)

// orderStatusRank задаёт порядок статусов: движение только вперёд.
var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusShipped:    2,
	OrderStatusDelivered:  3,
}

// OrderItem представляет одну позицию заказа. Позиции неизменяемы после записи.
type OrderItem struct {
	ID string
	// ProductID — внешний идентификатор товара из каталога.
	ProductID string
	// ProductName денормализуется на момент заказа: последующие изменения
	// каталога не должны менять уже оформленный заказ.
	ProductName string
	Qty         int32
	// UnitPriceMinor — цена за единицу по MRP в минимальных денежных единицах
	// (пайсы); сумма позиций по этой цене сходится с subtotal шапки.
	UnitPriceMinor int64
	// UnitSalePriceMinor — фактически списанная продажная цена за единицу;
	// построчная скидка восстанавливается как UnitPriceMinor - UnitSalePriceMinor.
	UnitSalePriceMinor int64
	// TotalPriceMinor = UnitPriceMinor * Qty.
	TotalPriceMinor int64
	CreatedAt       time.Time
}

// Order агрегирует шапку заказа, его позиции и состояние оплаты.
type Order struct {
	ID string
	// Number — человекочитаемый номер заказа; уникален и служит receipt
	// при открытии платёжной сессии.
	Number        string
	UserID        string
	AddressID     string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	Currency      string

	SubtotalMinor    int64
	DeliveryFeeMinor int64
	DiscountMinor    int64
	TotalMinor       int64

	Items     []OrderItem
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.AddressID == "" {
		errs = append(errs, ErrAddressRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.PaymentMethod != PaymentMethodCOD && o.PaymentMethod != PaymentMethodOnline {
		errs = append(errs, ErrPaymentMethodInvalid)
	}
	if o.SubtotalMinor < 0 || o.DiscountMinor < 0 || o.DeliveryFeeMinor < 0 || o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму позиций с subtotal: qty * unit price.
	var itemsSum int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 || item.UnitSalePriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		// Продажная цена не бывает выше MRP: скидка по позиции неотрицательна.
		if item.UnitSalePriceMinor > item.UnitPriceMinor {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.TotalPriceMinor != int64(item.Qty)*item.UnitPriceMinor {
			errs = append(errs, ErrItemTotalMismatch)
		}
		itemsSum += int64(item.Qty) * item.UnitPriceMinor
	}
	if itemsSum != o.SubtotalMinor {
		errs = append(errs, ErrSubtotalMismatch)
	}

	// total = subtotal - discount + delivery fee; ровно эта сумма уходит в шлюз.
	if o.TotalMinor != o.SubtotalMinor-o.DiscountMinor+o.DeliveryFeeMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// CanTransitionTo сообщает, допустим ли переход в указанный статус.
// Статусы двигаются только вперёд; из cancelled заказ не воскресает.
func (o *Order) CanTransitionTo(next OrderStatus) bool {
	if o.Status == next {
		return true
	}
	if o.Status == OrderStatusCancelled {
		return false
	}
	if next == OrderStatusCancelled {
		// Отменить можно только заказ, который ещё не уехал к покупателю.
		return o.Status == OrderStatusPending || o.Status == OrderStatusProcessing
	}
	cur, ok := orderStatusRank[o.Status]
	if !ok {
		return false
	}
	nxt, ok := orderStatusRank[next]
	if !ok {
		return false
	}
	return nxt > cur
}

// TransitionStatus переводит заказ в новый статус с проверкой допустимости.
func (o *Order) TransitionStatus(next OrderStatus, now time.Time) error {
	if !o.CanTransitionTo(next) {
		return ErrStatusTransition
	}
	if o.Status == next {
		return nil
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// MarkPaid фиксирует успешную оплату. Единственный легальный вызывающий —
// верификатор платежей; повторный вызов для уже оплаченного заказа — no-op.
func (o *Order) MarkPaid(now time.Time) error {
	switch o.PaymentStatus {
	case PaymentStatusPaid:
		return nil
	case PaymentStatusPending:
		if o.Status == OrderStatusCancelled {
			return ErrStatusTransition
		}
		o.PaymentStatus = PaymentStatusPaid
		o.UpdatedAt = now
		return nil
	default:
		return ErrPaymentStatusTransition
	}
}

// MarkPaymentFailed фиксирует окончательную неуспешность оплаты.
// Оплаченный заказ в failed не переводится.
func (o *Order) MarkPaymentFailed(now time.Time) error {
	switch o.PaymentStatus {
	case PaymentStatusFailed:
		return nil
	case PaymentStatusPending:
		o.PaymentStatus = PaymentStatusFailed
		o.UpdatedAt = now
		return nil
	default:
		return ErrPaymentStatusTransition
	}
}

// IsPaymentTerminal сообщает, достиг ли заказ успешного терминального состояния
// оплаты: онлайн-заказ оплачен либо COD-заказ принят.
func (o *Order) IsPaymentTerminal() bool {
	if o.PaymentMethod == PaymentMethodCOD {
		return o.Status != OrderStatusCancelled
	}
	return o.PaymentStatus == PaymentStatusPaid
}
