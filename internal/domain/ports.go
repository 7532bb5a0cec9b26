package domain

import (
	"context"
	"time"
)

// CartStore описывает внешний cart store: чтение строк корзины и их удаление
// при финализации. Мутацией корзины занимается внешний CRUD, не это ядро.
type CartStore interface {
	// Lines возвращает текущие строки корзины покупателя.
	Lines(ctx context.Context, userID string) ([]CartLine, error)
	// Clear удаляет все строки корзины покупателя; очистка пустой корзины — no-op.
	Clear(ctx context.Context, userID string) error
}

// ProductCatalog разрешает товар в запись с актуальными ценами.
type ProductCatalog interface {
	// Resolve возвращает товар с ценами или ошибку, если товар недоступен;
	// нерезолвящиеся товары отфильтровываются из снапшота.
	Resolve(ctx context.Context, productID string) (PricedProduct, error)
}

// AddressStore описывает внешний address store; ядро только проверяет
// принадлежность адреса и никогда его не изменяет.
type AddressStore interface {
	// Owns сообщает, принадлежит ли адрес покупателю.
	Owns(ctx context.Context, userID, addressID string) (bool, error)
}

// AuthProvider разрешает токен сессии в идентификатор покупателя.
type AuthProvider interface {
	Resolve(ctx context.Context, token string) (userID string, err error)
}

// PaymentGateway описывает взаимодействие с внешним платёжным шлюзом.
type PaymentGateway interface {
	// OpenSession открывает платёжную сессию на точную сумму заказа
	// в минимальных единицах; ошибка означает, что попытку можно повторить.
	OpenSession(ctx context.Context, req GatewaySessionRequest) (GatewaySession, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// SessionRepository хранит открытые платёжные сессии для последующей верификации.
type SessionRepository interface {
	// Create сохраняет сессию; gateway order id уникален.
	Create(session PaymentSession) error
	// Get возвращает сессию по идентификатору шлюза.
	Get(gatewayOrderID string) (PaymentSession, error)
	// MarkConsumed помечает сессию потреблённой; повторный вызов — no-op.
	MarkConsumed(gatewayOrderID string) error
	// MarkExpired закрывает сессию без оплаты.
	MarkExpired(gatewayOrderID string) error
}

// InvoiceRepository хранит инвойсы по рецептам.
type InvoiceRepository interface {
	Get(id string) (PrescriptionInvoice, error)
	// Save применяет обновления с учётом optimistic locking.
	Save(invoice PrescriptionInvoice) error
	// MarkPrescriptionFulfilled помечает связанный рецепт исполненным.
	MarkPrescriptionFulfilled(invoiceID string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxStatus описывает состояние доставки записи outbox.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Status        OutboxStatus
	Attempts      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
