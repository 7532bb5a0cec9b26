package kafka

import (
	"encoding/json"
	"time"
)

// EventType определяет тип события checkout-контура.
type EventType string

const (
	// События заказа
	EventTypeOrderPlaced         EventType = "order.placed"
	EventTypeOrderCODPlaced      EventType = "order.cod_placed"
	EventTypeOrderCancelledStale EventType = "order.cancelled_stale"

	// События оплаты
	EventTypePaymentSessionOpened EventType = "payment.session_opened"
	EventTypePaymentVerified      EventType = "payment.verified"
	EventTypePaymentFailed        EventType = "payment.failed"

	// События инвойсов и reconciliation
	EventTypeInvoicePaid     EventType = "invoice.paid"
	EventTypeReconcileNeeded EventType = "reconcile.needed"
)

// Topics для Kafka.
const (
	TopicCheckoutEvents  = "affordpill.checkout.events"
	TopicPaymentEvents   = "affordpill.payment.events"
	TopicDeadLetterQueue = "affordpill.checkout.dlq"
)

// Kafka headers для retry-логики.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// EventEnvelope — формат сообщения в topics checkout-контура: метаданные
// outbox-записи плюс исходный payload события. Его пишет outbox-паблишер,
// читают аудит-консьюмер и DLQ-реплей.
type EventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// TopicFor возвращает topic для типа события: события оплаты уходят в
// отдельный topic, всё остальное — в общий checkout-поток.
func TopicFor(eventType EventType) string {
	switch eventType {
	case EventTypePaymentSessionOpened, EventTypePaymentVerified, EventTypePaymentFailed:
		return TopicPaymentEvents
	default:
		return TopicCheckoutEvents
	}
}
