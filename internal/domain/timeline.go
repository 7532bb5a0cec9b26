package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле заказа или инвойса.
type TimelineEvent struct {
	ID       string
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// Типы событий timeline, пишущихся этим сервисом.
const (
	TimelineOrderPlaced       = "OrderPlaced"
	TimelineSessionOpened     = "PaymentSessionOpened"
	TimelinePaymentVerified   = "PaymentVerified"
	TimelinePaymentFailed     = "PaymentFailed"
	TimelineOrderFinalized    = "OrderFinalized"
	TimelineOrderCancelled    = "OrderCancelled"
	TimelineReconcileNeeded   = "ReconcileNeeded"
	TimelineStatusChanged     = "OrderStatusChanged"
	TimelineSignatureRejected = "SignatureRejected"
)
