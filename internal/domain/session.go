package domain

import "time"

// SessionStatus описывает жизненный цикл платёжной сессии на стороне сервиса.
type SessionStatus string

const (
	// SessionStatusCreated — сессия открыта у шлюза, виджет её ещё не потребил.
	SessionStatusCreated SessionStatus = "created"
	// SessionStatusConsumed — по сессии пришёл success-callback и он верифицирован.
	SessionStatusConsumed SessionStatus = "consumed"
	// SessionStatusExpired — сессия закрыта без оплаты (dismiss/failure/TTL).
	SessionStatusExpired SessionStatus = "expired"
)

// PaymentSession — серверная запись об открытой у шлюза сессии.
// Receipt всегда равен номеру заказа либо идентификатору инвойса: по нему
// запись шлюза коррелируется обратно без отдельной таблицы соответствий.
type PaymentSession struct {
	// GatewayOrderID — идентификатор сессии, выданный шлюзом.
	GatewayOrderID string
	OrderID        string
	InvoiceID      string
	AmountMinor    int64
	Currency       string
	Receipt        string
	Status         SessionStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// VerificationResult — payload success-callback'а виджета, отправляемый на
// верификацию. Валиден ровно один раз; повторная верификация уже оплаченного
// заказа — идемпотентный успех.
type VerificationResult struct {
	PaymentID      string
	GatewayOrderID string
	Signature      string
	OrderID        string
	InvoiceID      string
}

// GatewaySessionRequest — параметры открытия сессии у шлюза.
type GatewaySessionRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	// Notes — произвольный payload для последующей корреляции
	// (order_id/invoice_id).
	Notes map[string]string
}

// GatewaySession — ответ шлюза на открытие сессии.
type GatewaySession struct {
	GatewayOrderID string
	AmountMinor    int64
	Currency       string
}
