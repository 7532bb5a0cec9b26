package domain

import "time"

// InvoiceStatus описывает состояние инвойса, выставленного фармацевтом.
type InvoiceStatus string

const (
	// InvoiceStatusSent — инвойс отправлен покупателю и ждёт оплаты.
	InvoiceStatusSent InvoiceStatus = "sent"
	// InvoiceStatusPaid — оплата инвойса подтверждена верификатором.
	InvoiceStatusPaid InvoiceStatus = "paid"
)

// PrescriptionInvoice — инвойс по загруженному рецепту. Создаётся внешним
// workflow'ом проверки рецептов; здесь он только оплачивается.
// Пара записей "инвойс оплачен" / "рецепт исполнен" пишется последовательно:
// если второй апдейт упал, PrescriptionFulfilled остаётся false при
// status=paid — ровно та рассогласованность, которую ловит reconciliation.
type PrescriptionInvoice struct {
	ID             string
	PrescriptionID string
	UserID         string
	TotalMinor     int64
	Currency       string
	Status         InvoiceStatus
	// PrescriptionFulfilled отражает статус связанного рецепта.
	PrescriptionFulfilled bool
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// MarkPaid фиксирует оплату инвойса; повторный вызов — no-op.
func (inv *PrescriptionInvoice) MarkPaid(now time.Time) {
	if inv.Status == InvoiceStatusPaid {
		return
	}
	inv.Status = InvoiceStatusPaid
	inv.UpdatedAt = now
}
