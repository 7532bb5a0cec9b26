package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

func TestSessionRepository_Lifecycle_Integration(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	orders := NewOrderRepository(store)
	sessions := NewSessionRepository(store)

	order := newIntegrationOrder(uuid.NewString())
	if err := orders.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	session := domain.PaymentSession{
		GatewayOrderID: "gwordr_" + uuid.NewString()[:8],
		OrderID:        order.ID,
		AmountMinor:    order.TotalMinor,
		Currency:       order.Currency,
		Receipt:        order.Number,
		Status:         domain.SessionStatusCreated,
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := sessions.Create(session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	loaded, err := sessions.Get(session.GatewayOrderID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if loaded.OrderID != order.ID || loaded.AmountMinor != order.TotalMinor {
		t.Fatalf("session mismatch: %+v", loaded)
	}

	if err := sessions.MarkConsumed(session.GatewayOrderID); err != nil {
		t.Fatalf("mark consumed: %v", err)
	}
	// Повторный вызов — no-op.
	if err := sessions.MarkConsumed(session.GatewayOrderID); err != nil {
		t.Fatalf("repeat mark consumed: %v", err)
	}

	// Потреблённая сессия не закрывается как expired.
	if err := sessions.MarkExpired(session.GatewayOrderID); !errors.Is(err, domain.ErrSessionConsumed) {
		t.Fatalf("expected ErrSessionConsumed, got %v", err)
	}
}

func TestInvoiceRepository_PaidAndFulfilled_Integration(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	invoices := NewInvoiceRepository(store)

	now := time.Now().UTC().Truncate(time.Microsecond)
	invoiceID := uuid.NewString()
	_, err := store.DB().Exec(`
		INSERT INTO prescription_invoices (
			id, prescription_id, user_id, total_minor, currency, status,
			prescription_fulfilled, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,FALSE,0,$7,$7)
	`, invoiceID, uuid.NewString(), uuid.NewString(), int64(90000), "INR",
		string(domain.InvoiceStatusSent), now)
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	invoice, err := invoices.Get(invoiceID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}

	invoice.MarkPaid(time.Now().UTC())
	if err := invoices.Save(invoice); err != nil {
		t.Fatalf("save paid invoice: %v", err)
	}
	if err := invoices.MarkPrescriptionFulfilled(invoiceID); err != nil {
		t.Fatalf("mark fulfilled: %v", err)
	}

	reloaded, err := invoices.Get(invoiceID)
	if err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	if reloaded.Status != domain.InvoiceStatusPaid {
		t.Fatalf("expected paid status, got %s", reloaded.Status)
	}
	if !reloaded.PrescriptionFulfilled {
		t.Fatal("expected prescription to be fulfilled")
	}
}
