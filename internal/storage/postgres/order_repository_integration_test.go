package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

func newIntegrationOrder(userID string) domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	orderID := uuid.NewString()
	return domain.Order{
		ID:            orderID,
		Number:        "ORD-" + orderID[:13],
		UserID:        userID,
		AddressID:     uuid.NewString(),
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: domain.PaymentMethodOnline,
		Currency:      "INR",
		SubtotalMinor: 60000,
		DiscountMinor: 10000,
		TotalMinor:    50000,
		Items: []domain.OrderItem{{
			ID:                 uuid.NewString(),
			ProductID:          "prod-azithro-500",
			ProductName:        "Azithromycin 500mg",
			Qty:                3,
			UnitPriceMinor:     20000,
			UnitSalePriceMinor: 16667,
			TotalPriceMinor:    60000,
			CreatedAt:          now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderRepository_CreateAndGet_Integration(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := newIntegrationOrder(uuid.NewString())
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	loaded, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if loaded.Number != order.Number {
		t.Fatalf("order number mismatch: got=%s want=%s", loaded.Number, order.Number)
	}
	if loaded.TotalMinor != order.TotalMinor {
		t.Fatalf("total mismatch: got=%d want=%d", loaded.TotalMinor, order.TotalMinor)
	}
	if len(loaded.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(loaded.Items))
	}
	if loaded.Items[0].UnitSalePriceMinor != order.Items[0].UnitSalePriceMinor {
		t.Fatalf("sale price mismatch: got=%d want=%d",
			loaded.Items[0].UnitSalePriceMinor, order.Items[0].UnitSalePriceMinor)
	}

	byNumber, err := repo.GetByNumber(order.Number)
	if err != nil {
		t.Fatalf("get by number: %v", err)
	}
	if byNumber.ID != order.ID {
		t.Fatalf("get by number returned wrong order: %s", byNumber.ID)
	}
}

func TestOrderRepository_SaveVersionConflict_Integration(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := newIntegrationOrder(uuid.NewString())
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	first, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	second := first

	if err := first.MarkPaid(time.Now().UTC()); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if err := repo.Save(first); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// Вторая копия всё ещё несёт старую версию.
	if err := second.MarkPaid(time.Now().UTC()); err != nil {
		t.Fatalf("mark paid second: %v", err)
	}
	if err := repo.Save(second); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestOrderRepository_ListStalePending_Integration(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	userID := uuid.NewString()

	stale := newIntegrationOrder(userID)
	stale.CreatedAt = time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Microsecond)
	stale.UpdatedAt = stale.CreatedAt
	if err := repo.Create(stale); err != nil {
		t.Fatalf("create stale order: %v", err)
	}

	fresh := newIntegrationOrder(userID)
	if err := repo.Create(fresh); err != nil {
		t.Fatalf("create fresh order: %v", err)
	}

	found, err := repo.ListStalePending(time.Now().UTC().Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("list stale pending: %v", err)
	}

	var staleSeen, freshSeen bool
	for _, o := range found {
		if o.ID == stale.ID {
			staleSeen = true
		}
		if o.ID == fresh.ID {
			freshSeen = true
		}
	}
	if !staleSeen {
		t.Fatal("expected stale order in sweep result")
	}
	if freshSeen {
		t.Fatal("fresh order must not appear in sweep result")
	}
}
