package domain_test

import (
	"testing"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

var testRule = domain.PricingRule{
	DeliveryFeeMinor:           4900,
	FreeDeliveryThresholdMinor: 50000,
}

func TestPriceSnapshot_DiscountAndFee(t *testing.T) {
	lines := []domain.SnapshotLine{
		{ProductID: "prod-1", Qty: 2, UnitPriceMinor: 9000, UnitMRPMinor: 12000},
		{ProductID: "prod-2", Qty: 1, UnitPriceMinor: 20000, UnitMRPMinor: 20000},
	}

	q := domain.PriceSnapshot(lines, testRule)

	if q.SubtotalMinor != 38000 {
		t.Fatalf("expected subtotal 38000, got %d", q.SubtotalMinor)
	}
	if q.OriginalTotalMinor != 44000 {
		t.Fatalf("expected original total 44000, got %d", q.OriginalTotalMinor)
	}
	if q.DiscountMinor != 6000 {
		t.Fatalf("expected discount 6000, got %d", q.DiscountMinor)
	}
	// Subtotal ниже порога — доставка платная.
	if q.DeliveryFeeMinor != 4900 {
		t.Fatalf("expected delivery fee 4900, got %d", q.DeliveryFeeMinor)
	}
	if q.TotalMinor != 42900 {
		t.Fatalf("expected total 42900, got %d", q.TotalMinor)
	}
}

func TestPriceSnapshot_FreeDeliveryAtThreshold(t *testing.T) {
	// Ровно на пороге доставка уже бесплатна.
	lines := []domain.SnapshotLine{
		{ProductID: "prod-1", Qty: 1, UnitPriceMinor: 50000, UnitMRPMinor: 50000},
	}

	q := domain.PriceSnapshot(lines, testRule)
	if q.DeliveryFeeMinor != 0 {
		t.Fatalf("expected free delivery at threshold, got fee %d", q.DeliveryFeeMinor)
	}

	// На единицу ниже порога — платная.
	lines[0].UnitPriceMinor = 49999
	lines[0].UnitMRPMinor = 49999
	q = domain.PriceSnapshot(lines, testRule)
	if q.DeliveryFeeMinor != 4900 {
		t.Fatalf("expected delivery fee below threshold, got %d", q.DeliveryFeeMinor)
	}
}

func TestPriceSnapshot_MRPBelowPrice(t *testing.T) {
	// Каталог отдал MRP ниже продажной цены: скидка не уходит в минус.
	lines := []domain.SnapshotLine{
		{ProductID: "prod-1", Qty: 3, UnitPriceMinor: 10000, UnitMRPMinor: 8000},
	}

	q := domain.PriceSnapshot(lines, testRule)
	if q.DiscountMinor != 0 {
		t.Fatalf("expected zero discount, got %d", q.DiscountMinor)
	}
	if q.OriginalTotalMinor != 30000 {
		t.Fatalf("expected original total clamped to 30000, got %d", q.OriginalTotalMinor)
	}
}

func TestPriceSnapshot_Deterministic(t *testing.T) {
	lines := []domain.SnapshotLine{
		{ProductID: "prod-1", Qty: 2, UnitPriceMinor: 9000, UnitMRPMinor: 12000},
		{ProductID: "prod-2", Qty: 1, UnitPriceMinor: 20000, UnitMRPMinor: 20000},
	}

	first := domain.PriceSnapshot(lines, testRule)
	for i := 0; i < 10; i++ {
		if got := domain.PriceSnapshot(lines, testRule); got != first {
			t.Fatalf("pricing is not deterministic: %+v != %+v", got, first)
		}
	}
}

func TestQuoteToOrderAmounts(t *testing.T) {
	lines := []domain.SnapshotLine{
		{ProductID: "prod-1", Qty: 2, UnitPriceMinor: 9000, UnitMRPMinor: 12000},
	}

	q := domain.PriceSnapshot(lines, testRule)
	subtotal, discount, fee, total := q.ToOrderAmounts()

	if subtotal != q.OriginalTotalMinor {
		t.Fatalf("expected subtotal %d, got %d", q.OriginalTotalMinor, subtotal)
	}
	// Инвариант шапки заказа: total = subtotal - discount + fee.
	if total != subtotal-discount+fee {
		t.Fatalf("order amount invariant broken: %d != %d - %d + %d", total, subtotal, discount, fee)
	}
}
