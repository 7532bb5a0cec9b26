package domain

// PricingRule задаёт правило платной доставки. Порог и размер сбора —
// конфигурация, а не константы кода.
type PricingRule struct {
	// DeliveryFeeMinor взимается, если subtotal ниже порога.
	DeliveryFeeMinor int64
	// FreeDeliveryThresholdMinor — с этой суммы доставка бесплатна.
	FreeDeliveryThresholdMinor int64
}

// Quote — результат расчёта цены по снапшоту корзины.
type Quote struct {
	SubtotalMinor int64
	// OriginalTotalMinor — сумма по MRP до скидки.
	OriginalTotalMinor int64
	DiscountMinor      int64
	DeliveryFeeMinor   int64
	TotalMinor         int64
}

// PriceSnapshot — чистая функция от снапшота и правила доставки. Детерминизм
// здесь обязателен: сумма, пересчитанная при верификации, должна совпасть с
// суммой, записанной при создании заказа.
func PriceSnapshot(lines []SnapshotLine, rule PricingRule) Quote {
	var q Quote
	for _, line := range lines {
		qty := int64(line.Qty)
		q.SubtotalMinor += line.UnitPriceMinor * qty
		mrp := line.UnitMRPMinor
		if mrp < line.UnitPriceMinor {
			// Каталог иногда отдаёт MRP ниже продажной цены; скидка не бывает отрицательной.
			mrp = line.UnitPriceMinor
		}
		q.OriginalTotalMinor += mrp * qty
	}

	q.DiscountMinor = q.OriginalTotalMinor - q.SubtotalMinor
	if q.DiscountMinor < 0 {
		q.DiscountMinor = 0
	}

	if q.SubtotalMinor < rule.FreeDeliveryThresholdMinor {
		q.DeliveryFeeMinor = rule.DeliveryFeeMinor
	}

	// Скидка уже учтена в subtotal (продажная цена ниже MRP), поэтому к оплате
	// идёт subtotal + fee; эквивалентно originalTotal - discount + fee.
	q.TotalMinor = q.SubtotalMinor + q.DeliveryFeeMinor
	return q
}

// ToOrderAmounts переводит квоту в суммы шапки заказа. Заказ хранит
// subtotal по MRP, явную скидку и итог к оплате, так что инвариант
// total = subtotal - discount + delivery_fee выполняется дословно.
func (q Quote) ToOrderAmounts() (subtotal, discount, deliveryFee, total int64) {
	return q.OriginalTotalMinor, q.DiscountMinor, q.DeliveryFeeMinor, q.TotalMinor
}
