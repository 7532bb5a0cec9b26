package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// CartLine — строка корзины из внешнего cart store. Ядро читает их и удаляет
// при финализации заказа, но никогда не изменяет.
type CartLine struct {
	ProductID string
	Qty       int32
	UserID    string
}

// SnapshotLine — строка корзины, зафиксированная с ценой на момент checkout.
// Последующие изменения цен каталога не влияют на уже открытый заказ.
type SnapshotLine struct {
	ProductID   string
	ProductName string
	Qty         int32
	// UnitPriceMinor — продажная цена за единицу в минимальных единицах.
	UnitPriceMinor int64
	// UnitMRPMinor — рекомендованная цена; разница с продажной даёт скидку.
	UnitMRPMinor int64
}

// PricedProduct — разрешённый товар каталога с ценами на текущий момент.
type PricedProduct struct {
	ProductID  string
	Name       string
	PriceMinor int64
	MRPMinor   int64
}

// CartFingerprint детерминированно хеширует состав корзины. Используется как
// часть серверного ключа идемпотентности: повторная отправка той же корзины
// схлопывается в уже существующий pending-заказ.
func CartFingerprint(userID string, lines []CartLine) string {
	sorted := make([]CartLine, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	h := sha256.New()
	h.Write([]byte(userID))
	for _, line := range sorted {
		fmt.Fprintf(h, "|%s:%d", line.ProductID, line.Qty)
	}
	return hex.EncodeToString(h.Sum(nil))
}
