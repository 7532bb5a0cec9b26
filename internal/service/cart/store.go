package cart

import (
	"context"
	"sync"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

// Store — in-memory реализация CartStore и ProductCatalog для локальной
// разработки и тестов. В production корзину и каталог обслуживает внешний
// storefront, сюда приходит только чтение и очистка.
type Store struct {
	mu       sync.RWMutex
	carts    map[string][]domain.CartLine
	products map[string]domain.PricedProduct

	// LinesErr и ClearErr позволяют тестам смоделировать отказ хранилища.
	LinesErr error
	ClearErr error
}

// NewStore создаёт пустое in-memory хранилище корзин и каталога.
func NewStore() *Store {
	return &Store{
		carts:    make(map[string][]domain.CartLine),
		products: make(map[string]domain.PricedProduct),
	}
}

// PutProduct регистрирует товар в каталоге.
func (s *Store) PutProduct(p domain.PricedProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ProductID] = p
}

// RemoveProduct удаляет товар; его строки перестанут резолвиться.
func (s *Store) RemoveProduct(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, productID)
}

// SetLines задаёт содержимое корзины покупателя.
func (s *Store) SetLines(userID string, lines []domain.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[userID] = append([]domain.CartLine(nil), lines...)
}

// Lines возвращает текущие строки корзины покупателя.
func (s *Store) Lines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	if s.LinesErr != nil {
		return nil, s.LinesErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CartLine(nil), s.carts[userID]...), nil
}

// Clear удаляет корзину покупателя; очистка пустой корзины — no-op.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if s.ClearErr != nil {
		return s.ClearErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}

// Resolve возвращает товар с актуальными ценами или ErrProductUnavailable.
func (s *Store) Resolve(ctx context.Context, productID string) (domain.PricedProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return domain.PricedProduct{}, domain.ErrProductUnavailable
	}
	return p, nil
}

var (
	_ domain.CartStore      = (*Store)(nil)
	_ domain.ProductCatalog = (*Store)(nil)
)
