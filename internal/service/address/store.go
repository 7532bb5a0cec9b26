package address

import (
	"context"
	"sync"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

// Store — in-memory реализация AddressStore и AuthProvider для локальной
// разработки и тестов: адресами и сессиями в production владеет storefront.
type Store struct {
	mu     sync.RWMutex
	owners map[string]string
	tokens map[string]string
}

// NewStore создаёт пустое хранилище адресов и токенов.
func NewStore() *Store {
	return &Store{
		owners: make(map[string]string),
		tokens: make(map[string]string),
	}
}

// PutAddress регистрирует адрес за покупателем.
func (s *Store) PutAddress(addressID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[addressID] = userID
}

// PutToken связывает токен сессии с покупателем.
func (s *Store) PutToken(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
}

// Owns сообщает, принадлежит ли адрес покупателю.
func (s *Store) Owns(ctx context.Context, userID, addressID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owners[addressID] == userID, nil
}

// Resolve возвращает покупателя по токену или ErrUnauthorized.
func (s *Store) Resolve(ctx context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.tokens[token]
	if !ok {
		return "", domain.ErrUnauthorized
	}
	return userID, nil
}

var (
	_ domain.AddressStore = (*Store)(nil)
	_ domain.AuthProvider = (*Store)(nil)
)
