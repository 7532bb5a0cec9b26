package memory

import (
	"sync"
	"time"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

// sessionRepositoryInMemory хранит платёжные сессии по gateway order id.
type sessionRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.PaymentSession
}

// NewSessionRepository возвращает in-memory хранилище платёжных сессий.
func NewSessionRepository() domain.SessionRepository {
	return &sessionRepositoryInMemory{
		items: make(map[string]domain.PaymentSession),
	}
}

// Create сохраняет сессию; gateway order id уникален.
func (r *sessionRepositoryInMemory) Create(session domain.PaymentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[session.GatewayOrderID]; exists {
		return domain.ErrSessionConsumed
	}
	r.items[session.GatewayOrderID] = session
	return nil
}

// Get возвращает сессию или ErrSessionNotFound.
func (r *sessionRepositoryInMemory) Get(gatewayOrderID string) (domain.PaymentSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.items[gatewayOrderID]
	if !ok {
		return domain.PaymentSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

// MarkConsumed помечает сессию потреблённой; повторный вызов — no-op.
func (r *sessionRepositoryInMemory) MarkConsumed(gatewayOrderID string) error {
	return r.setStatus(gatewayOrderID, domain.SessionStatusConsumed)
}

// MarkExpired закрывает сессию без оплаты; потреблённая сессия не переоткрывается.
func (r *sessionRepositoryInMemory) MarkExpired(gatewayOrderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.items[gatewayOrderID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status == domain.SessionStatusConsumed {
		return domain.ErrSessionConsumed
	}
	session.Status = domain.SessionStatusExpired
	session.UpdatedAt = time.Now().UTC()
	r.items[gatewayOrderID] = session
	return nil
}

func (r *sessionRepositoryInMemory) setStatus(gatewayOrderID string, status domain.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.items[gatewayOrderID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status == status {
		return nil
	}
	session.Status = status
	session.UpdatedAt = time.Now().UTC()
	r.items[gatewayOrderID] = session
	return nil
}

var _ domain.SessionRepository = (*sessionRepositoryInMemory)(nil)
