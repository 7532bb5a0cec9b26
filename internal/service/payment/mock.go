package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов и
// локальной разработки.
type MockGateway struct {
	mu      sync.Mutex
	OpenErr error
	// EchoAmount=false позволяет воспроизвести расхождение суммы в ответе.
	EchoAmount  bool
	FixedAmount int64

	OpenCalls int
	LastReq   domain.GatewaySessionRequest
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{EchoAmount: true}
}

// OpenSession возвращает заранее настроенный результат и считает вызовы.
func (m *MockGateway) OpenSession(_ context.Context, req domain.GatewaySessionRequest) (domain.GatewaySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.OpenCalls++
	m.LastReq = req
	if m.OpenErr != nil {
		return domain.GatewaySession{}, m.OpenErr
	}

	amount := m.FixedAmount
	if m.EchoAmount {
		amount = req.AmountMinor
	}
	return domain.GatewaySession{
		GatewayOrderID: fmt.Sprintf("gwordr_%06d", m.OpenCalls),
		AmountMinor:    amount,
		Currency:       req.Currency,
	}, nil
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
