package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
	"github.com/Nirman0799/affordpill-checkout/internal/storage/memory"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
	errs   []error
}

func (p *capturePublisher) Publish(event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return err
		}
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) published() []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OutboxMessage(nil), p.events...)
}

func enqueue(t *testing.T, repo domain.OutboxRepository, eventType string) domain.OutboxMessage {
	t.Helper()

	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     eventType,
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	require.NoError(t, err)
	return msg
}

func TestProcessOnce_PublishesPendingEvents(t *testing.T) {
	repo := memory.NewOutboxRepository()
	publisher := &capturePublisher{}

	enqueue(t, repo, "order.placed")
	enqueue(t, repo, "payment.verified")

	worker := NewWorker(repo, publisher)
	worker.ProcessOnce(context.Background())

	assert.Len(t, publisher.published(), 2)

	pending, err := repo.PullPending(10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Len(t, repo.AllSent(), 2)
}

func TestProcessOnce_RetriesTransientFailure(t *testing.T) {
	repo := memory.NewOutboxRepository()
	publisher := &capturePublisher{errs: []error{errors.New("broker unavailable")}}

	enqueue(t, repo, "order.placed")

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0))
	worker.ProcessOnce(context.Background())

	assert.Len(t, publisher.published(), 1, "second attempt must succeed")
	assert.Len(t, repo.AllSent(), 1)
}

func TestProcessOnce_SendsToDLQAfterExhaustedRetries(t *testing.T) {
	repo := memory.NewOutboxRepository()
	broken := &capturePublisher{errs: []error{
		errors.New("broker down"),
		errors.New("broker down"),
	}}
	dlq := &capturePublisher{}

	msg := enqueue(t, repo, "order.placed")

	worker := NewWorker(repo, broken,
		WithMaxAttempts(2),
		WithRetryBaseDelay(0),
		WithDLQPublisher(dlq),
	)
	worker.ProcessOnce(context.Background())

	dlqEvents := dlq.published()
	require.Len(t, dlqEvents, 1)
	assert.Equal(t, msg.ID, dlqEvents[0].ID)
	assert.Equal(t, "order.placed", dlqEvents[0].EventType)

	// Запись помечена failed и не возвращается в выдачу pending.
	pending, err := repo.PullPending(10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	repo := memory.NewOutboxRepository()
	worker := NewWorker(repo, &capturePublisher{}, WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestRetryBackoff_Grows(t *testing.T) {
	worker := NewWorker(memory.NewOutboxRepository(), &capturePublisher{}, WithRetryBaseDelay(10*time.Millisecond))

	assert.Equal(t, 10*time.Millisecond, worker.retryBackoff(1))
	assert.Equal(t, 20*time.Millisecond, worker.retryBackoff(2))
	assert.Equal(t, 40*time.Millisecond, worker.retryBackoff(3))
}
