package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

func testSession(gatewayOrderID string) domain.PaymentSession {
	return domain.PaymentSession{
		GatewayOrderID: gatewayOrderID,
		OrderID:        "order-1",
		AmountMinor:    42900,
		Currency:       "INR",
	}
}

func TestBridgeReady_LoadsOnce(t *testing.T) {
	var calls int
	bridge := NewBridge(func(ctx context.Context) error {
		calls++
		return nil
	})

	ctx := context.Background()
	require.NoError(t, bridge.Ready(ctx))
	require.NoError(t, bridge.Ready(ctx))
	assert.Equal(t, 1, calls, "script must load exactly once")
}

func TestBridgeReady_LoadFailureIsPermanent(t *testing.T) {
	var calls int
	bridge := NewBridge(func(ctx context.Context) error {
		calls++
		return errors.New("cdn unreachable")
	})

	ctx := context.Background()
	assert.ErrorIs(t, bridge.Ready(ctx), ErrBridgeNotReady)
	// Повторный вызов не перезагружает скрипт и остаётся не готовым.
	assert.ErrorIs(t, bridge.Ready(ctx), ErrBridgeNotReady)
	assert.Equal(t, 1, calls)

	_, err := bridge.Open(ctx, testSession("gwordr_1"))
	assert.ErrorIs(t, err, ErrBridgeNotReady)
}

func TestBridgeOpen_SecondAttemptRejected(t *testing.T) {
	bridge := NewBridge(nil)
	ctx := context.Background()

	attempt, err := bridge.Open(ctx, testSession("gwordr_1"))
	require.NoError(t, err)

	_, err = bridge.Open(ctx, testSession("gwordr_1"))
	assert.ErrorIs(t, err, ErrAttemptResolved)

	// После разрешения исхода сессию можно открыть заново.
	require.True(t, attempt.Dismiss())
	_, err = bridge.Open(ctx, testSession("gwordr_1"))
	assert.NoError(t, err)
}

func TestAttempt_OutcomeFiresOnce(t *testing.T) {
	bridge := NewBridge(nil)
	attempt, err := bridge.Open(context.Background(), testSession("gwordr_1"))
	require.NoError(t, err)

	require.True(t, attempt.Succeed("pay_001", "sig"))
	assert.False(t, attempt.Fail("late failure"), "second outcome must be dropped")
	assert.False(t, attempt.Dismiss())

	outcome, ok := <-attempt.Result()
	require.True(t, ok)
	assert.Equal(t, OutcomeSucceeded, outcome.Kind)
	assert.Equal(t, "pay_001", outcome.PaymentID)
	assert.Equal(t, "gwordr_1", outcome.GatewayOrderID)

	// Канал закрыт: второго исхода не будет.
	_, ok = <-attempt.Result()
	assert.False(t, ok)
}

func TestAttempt_GatewayFailureCarriesReason(t *testing.T) {
	bridge := NewBridge(nil)
	attempt, err := bridge.Open(context.Background(), testSession("gwordr_1"))
	require.NoError(t, err)

	require.True(t, attempt.Fail("card declined"))

	outcome := <-attempt.Result()
	assert.Equal(t, OutcomeGatewayFailed, outcome.Kind)
	assert.Equal(t, "card declined", outcome.Reason)
}

func TestAttempt_ContextCancelDismisses(t *testing.T) {
	bridge := NewBridge(nil)
	ctx, cancel := context.WithCancel(context.Background())

	attempt, err := bridge.Open(ctx, testSession("gwordr_1"))
	require.NoError(t, err)

	cancel()

	select {
	case outcome := <-attempt.Result():
		assert.Equal(t, OutcomeDismissed, outcome.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected dismiss outcome after context cancel")
	}
}
