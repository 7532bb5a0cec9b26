package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

func TestStorePutProduct_ResolvesByProductID(t *testing.T) {
	store := NewStore()
	store.PutProduct(domain.PricedProduct{
		ProductID:  "prod-1",
		Name:       "Paracetamol 500mg",
		PriceMinor: 9000,
		MRPMinor:   12000,
	})

	// Товар резолвится по тому же идентификатору, что лежит в строке корзины.
	got, err := store.Resolve(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Equal(t, "prod-1", got.ProductID)
	assert.Equal(t, "Paracetamol 500mg", got.Name)
	assert.Equal(t, int64(9000), got.PriceMinor)
	assert.Equal(t, int64(12000), got.MRPMinor)
}

func TestStoreResolve_UnknownProduct(t *testing.T) {
	store := NewStore()

	_, err := store.Resolve(context.Background(), "no-such-product")
	assert.ErrorIs(t, err, domain.ErrProductUnavailable)
}

func TestStoreRemoveProduct(t *testing.T) {
	store := NewStore()
	store.PutProduct(domain.PricedProduct{ProductID: "prod-1", Name: "Paracetamol 500mg", PriceMinor: 9000, MRPMinor: 12000})
	store.RemoveProduct("prod-1")

	_, err := store.Resolve(context.Background(), "prod-1")
	assert.ErrorIs(t, err, domain.ErrProductUnavailable)
}

func TestStoreLinesAndClear(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.SetLines("user-1", []domain.CartLine{
		{ProductID: "prod-1", Qty: 2, UserID: "user-1"},
	})

	lines, err := store.Lines(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "prod-1", lines[0].ProductID)

	require.NoError(t, store.Clear(ctx, "user-1"))
	lines, err = store.Lines(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	// Очистка пустой корзины — no-op.
	require.NoError(t, store.Clear(ctx, "user-1"))
}

func TestStoreInjectedErrors(t *testing.T) {
	store := NewStore()
	failure := errors.New("cart store down")
	store.LinesErr = failure
	store.ClearErr = failure

	_, err := store.Lines(context.Background(), "user-1")
	assert.ErrorIs(t, err, failure)
	assert.ErrorIs(t, store.Clear(context.Background(), "user-1"), failure)
}
