package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
	"github.com/Nirman0799/affordpill-checkout/internal/service/address"
	"github.com/Nirman0799/affordpill-checkout/internal/service/cart"
	"github.com/Nirman0799/affordpill-checkout/internal/service/payment"
	"github.com/Nirman0799/affordpill-checkout/internal/storage/memory"
)

const testUserID = "user-1"

type fixture struct {
	svc       *Service
	orders    domain.OrderRepository
	sessions  domain.SessionRepository
	idem      domain.IdempotencyRepository
	timeline  domain.TimelineRepository
	outbox    domain.OutboxRepository
	cartStore *cart.Store
	gateway   *payment.MockGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	orders := memory.NewOrderRepository()
	sessions := memory.NewSessionRepository()
	idem := memory.NewIdempotencyRepository()
	timeline := memory.NewTimelineRepository()
	outbox := memory.NewOutboxRepository()

	cartStore := cart.NewStore()
	cartStore.PutProduct(domain.PricedProduct{ProductID: "prod-1", Name: "Paracetamol 500mg", PriceMinor: 9000, MRPMinor: 12000})
	cartStore.PutProduct(domain.PricedProduct{ProductID: "prod-2", Name: "Vitamin D3", PriceMinor: 20000, MRPMinor: 20000})
	cartStore.SetLines(testUserID, []domain.CartLine{
		{ProductID: "prod-1", Qty: 2, UserID: testUserID},
		{ProductID: "prod-2", Qty: 1, UserID: testUserID},
	})

	addresses := address.NewStore()
	addresses.PutAddress("addr-1", testUserID)

	gateway := payment.NewMockGateway()

	svc := NewService(Deps{
		Orders:    orders,
		Sessions:  sessions,
		Invoices:  memory.NewInvoiceRepository(),
		Idem:      idem,
		Timeline:  timeline,
		Outbox:    outbox,
		Cart:      cartStore,
		Catalog:   cartStore,
		Addresses: addresses,
		Gateway:   gateway,
	}, Config{
		Currency: "INR",
		Pricing:  domain.PricingRule{DeliveryFeeMinor: 4900, FreeDeliveryThresholdMinor: 50000},
	})

	return &fixture{
		svc:       svc,
		orders:    orders,
		sessions:  sessions,
		idem:      idem,
		timeline:  timeline,
		outbox:    outbox,
		cartStore: cartStore,
		gateway:   gateway,
	}
}

func farFuture() time.Time {
	return time.Now().UTC().Add(time.Hour)
}

func placeInput(method domain.PaymentMethod) PlaceOrderInput {
	return PlaceOrderInput{
		CallerID:  testUserID,
		UserID:    testUserID,
		AddressID: "addr-1",
		Method:    method,
	}
}

func TestPlaceOrder_CreatesPendingOrder(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.PlaceOrder(context.Background(), placeInput(domain.PaymentMethodOnline))
	require.NoError(t, err)
	require.False(t, res.Reused)

	order := res.Order
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "INR", order.Currency)

	// 2 x 12000 MRP + 1 x 20000 = 44000; скидка 2 x 3000; доставка платная.
	assert.Equal(t, int64(44000), order.SubtotalMinor)
	assert.Equal(t, int64(6000), order.DiscountMinor)
	assert.Equal(t, int64(4900), order.DeliveryFeeMinor)
	assert.Equal(t, int64(42900), order.TotalMinor)
	assert.Len(t, order.Items, 2)
	assert.NotEmpty(t, order.Number)

	// Позиция хранит и MRP, и продажную цену: построчная скидка
	// восстанавливается без пересчёта по каталогу.
	var lineDiscount int64
	for _, item := range order.Items {
		lineDiscount += (item.UnitPriceMinor - item.UnitSalePriceMinor) * int64(item.Qty)
		switch item.ProductID {
		case "prod-1":
			assert.Equal(t, int64(12000), item.UnitPriceMinor)
			assert.Equal(t, int64(9000), item.UnitSalePriceMinor)
		case "prod-2":
			assert.Equal(t, int64(20000), item.UnitPriceMinor)
			assert.Equal(t, int64(20000), item.UnitSalePriceMinor)
		}
	}
	assert.Equal(t, order.DiscountMinor, lineDiscount)

	// Корзина остаётся нетронутой до финализации.
	lines, err := f.cartStore.Lines(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	// Таймлайн и outbox-событие записаны.
	events, err := f.timeline.List(order.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.TimelineOrderPlaced, events[0].Type)

	pending, err := f.outbox.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "order.placed", pending[0].EventType)
	assert.Equal(t, order.ID, pending[0].AggregateID)
}

func TestPlaceOrder_DuplicateReturnsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.PlaceOrder(ctx, placeInput(domain.PaymentMethodOnline))
	require.NoError(t, err)

	second, err := f.svc.PlaceOrder(ctx, placeInput(domain.PaymentMethodOnline))
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.Order.ID, second.Order.ID)
}

func TestPlaceOrder_InFlightDuplicateRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Регистрируем ключ вручную в статусе processing: первый запрос ещё не
	// дописал заказ.
	lines, err := f.cartStore.Lines(ctx, testUserID)
	require.NoError(t, err)
	fingerprint := domain.CartFingerprint(testUserID, lines)
	_, err = f.idem.CreateProcessing("checkout:"+testUserID+":"+fingerprint, fingerprint, farFuture())
	require.NoError(t, err)

	_, err = f.svc.PlaceOrder(ctx, placeInput(domain.PaymentMethodOnline))
	assert.ErrorIs(t, err, ErrCheckoutInFlight)
}

func TestPlaceOrder_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("caller mismatch", func(t *testing.T) {
		in := placeInput(domain.PaymentMethodOnline)
		in.CallerID = "user-2"
		_, err := f.svc.PlaceOrder(ctx, in)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("missing address", func(t *testing.T) {
		in := placeInput(domain.PaymentMethodOnline)
		in.AddressID = ""
		_, err := f.svc.PlaceOrder(ctx, in)
		assert.ErrorIs(t, err, domain.ErrAddressRequired)
	})

	t.Run("foreign address", func(t *testing.T) {
		in := placeInput(domain.PaymentMethodOnline)
		in.AddressID = "addr-foreign"
		_, err := f.svc.PlaceOrder(ctx, in)
		assert.ErrorIs(t, err, domain.ErrAddressNotOwned)
	})

	t.Run("empty cart", func(t *testing.T) {
		f.cartStore.SetLines(testUserID, nil)
		_, err := f.svc.PlaceOrder(ctx, placeInput(domain.PaymentMethodOnline))
		assert.ErrorIs(t, err, domain.ErrEmptyOrder)
	})
}

func TestPlaceOrder_UnresolvableProductsDropped(t *testing.T) {
	f := newFixture(t)

	// Товар пропал из каталога между добавлением в корзину и checkout'ом.
	f.cartStore.RemoveProduct("prod-2")

	res, err := f.svc.PlaceOrder(context.Background(), placeInput(domain.PaymentMethodOnline))
	require.NoError(t, err)
	require.Len(t, res.Order.Items, 1)
	assert.Equal(t, "prod-1", res.Order.Items[0].ProductID)
}

func TestPlaceCODOrder_Finalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceCODOrder(ctx, placeInput(domain.PaymentMethodCOD))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMethodCOD, res.Order.PaymentMethod)
	assert.Equal(t, domain.PaymentStatusPending, res.Order.PaymentStatus)

	// COD финализируется сразу: корзина очищена.
	lines, err := f.cartStore.Lines(ctx, testUserID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	events, err := f.timeline.List(res.Order.ID)
	require.NoError(t, err)
	var finalized bool
	for _, ev := range events {
		if ev.Type == domain.TimelineOrderFinalized {
			finalized = true
		}
	}
	assert.True(t, finalized, "expected finalized timeline event")

	pending, err := f.outbox.PullPending(10)
	require.NoError(t, err)
	require.NotEmpty(t, pending)
	assert.Equal(t, "order.cod_placed", pending[0].EventType)
}

func TestOpenPaymentSession_MatchesStoredTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, placeInput(domain.PaymentMethodOnline))
	require.NoError(t, err)

	session, err := f.svc.OpenPaymentSession(ctx, res.Order.ID, testUserID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.TotalMinor, session.AmountMinor)
	assert.Equal(t, res.Order.Number, session.Receipt)
	assert.Equal(t, res.Order.ID, session.OrderID)
	assert.Equal(t, domain.SessionStatusCreated, session.Status)

	// Сумма, ушедшая в шлюз, равна сохранённому total до копейки.
	assert.Equal(t, res.Order.TotalMinor, f.gateway.LastReq.AmountMinor)
}

func TestOpenPaymentSession_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, placeInput(domain.PaymentMethodOnline))
	require.NoError(t, err)

	t.Run("foreign caller", func(t *testing.T) {
		_, err := f.svc.OpenPaymentSession(ctx, res.Order.ID, "user-2")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := f.svc.OpenPaymentSession(ctx, "no-such-order", testUserID)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("gateway amount drift", func(t *testing.T) {
		f.gateway.EchoAmount = false
		f.gateway.FixedAmount = res.Order.TotalMinor + 1
		defer func() { f.gateway.EchoAmount = true }()

		_, err := f.svc.OpenPaymentSession(ctx, res.Order.ID, testUserID)
		assert.ErrorIs(t, err, domain.ErrAmountMismatch)
	})

	t.Run("gateway down", func(t *testing.T) {
		f.gateway.OpenErr = domain.ErrGatewayUnavailable
		defer func() { f.gateway.OpenErr = nil }()

		_, err := f.svc.OpenPaymentSession(ctx, res.Order.ID, testUserID)
		assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	})

	// После сбоев сессию всё ещё можно открыть.
	session, err := f.svc.OpenPaymentSession(ctx, res.Order.ID, testUserID)
	require.NoError(t, err)
	assert.NotEmpty(t, session.GatewayOrderID)
}

func TestOpenPaymentSession_CODNotPayable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceCODOrder(ctx, placeInput(domain.PaymentMethodCOD))
	require.NoError(t, err)

	_, err = f.svc.OpenPaymentSession(ctx, res.Order.ID, testUserID)
	assert.ErrorIs(t, err, domain.ErrOrderNotPayable)
}

func TestOpenInvoiceSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoices := memory.NewInvoiceRepository()
	f.svc.invoices = invoices
	invoices.Put(domain.PrescriptionInvoice{
		ID:         "inv-1",
		UserID:     testUserID,
		Status:     domain.InvoiceStatusSent,
		Currency:   "INR",
		TotalMinor: 15000,
	})

	session, err := f.svc.OpenInvoiceSession(ctx, "inv-1", testUserID)
	require.NoError(t, err)
	assert.Equal(t, "inv-1", session.InvoiceID)
	assert.Equal(t, "inv-1", session.Receipt)
	assert.Equal(t, int64(15000), session.AmountMinor)

	t.Run("foreign caller", func(t *testing.T) {
		_, err := f.svc.OpenInvoiceSession(ctx, "inv-1", "user-2")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("paid invoice not payable", func(t *testing.T) {
		invoices.Put(domain.PrescriptionInvoice{
			ID:         "inv-2",
			UserID:     testUserID,
			Status:     domain.InvoiceStatusPaid,
			Currency:   "INR",
			TotalMinor: 9000,
		})
		_, err := f.svc.OpenInvoiceSession(ctx, "inv-2", testUserID)
		assert.ErrorIs(t, err, domain.ErrInvoiceNotPayable)
	})
}

func TestFinalize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, placeInput(domain.PaymentMethodOnline))
	require.NoError(t, err)

	// Онлайн-заказ с неподтверждённой оплатой финализировать нельзя.
	err = f.svc.Finalize(ctx, res.Order.ID)
	assert.ErrorIs(t, err, domain.ErrStatusTransition)

	order, err := f.orders.Get(res.Order.ID)
	require.NoError(t, err)
	require.NoError(t, order.MarkPaid(time.Now().UTC()))
	require.NoError(t, f.orders.Save(order))

	require.NoError(t, f.svc.Finalize(ctx, res.Order.ID))

	lines, err := f.cartStore.Lines(ctx, testUserID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	// Повторная финализация — no-op.
	require.NoError(t, f.svc.Finalize(ctx, res.Order.ID))
}

func TestConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, placeInput(domain.PaymentMethodOnline))
	require.NoError(t, err)

	order, events, err := f.svc.Confirmation(ctx, res.Order.ID, testUserID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, order.ID)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.TimelineOrderPlaced, events[0].Type)

	_, _, err = f.svc.Confirmation(ctx, res.Order.ID, "user-2")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.PlaceOrder(ctx, placeInput(domain.PaymentMethodOnline))
	require.NoError(t, err)

	// Меняем состав корзины, чтобы получить новый ключ идемпотентности.
	f.cartStore.SetLines(testUserID, []domain.CartLine{
		{ProductID: "prod-1", Qty: 1, UserID: testUserID},
	})
	second, err := f.svc.PlaceOrder(ctx, placeInput(domain.PaymentMethodOnline))
	require.NoError(t, err)

	orders, err := f.svc.ListOrders(ctx, testUserID, 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.Order.ID, orders[0].ID)
	assert.Equal(t, first.Order.ID, orders[1].ID)
}
