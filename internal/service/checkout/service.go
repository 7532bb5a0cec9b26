package checkout

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
	"github.com/Nirman0799/affordpill-checkout/internal/metrics"
)

const (
	// idempotencyTTL ограничивает окно, в котором дубль checkout'а
	// схлопывается в уже созданный заказ.
	idempotencyTTL = 24 * time.Hour

	orderNumberTokenBytes = 4
)

// ErrCheckoutInFlight возвращается, когда параллельная отправка той же корзины
// ещё обрабатывается; клиенту следует дождаться первого ответа.
var ErrCheckoutInFlight = errors.New("checkout for this cart is already in flight")

// Config задаёт параметры checkout-сервиса.
type Config struct {
	Currency string
	Pricing  domain.PricingRule
}

// Service реализует создание заказа, открытие платёжной сессии, COD-путь и
// финализацию. Корзину сервис только читает и очищает при финализации.
type Service struct {
	orders    domain.OrderRepository
	sessions  domain.SessionRepository
	invoices  domain.InvoiceRepository
	idem      domain.IdempotencyRepository
	timeline  domain.TimelineRepository
	outbox    domain.OutboxRepository
	cart      domain.CartStore
	catalog   domain.ProductCatalog
	addresses domain.AddressStore
	gateway   domain.PaymentGateway
	metrics   *metrics.CheckoutMetrics
	logger    *log.Entry
	cfg       Config
}

// Deps перечисляет зависимости checkout-сервиса.
type Deps struct {
	Orders    domain.OrderRepository
	Sessions  domain.SessionRepository
	Invoices  domain.InvoiceRepository
	Idem      domain.IdempotencyRepository
	Timeline  domain.TimelineRepository
	Outbox    domain.OutboxRepository
	Cart      domain.CartStore
	Catalog   domain.ProductCatalog
	Addresses domain.AddressStore
	Gateway   domain.PaymentGateway
	Metrics   *metrics.CheckoutMetrics
	Logger    *log.Entry
}

// NewService создаёт checkout-сервис.
func NewService(deps Deps, cfg Config) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Service{
		orders:    deps.Orders,
		sessions:  deps.Sessions,
		invoices:  deps.Invoices,
		idem:      deps.Idem,
		timeline:  deps.Timeline,
		outbox:    deps.Outbox,
		cart:      deps.Cart,
		catalog:   deps.Catalog,
		addresses: deps.Addresses,
		gateway:   deps.Gateway,
		metrics:   deps.Metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// PlaceOrderInput — параметры создания заказа из корзины.
type PlaceOrderInput struct {
	// CallerID — аутентифицированный пользователь; должен совпадать с UserID.
	CallerID  string
	UserID    string
	AddressID string
	Method    domain.PaymentMethod
}

// PlaceOrderResult — результат создания заказа.
type PlaceOrderResult struct {
	Order domain.Order
	// Reused=true, если дубль отправки вернул уже существующий pending-заказ.
	Reused bool
}

type placedOrderRef struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// PlaceOrder создаёт заказ из снапшота корзины: авторизация, принадлежность
// адреса, заморозка цен, расчёт квоты, серверный ключ идемпотентности и
// атомарная запись шапки с позициями. Корзина при этом не трогается: её чистит
// только финализация, чтобы неуспешная оплата не уничтожала корзину.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (PlaceOrderResult, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordCheckoutDuration(time.Since(start))
		}
	}()

	if in.CallerID == "" || in.CallerID != in.UserID {
		return PlaceOrderResult{}, domain.ErrUnauthorized
	}
	if in.AddressID == "" {
		return PlaceOrderResult{}, domain.ErrAddressRequired
	}

	owns, err := s.addresses.Owns(ctx, in.UserID, in.AddressID)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("check address ownership: %w", err)
	}
	if !owns {
		return PlaceOrderResult{}, domain.ErrAddressNotOwned
	}

	lines, err := s.cart.Lines(ctx, in.UserID)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("read cart lines: %w", err)
	}
	if len(lines) == 0 {
		return PlaceOrderResult{}, domain.ErrEmptyOrder
	}

	snapshot := s.freezeSnapshot(ctx, lines)
	if len(snapshot) == 0 {
		return PlaceOrderResult{}, domain.ErrEmptyOrder
	}

	// Ключ идемпотентности выводится из пользователя и состава корзины:
	// вторая вкладка или двойной клик возвращают тот же заказ.
	fingerprint := domain.CartFingerprint(in.UserID, lines)
	idemKey := "checkout:" + in.UserID + ":" + fingerprint

	if _, err := s.idem.CreateProcessing(idemKey, fingerprint, time.Now().UTC().Add(idempotencyTTL)); err != nil {
		switch {
		case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists), errors.Is(err, domain.ErrIdempotencyHashMismatch):
			return s.reuseExistingOrder(idemKey)
		default:
			return PlaceOrderResult{}, fmt.Errorf("register idempotency key: %w", err)
		}
	}

	order, err := s.buildOrder(in, snapshot)
	if err != nil {
		_ = s.idem.MarkFailed(idemKey, nil, 0)
		return PlaceOrderResult{}, err
	}

	if err := s.orders.Create(order); err != nil {
		_ = s.idem.MarkFailed(idemKey, nil, 0)
		s.logger.WithError(err).WithField("user_id", in.UserID).Error("failed to persist order")
		return PlaceOrderResult{}, fmt.Errorf("persist order: %w", err)
	}

	ref, _ := json.Marshal(placedOrderRef{OrderID: order.ID, OrderNumber: order.Number})
	if err := s.idem.MarkDone(idemKey, ref, 0); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to mark idempotency key done")
	}

	s.appendTimeline(order.ID, domain.TimelineOrderPlaced, string(in.Method))
	s.enqueueOrderEvent(order, eventTypeForMethod(in.Method))
	if s.metrics != nil {
		s.metrics.RecordOrderPlaced(string(in.Method))
	}

	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.Number,
		"method":       in.Method,
		"total_minor":  order.TotalMinor,
	}).Info("order placed")

	return PlaceOrderResult{Order: order}, nil
}

// PlaceCODOrder — альтернативный путь без шлюза: заказ пишется с
// payment_status=pending и сразу финализируется.
func (s *Service) PlaceCODOrder(ctx context.Context, in PlaceOrderInput) (PlaceOrderResult, error) {
	in.Method = domain.PaymentMethodCOD
	res, err := s.PlaceOrder(ctx, in)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	if err := s.Finalize(ctx, res.Order.ID); err != nil {
		// Заказ уже создан; неудавшаяся очистка корзины не отменяет его.
		s.logger.WithError(err).WithField("order_id", res.Order.ID).Warn("cod finalize failed")
	}
	return res, nil
}

// OpenPaymentSession открывает сессию у шлюза для online-заказа. Сумма сессии
// сверяется с сохранённым total до обращения к шлюзу: любой дрейф — это
// ErrAmountMismatch, а не тихое округление. Безопасно повторять по тому же
// заказу после dismiss или сбоя шлюза.
func (s *Service) OpenPaymentSession(ctx context.Context, orderID, callerID string) (domain.PaymentSession, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	if order.UserID != callerID {
		return domain.PaymentSession{}, domain.ErrUnauthorized
	}
	if order.PaymentMethod != domain.PaymentMethodOnline ||
		order.PaymentStatus != domain.PaymentStatusPending ||
		order.Status == domain.OrderStatusCancelled {
		return domain.PaymentSession{}, domain.ErrOrderNotPayable
	}

	// Пересчёт сумм по сохранённым позициям обязан сойтись с шапкой.
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		s.logger.WithField("order_id", order.ID).Error("stored order fails invariants, refusing to open session")
		return domain.PaymentSession{}, domain.ErrAmountMismatch
	}

	gw, err := s.gateway.OpenSession(ctx, domain.GatewaySessionRequest{
		AmountMinor: order.TotalMinor,
		Currency:    order.Currency,
		Receipt:     order.Number,
		Notes:       map[string]string{"order_id": order.ID},
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("gateway session open failed")
		return domain.PaymentSession{}, err
	}
	if gw.AmountMinor != order.TotalMinor {
		return domain.PaymentSession{}, domain.ErrAmountMismatch
	}

	now := time.Now().UTC()
	session := domain.PaymentSession{
		GatewayOrderID: gw.GatewayOrderID,
		OrderID:        order.ID,
		AmountMinor:    gw.AmountMinor,
		Currency:       gw.Currency,
		Receipt:        order.Number,
		Status:         domain.SessionStatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.sessions.Create(session); err != nil {
		return domain.PaymentSession{}, fmt.Errorf("persist payment session: %w", err)
	}

	s.appendTimeline(order.ID, domain.TimelineSessionOpened, gw.GatewayOrderID)
	s.enqueueSessionEvent(session)
	if s.metrics != nil {
		s.metrics.RecordSessionOpened()
	}

	return session, nil
}

// OpenInvoiceSession открывает платёжную сессию для инвойса по рецепту.
// Структурно тот же поток, что и для заказа; receipt = invoice id.
func (s *Service) OpenInvoiceSession(ctx context.Context, invoiceID, callerID string) (domain.PaymentSession, error) {
	invoice, err := s.invoices.Get(invoiceID)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	if invoice.UserID != callerID {
		return domain.PaymentSession{}, domain.ErrUnauthorized
	}
	if invoice.Status != domain.InvoiceStatusSent {
		return domain.PaymentSession{}, domain.ErrInvoiceNotPayable
	}

	gw, err := s.gateway.OpenSession(ctx, domain.GatewaySessionRequest{
		AmountMinor: invoice.TotalMinor,
		Currency:    invoice.Currency,
		Receipt:     invoice.ID,
		Notes:       map[string]string{"invoice_id": invoice.ID},
	})
	if err != nil {
		return domain.PaymentSession{}, err
	}
	if gw.AmountMinor != invoice.TotalMinor {
		return domain.PaymentSession{}, domain.ErrAmountMismatch
	}

	now := time.Now().UTC()
	session := domain.PaymentSession{
		GatewayOrderID: gw.GatewayOrderID,
		InvoiceID:      invoice.ID,
		AmountMinor:    gw.AmountMinor,
		Currency:       gw.Currency,
		Receipt:        invoice.ID,
		Status:         domain.SessionStatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.sessions.Create(session); err != nil {
		return domain.PaymentSession{}, fmt.Errorf("persist invoice session: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordSessionOpened()
	}
	return session, nil
}

// Finalize очищает корзину покупателя и фиксирует финализацию. Вызывается и из
// COD-пути, и из success-callback'а оплаты, поэтому обязан быть идемпотентным:
// очистка уже пустой корзины — no-op, а не ошибка.
func (s *Service) Finalize(ctx context.Context, orderID string) error {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return err
	}
	if !order.IsPaymentTerminal() {
		return domain.ErrStatusTransition
	}

	if err := s.cart.Clear(ctx, order.UserID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	s.appendTimeline(order.ID, domain.TimelineOrderFinalized, "")
	return nil
}

// Confirmation возвращает заказ с таймлайном для страницы подтверждения.
func (s *Service) Confirmation(ctx context.Context, orderID, callerID string) (domain.Order, []domain.TimelineEvent, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	if order.UserID != callerID {
		return domain.Order{}, nil, domain.ErrUnauthorized
	}

	events, err := s.timeline.List(orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to load timeline")
		events = nil
	}
	return order, events, nil
}

// ListOrders возвращает заказы покупателя.
func (s *Service) ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	return s.orders.ListByUser(userID, limit)
}

// freezeSnapshot резолвит строки корзины в прайс-снапшот; нерезолвящиеся
// товары отбрасываются с warn-логом.
func (s *Service) freezeSnapshot(ctx context.Context, lines []domain.CartLine) []domain.SnapshotLine {
	snapshot := make([]domain.SnapshotLine, 0, len(lines))
	for _, line := range lines {
		product, err := s.catalog.Resolve(ctx, line.ProductID)
		if err != nil {
			s.logger.WithError(err).WithField("product_id", line.ProductID).Warn("product failed to resolve, dropping from snapshot")
			continue
		}
		snapshot = append(snapshot, domain.SnapshotLine{
			ProductID:      product.ProductID,
			ProductName:    product.Name,
			Qty:            line.Qty,
			UnitPriceMinor: product.PriceMinor,
			UnitMRPMinor:   product.MRPMinor,
		})
	}
	return snapshot
}

func (s *Service) buildOrder(in PlaceOrderInput, snapshot []domain.SnapshotLine) (domain.Order, error) {
	now := time.Now().UTC()
	quote := domain.PriceSnapshot(snapshot, s.cfg.Pricing)
	subtotal, discount, fee, total := quote.ToOrderAmounts()

	items := make([]domain.OrderItem, 0, len(snapshot))
	for _, line := range snapshot {
		unit := line.UnitMRPMinor
		if unit < line.UnitPriceMinor {
			unit = line.UnitPriceMinor
		}
		items = append(items, domain.OrderItem{
			ID:          uuid.NewString(),
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Qty:         line.Qty,
			// Позиция хранит обе цены: MRP сходится с subtotal шапки,
			// продажная фиксирует фактическое списание по строке.
			UnitPriceMinor:     unit,
			UnitSalePriceMinor: line.UnitPriceMinor,
			TotalPriceMinor:    unit * int64(line.Qty),
			CreatedAt:          now,
		})
	}

	number, err := newOrderNumber(now)
	if err != nil {
		return domain.Order{}, fmt.Errorf("generate order number: %w", err)
	}

	order := domain.Order{
		ID:               uuid.NewString(),
		Number:           number,
		UserID:           in.UserID,
		AddressID:        in.AddressID,
		Status:           domain.OrderStatusPending,
		PaymentStatus:    domain.PaymentStatusPending,
		PaymentMethod:    in.Method,
		Currency:         s.cfg.Currency,
		SubtotalMinor:    subtotal,
		DiscountMinor:    discount,
		DeliveryFeeMinor: fee,
		TotalMinor:       total,
		Items:            items,
		Version:          0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}
	return order, nil
}

func (s *Service) reuseExistingOrder(idemKey string) (PlaceOrderResult, error) {
	record, err := s.idem.Get(idemKey)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("load idempotency record: %w", err)
	}

	switch record.Status {
	case domain.IdempotencyStatusProcessing:
		return PlaceOrderResult{}, ErrCheckoutInFlight
	case domain.IdempotencyStatusDone:
		var ref placedOrderRef
		if err := json.Unmarshal(record.ResponseBody, &ref); err != nil {
			return PlaceOrderResult{}, fmt.Errorf("decode idempotency response: %w", err)
		}
		order, err := s.orders.Get(ref.OrderID)
		if err != nil {
			return PlaceOrderResult{}, err
		}
		return PlaceOrderResult{Order: order, Reused: true}, nil
	default:
		// Предыдущая попытка упала; записи дадим истечь, а клиенту — повторить.
		return PlaceOrderResult{}, ErrCheckoutInFlight
	}
}

func (s *Service) appendTimeline(orderID, eventType, reason string) {
	if s.timeline == nil {
		return
	}
	if err := s.timeline.Append(domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to append timeline event")
	}
}

func (s *Service) enqueueOrderEvent(order domain.Order, eventType string) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"order_id":     order.ID,
		"order_number": order.Number,
		"user_id":      order.UserID,
		"method":       string(order.PaymentMethod),
		"total_minor":  order.TotalMinor,
	})
	if err != nil {
		return
	}
	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue outbox event")
	}
}

func (s *Service) enqueueSessionEvent(session domain.PaymentSession) {
	if s.outbox == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"gateway_order_id": session.GatewayOrderID,
		"order_id":         session.OrderID,
		"amount_minor":     session.AmountMinor,
		"receipt":          session.Receipt,
	})
	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "payment_session",
		AggregateID:   session.GatewayOrderID,
		EventType:     "payment.session_opened",
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("gateway_order_id", session.GatewayOrderID).Warn("failed to enqueue session event")
	}
}

func eventTypeForMethod(method domain.PaymentMethod) string {
	if method == domain.PaymentMethodCOD {
		return "order.cod_placed"
	}
	return "order.placed"
}

// newOrderNumber генерирует уникальный номер заказа: UTC-метка плюс случайный
// токен. Номер служит receipt'ом платёжной сессии, поэтому энтропии должно
// хватать на параллельные checkout'ы.
func newOrderNumber(now time.Time) (string, error) {
	token := make([]byte, orderNumberTokenBytes)
	if _, err := rand.Read(token); err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102150405"), hex.EncodeToString(token)), nil
}
