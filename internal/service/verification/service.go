package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
	"github.com/Nirman0799/affordpill-checkout/internal/metrics"
	"github.com/Nirman0799/affordpill-checkout/internal/service/payment"
)

// Finalizer очищает корзину после успешной оплаты; реализуется checkout-сервисом.
type Finalizer interface {
	Finalize(ctx context.Context, orderID string) error
}

// Service — единственная точка, которой позволено переводить заказ в
// payment_status=paid. Подпись callback'а проверяется на серверном секрете,
// недоступном клиенту.
type Service struct {
	orders    domain.OrderRepository
	sessions  domain.SessionRepository
	invoices  domain.InvoiceRepository
	timeline  domain.TimelineRepository
	outbox    domain.OutboxRepository
	finalizer Finalizer
	metrics   *metrics.CheckoutMetrics
	logger    *log.Entry
	secret    string
}

// Deps перечисляет зависимости верификатора.
type Deps struct {
	Orders    domain.OrderRepository
	Sessions  domain.SessionRepository
	Invoices  domain.InvoiceRepository
	Timeline  domain.TimelineRepository
	Outbox    domain.OutboxRepository
	Finalizer Finalizer
	Metrics   *metrics.CheckoutMetrics
	Logger    *log.Entry
}

// NewService создаёт верификатор с секретом подписи шлюза.
func NewService(deps Deps, signatureSecret string) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "verification")
	}
	return &Service{
		orders:    deps.Orders,
		sessions:  deps.Sessions,
		invoices:  deps.Invoices,
		timeline:  deps.Timeline,
		outbox:    deps.Outbox,
		finalizer: deps.Finalizer,
		metrics:   deps.Metrics,
		logger:    logger,
		secret:    signatureSecret,
	}
}

// VerifyOrderPayment валидирует success-callback и помечает заказ оплаченным.
// Идемпотентность: повторная верификация уже оплаченного заказа возвращает
// verified=true без побочных эффектов — дубль доставки callback'а или refresh
// посреди потока не удваивают запись.
func (s *Service) VerifyOrderPayment(ctx context.Context, res domain.VerificationResult) (bool, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordVerifyDuration(time.Since(start))
		}
	}()

	session, err := s.sessions.Get(res.GatewayOrderID)
	if err != nil {
		return false, err
	}
	if session.OrderID == "" || (res.OrderID != "" && session.OrderID != res.OrderID) {
		return false, domain.ErrSessionNotFound
	}

	order, err := s.orders.Get(session.OrderID)
	if err != nil {
		return false, err
	}

	// Уже оплачен — no-op успех.
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return true, nil
	}

	if !payment.VerifySignature(s.secret, res.GatewayOrderID, res.PaymentID, res.Signature) {
		s.rejectSignature(order.ID, res.PaymentID)
		return false, domain.ErrSignatureMismatch
	}

	if err := s.markOrderPaid(order); err != nil {
		return false, err
	}

	if err := s.sessions.MarkConsumed(session.GatewayOrderID); err != nil {
		s.logger.WithError(err).WithField("gateway_order_id", session.GatewayOrderID).Warn("failed to mark session consumed")
	}

	s.appendTimeline(order.ID, domain.TimelinePaymentVerified, res.PaymentID)
	s.enqueueEvent("order", order.ID, "payment.verified", map[string]any{
		"order_id":       order.ID,
		"payment_id":     res.PaymentID,
		"gateway_order":  res.GatewayOrderID,
		"amount_minor":   order.TotalMinor,
		"payment_status": string(domain.PaymentStatusPaid),
	})
	if s.metrics != nil {
		s.metrics.RecordPaymentVerified()
	}

	if s.finalizer != nil {
		if err := s.finalizer.Finalize(ctx, order.ID); err != nil {
			// Оплата подтверждена; неудача очистки корзины — не повод
			// возвращать пользователю ошибку.
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("finalize after verification failed")
		}
	}

	s.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"payment_id": res.PaymentID,
	}).Info("payment verified")

	return true, nil
}

// VerifyInvoicePayment — вариант для инвойса по рецепту. Успешная верификация
// помечает инвойс оплаченным и рецепт исполненным; если второй апдейт упал,
// платёж пользователю всё равно подтверждается, а рассогласование остаётся
// обнаружимым для reconciliation.
func (s *Service) VerifyInvoicePayment(ctx context.Context, res domain.VerificationResult) (bool, error) {
	session, err := s.sessions.Get(res.GatewayOrderID)
	if err != nil {
		return false, err
	}
	if session.InvoiceID == "" || (res.InvoiceID != "" && session.InvoiceID != res.InvoiceID) {
		return false, domain.ErrSessionNotFound
	}

	invoice, err := s.invoices.Get(session.InvoiceID)
	if err != nil {
		return false, err
	}

	if invoice.Status == domain.InvoiceStatusPaid {
		return true, nil
	}

	if !payment.VerifySignature(s.secret, res.GatewayOrderID, res.PaymentID, res.Signature) {
		if s.metrics != nil {
			s.metrics.RecordSignatureRejected()
		}
		return false, domain.ErrSignatureMismatch
	}

	invoice.MarkPaid(time.Now().UTC())
	if err := s.invoices.Save(invoice); err != nil {
		return false, fmt.Errorf("mark invoice paid: %w", err)
	}

	if err := s.sessions.MarkConsumed(session.GatewayOrderID); err != nil {
		s.logger.WithError(err).WithField("gateway_order_id", session.GatewayOrderID).Warn("failed to mark session consumed")
	}
	if s.metrics != nil {
		s.metrics.RecordPaymentVerified()
	}

	if err := s.invoices.MarkPrescriptionFulfilled(invoice.ID); err != nil {
		// invoice.paid уже записан; фиксируем рассогласование для свипа/аудита.
		s.logger.WithError(err).WithField("invoice_id", invoice.ID).Error("prescription fulfillment update failed, flagging for reconciliation")
		s.enqueueEvent("invoice", invoice.ID, "reconcile.needed", map[string]any{
			"invoice_id": invoice.ID,
			"reason":     "invoice paid but prescription not fulfilled",
		})
		if s.metrics != nil {
			s.metrics.RecordReconcileFlag()
		}
		return true, nil
	}

	s.enqueueEvent("invoice", invoice.ID, "invoice.paid", map[string]any{
		"invoice_id":   invoice.ID,
		"payment_id":   res.PaymentID,
		"amount_minor": invoice.TotalMinor,
	})
	return true, nil
}

// RecordGatewayFailure фиксирует сообщение шлюза о неуспешной оплате: сессия
// закрывается, заказ остаётся pending и допускает новую сессию.
func (s *Service) RecordGatewayFailure(gatewayOrderID, reason string) {
	if err := s.sessions.MarkExpired(gatewayOrderID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		s.logger.WithError(err).WithField("gateway_order_id", gatewayOrderID).Warn("failed to expire session")
	}

	session, err := s.sessions.Get(gatewayOrderID)
	if err == nil && session.OrderID != "" {
		s.appendTimeline(session.OrderID, domain.TimelinePaymentFailed, reason)
	}
	if s.metrics != nil {
		s.metrics.RecordWidgetOutcome(string(payment.OutcomeGatewayFailed))
	}
}

// markOrderPaid применяет переход оплаты с одним повтором на конфликт версий:
// проигравшая вкладка перечитывает заказ и, если он уже оплачен, выигрыш чужой.
func (s *Service) markOrderPaid(order domain.Order) error {
	now := time.Now().UTC()
	if err := order.MarkPaid(now); err != nil {
		return err
	}
	err := s.orders.Save(order)
	if err == nil {
		return nil
	}
	if !domain.IsVersionConflict(err) {
		return fmt.Errorf("save paid order: %w", err)
	}

	reloaded, loadErr := s.orders.Get(order.ID)
	if loadErr != nil {
		return fmt.Errorf("reload order after conflict: %w", loadErr)
	}
	if reloaded.PaymentStatus == domain.PaymentStatusPaid {
		return nil
	}
	if err := reloaded.MarkPaid(now); err != nil {
		return err
	}
	if err := s.orders.Save(reloaded); err != nil {
		return fmt.Errorf("save paid order after conflict: %w", err)
	}
	return nil
}

func (s *Service) rejectSignature(orderID, paymentID string) {
	s.logger.WithFields(log.Fields{
		"order_id":   orderID,
		"payment_id": paymentID,
	}).Warn("payment signature mismatch")
	s.appendTimeline(orderID, domain.TimelineSignatureRejected, paymentID)
	if s.metrics != nil {
		s.metrics.RecordSignatureRejected()
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

func (s *Service) enqueueEvent(aggregateType, aggregateID, eventType string, payload map[string]any) {
	if s.outbox == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}); err != nil {
		s.logger.WithError(err).WithField("aggregate_id", aggregateID).Warn("failed to enqueue outbox event")
	}
}
