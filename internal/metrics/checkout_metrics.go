package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики цикла заказ-оплата.
type CheckoutMetrics struct {
	// Счётчики операций
	ordersPlaced      *prometheus.CounterVec
	sessionsOpened    prometheus.Counter
	paymentsVerified  prometheus.Counter
	signatureRejected prometheus.Counter
	widgetOutcomes    *prometheus.CounterVec
	staleCancelled    prometheus.Counter
	reconcileFlags    prometheus.Counter

	// Гистограммы времени выполнения
	checkoutDuration prometheus.Histogram
	verifyDuration   prometheus.Histogram

	// Gauge для незавершённых оплат
	pendingPayments prometheus.Gauge
}

// NewCheckoutMetrics создаёт новый экземпляр метрик checkout.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		ordersPlaced: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "affordpill_orders_placed_total",
			Help: "Total number of orders written, labeled by payment method",
		}, []string{"method"}),
		sessionsOpened: registerCounter(registerer, prometheus.CounterOpts{
			Name: "affordpill_payment_sessions_opened_total",
			Help: "Total number of gateway payment sessions opened",
		}),
		paymentsVerified: registerCounter(registerer, prometheus.CounterOpts{
			Name: "affordpill_payments_verified_total",
			Help: "Total number of payments verified and marked paid",
		}),
		signatureRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "affordpill_payment_signature_rejected_total",
			Help: "Total number of verification calls rejected on signature mismatch",
		}),
		widgetOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "affordpill_widget_outcomes_total",
			Help: "Total number of widget attempt outcomes, labeled by outcome",
		}, []string{"outcome"}),
		staleCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "affordpill_stale_orders_cancelled_total",
			Help: "Total number of stale pending orders cancelled by the reconcile sweep",
		}),
		reconcileFlags: registerCounter(registerer, prometheus.CounterOpts{
			Name: "affordpill_reconcile_flags_total",
			Help: "Total number of partial side-effect inconsistencies flagged for reconciliation",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "affordpill_checkout_duration_seconds",
			Help:    "Duration of order placement in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		verifyDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "affordpill_verify_duration_seconds",
			Help:    "Duration of payment verification in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		pendingPayments: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "affordpill_pending_payments",
			Help: "Number of orders currently awaiting payment",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderPlaced увеличивает счётчик созданных заказов.
func (m *CheckoutMetrics) RecordOrderPlaced(method string) {
	m.ordersPlaced.WithLabelValues(method).Inc()
	m.pendingPayments.Inc()
}

// RecordSessionOpened увеличивает счётчик открытых платёжных сессий.
func (m *CheckoutMetrics) RecordSessionOpened() {
	m.sessionsOpened.Inc()
}

// RecordPaymentVerified увеличивает счётчик подтверждённых оплат.
func (m *CheckoutMetrics) RecordPaymentVerified() {
	m.paymentsVerified.Inc()
	m.pendingPayments.Dec()
}

// RecordSignatureRejected увеличивает счётчик отклонённых подписей.
func (m *CheckoutMetrics) RecordSignatureRejected() {
	m.signatureRejected.Inc()
}

// RecordWidgetOutcome увеличивает счётчик исходов виджета
// (succeeded/dismissed/failed).
func (m *CheckoutMetrics) RecordWidgetOutcome(outcome string) {
	m.widgetOutcomes.WithLabelValues(outcome).Inc()
}

// RecordStaleCancelled увеличивает счётчик отменённых свипом заказов.
func (m *CheckoutMetrics) RecordStaleCancelled() {
	m.staleCancelled.Inc()
	m.pendingPayments.Dec()
}

// RecordReconcileFlag увеличивает счётчик зафиксированных рассогласований.
func (m *CheckoutMetrics) RecordReconcileFlag() {
	m.reconcileFlags.Inc()
}

// RecordCheckoutDuration записывает время создания заказа.
func (m *CheckoutMetrics) RecordCheckoutDuration(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordVerifyDuration записывает время верификации платежа.
func (m *CheckoutMetrics) RecordVerifyDuration(duration time.Duration) {
	m.verifyDuration.Observe(duration.Seconds())
}
