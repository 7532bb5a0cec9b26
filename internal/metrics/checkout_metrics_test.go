package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newIsolatedMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())
}

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := gauge.Write(metric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNewCheckoutMetrics(t *testing.T) {
	metrics := newIsolatedMetrics()

	if metrics.ordersPlaced == nil {
		t.Error("ordersPlaced counter vec should not be nil")
	}
	if metrics.sessionsOpened == nil {
		t.Error("sessionsOpened counter should not be nil")
	}
	if metrics.paymentsVerified == nil {
		t.Error("paymentsVerified counter should not be nil")
	}
	if metrics.signatureRejected == nil {
		t.Error("signatureRejected counter should not be nil")
	}
	if metrics.widgetOutcomes == nil {
		t.Error("widgetOutcomes counter vec should not be nil")
	}
	if metrics.staleCancelled == nil {
		t.Error("staleCancelled counter should not be nil")
	}
	if metrics.reconcileFlags == nil {
		t.Error("reconcileFlags counter should not be nil")
	}
	if metrics.checkoutDuration == nil {
		t.Error("checkoutDuration histogram should not be nil")
	}
	if metrics.verifyDuration == nil {
		t.Error("verifyDuration histogram should not be nil")
	}
	if metrics.pendingPayments == nil {
		t.Error("pendingPayments gauge should not be nil")
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := newCheckoutMetricsWithRegisterer(reg)
	second := newCheckoutMetricsWithRegisterer(reg)

	// Повторная регистрация возвращает уже существующие коллекторы,
	// а не паникует на дубликате.
	first.RecordSessionOpened()
	second.RecordSessionOpened()

	if got := counterValue(t, first.sessionsOpened); got != 2.0 {
		t.Errorf("expected shared counter value 2.0, got %f", got)
	}
}

func TestRecordOrderPlaced(t *testing.T) {
	metrics := newIsolatedMetrics()

	metrics.RecordOrderPlaced("online")
	metrics.RecordOrderPlaced("online")
	metrics.RecordOrderPlaced("cod")

	if got := counterValue(t, metrics.ordersPlaced.WithLabelValues("online")); got != 2.0 {
		t.Errorf("expected online counter 2.0, got %f", got)
	}
	if got := counterValue(t, metrics.ordersPlaced.WithLabelValues("cod")); got != 1.0 {
		t.Errorf("expected cod counter 1.0, got %f", got)
	}
	if got := gaugeValue(t, metrics.pendingPayments); got != 3.0 {
		t.Errorf("expected pending payments 3.0, got %f", got)
	}
}

func TestRecordPaymentVerified(t *testing.T) {
	metrics := newIsolatedMetrics()

	metrics.RecordOrderPlaced("online")
	metrics.RecordPaymentVerified()

	if got := counterValue(t, metrics.paymentsVerified); got != 1.0 {
		t.Errorf("expected verified counter 1.0, got %f", got)
	}
	// Подтверждённая оплата выводит заказ из pending.
	if got := gaugeValue(t, metrics.pendingPayments); got != 0.0 {
		t.Errorf("expected pending payments 0.0, got %f", got)
	}
}

func TestRecordSignatureRejected(t *testing.T) {
	metrics := newIsolatedMetrics()

	metrics.RecordOrderPlaced("online")
	metrics.RecordSignatureRejected()

	if got := counterValue(t, metrics.signatureRejected); got != 1.0 {
		t.Errorf("expected rejected counter 1.0, got %f", got)
	}
	// Отклонённая подпись не снимает заказ с ожидания оплаты.
	if got := gaugeValue(t, metrics.pendingPayments); got != 1.0 {
		t.Errorf("expected pending payments 1.0, got %f", got)
	}
}

func TestRecordWidgetOutcome(t *testing.T) {
	metrics := newIsolatedMetrics()

	metrics.RecordWidgetOutcome("succeeded")
	metrics.RecordWidgetOutcome("dismissed")
	metrics.RecordWidgetOutcome("dismissed")

	if got := counterValue(t, metrics.widgetOutcomes.WithLabelValues("dismissed")); got != 2.0 {
		t.Errorf("expected dismissed counter 2.0, got %f", got)
	}
	if got := counterValue(t, metrics.widgetOutcomes.WithLabelValues("succeeded")); got != 1.0 {
		t.Errorf("expected succeeded counter 1.0, got %f", got)
	}
}

func TestRecordStaleCancelled(t *testing.T) {
	metrics := newIsolatedMetrics()

	metrics.RecordOrderPlaced("online")
	metrics.RecordStaleCancelled()

	if got := counterValue(t, metrics.staleCancelled); got != 1.0 {
		t.Errorf("expected stale counter 1.0, got %f", got)
	}
	if got := gaugeValue(t, metrics.pendingPayments); got != 0.0 {
		t.Errorf("expected pending payments 0.0, got %f", got)
	}
}

func TestRecordReconcileFlag(t *testing.T) {
	metrics := newIsolatedMetrics()

	metrics.RecordReconcileFlag()

	if got := counterValue(t, metrics.reconcileFlags); got != 1.0 {
		t.Errorf("expected reconcile counter 1.0, got %f", got)
	}
}

func TestRecordDurations(t *testing.T) {
	metrics := newIsolatedMetrics()

	metrics.RecordCheckoutDuration(25 * time.Millisecond)
	metrics.RecordVerifyDuration(5 * time.Millisecond)

	checkout := &dto.Metric{}
	if err := metrics.checkoutDuration.Write(checkout); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if checkout.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 checkout observation, got %d", checkout.Histogram.GetSampleCount())
	}

	verify := &dto.Metric{}
	if err := metrics.verifyDuration.Write(verify); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if verify.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 verify observation, got %d", verify.Histogram.GetSampleCount())
	}
}
