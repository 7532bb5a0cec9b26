package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
	"github.com/Nirman0799/affordpill-checkout/internal/metrics"
)

const (
	defaultSweepInterval = 15 * time.Minute
	defaultPendingTTL    = 24 * time.Hour
	defaultBatchSize     = 200
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "affordpill_reconcile_sweep_runs_total",
		Help: "Total number of stale-order sweep runs grouped by result.",
	}, []string{"result"})
	sweepCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "affordpill_reconcile_sweep_cancelled_total",
		Help: "Total number of stale pending orders cancelled by the sweep.",
	})
	sweepLastCancelled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "affordpill_reconcile_sweep_last_cancelled",
		Help: "Number of orders cancelled during the last sweep run.",
	})
)

// Options задаёт параметры reconciliation-свипа.
type Options struct {
	Logger     *log.Entry
	Interval   time.Duration
	PendingTTL time.Duration
	BatchSize  int
	Metrics    *metrics.CheckoutMetrics
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между проходами свипа.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithPendingTTL задаёт порог, после которого неоплаченный online-заказ
// считается брошенным.
func WithPendingTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.PendingTTL = ttl
	}
}

// WithBatchSize задаёт размер выборки за один проход.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

// WithMetrics задаёт метрики checkout-контура.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// Worker периодически отменяет online-заказы, зависшие в pending/pending
// дольше порога. Отмена освобождает заказ, по которому пользователь так и не
// завершил оплату; оплаченные и COD-заказы свип не трогает.
type Worker struct {
	orders     domain.OrderRepository
	timeline   domain.TimelineRepository
	outbox     domain.OutboxRepository
	logger     *log.Entry
	interval   time.Duration
	pendingTTL time.Duration
	batchSize  int
	metrics    *metrics.CheckoutMetrics
}

// NewWorker создаёт reconciliation-свип.
func NewWorker(orders domain.OrderRepository, timeline domain.TimelineRepository, outbox domain.OutboxRepository, options ...Option) *Worker {
	opts := Options{
		Interval:   defaultSweepInterval,
		PendingTTL: defaultPendingTTL,
		BatchSize:  defaultBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "reconcile-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = defaultPendingTTL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	return &Worker{
		orders:     orders,
		timeline:   timeline,
		outbox:     outbox,
		logger:     logger,
		interval:   opts.Interval,
		pendingTTL: opts.PendingTTL,
		batchSize:  opts.BatchSize,
		metrics:    opts.Metrics,
	}
}

// Run запускает периодический свип до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.orders == nil {
		w.logger.Warn("reconcile worker is disabled: order repository is nil")
		return
	}

	w.sweep(ctx, time.Now().UTC())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx, time.Now().UTC())
		}
	}
}

func (w *Worker) sweep(ctx context.Context, now time.Time) {
	cancelled, err := w.SweepStale(ctx, now)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		sweepRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("stale order sweep failed")
		return
	}

	sweepRunsTotal.WithLabelValues("ok").Inc()
	sweepLastCancelled.Set(float64(cancelled))
	if cancelled > 0 {
		w.logger.WithField("cancelled", cancelled).Info("stale order sweep completed")
	}
}

// SweepStale отменяет все заказы, созданные раньше now-pendingTTL, порциями
// batchSize. Возвращает число отменённых заказов.
func (w *Worker) SweepStale(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	before := now.Add(-w.pendingTTL)

	totalCancelled := 0
	for {
		if err := ctx.Err(); err != nil {
			return totalCancelled, err
		}

		stale, err := w.orders.ListStalePending(before, w.batchSize)
		if err != nil {
			return totalCancelled, err
		}
		if len(stale) == 0 {
			break
		}

		for _, order := range stale {
			if err := w.cancelOrder(order); err != nil {
				// Конфликт версий означает, что заказ успели оплатить или
				// отменить параллельно; следующий проход его уже не увидит.
				if domain.IsVersionConflict(err) {
					continue
				}
				return totalCancelled, err
			}
			totalCancelled++
			sweepCancelledTotal.Inc()
		}

		if len(stale) < w.batchSize {
			break
		}
	}

	return totalCancelled, nil
}

func (w *Worker) cancelOrder(order domain.Order) error {
	if err := order.TransitionStatus(domain.OrderStatusCancelled, time.Now().UTC()); err != nil {
		return err
	}
	if err := w.orders.Save(order); err != nil {
		return err
	}

	if w.timeline != nil {
		if err := w.timeline.Append(domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.TimelineOrderCancelled,
			Reason:   "payment not completed in time",
			Occurred: time.Now().UTC(),
		}); err != nil {
			w.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to append timeline event")
		}
	}

	if w.outbox != nil {
		payload, _ := json.Marshal(map[string]any{
			"order_id":     order.ID,
			"order_number": order.Number,
			"user_id":      order.UserID,
			"reason":       "stale pending payment",
		})
		if _, err := w.outbox.Enqueue(domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     "order.cancelled_stale",
			Payload:       payload,
		}); err != nil {
			w.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue outbox event")
		}
	}

	if w.metrics != nil {
		w.metrics.RecordStaleCancelled()
	}

	w.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.Number,
	}).Info("stale pending order cancelled")
	return nil
}
