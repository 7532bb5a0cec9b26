package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
	healthcheck "github.com/Nirman0799/affordpill-checkout/internal/health"
	"github.com/Nirman0799/affordpill-checkout/internal/messaging/kafka"
	"github.com/Nirman0799/affordpill-checkout/internal/metrics"
	"github.com/Nirman0799/affordpill-checkout/internal/service/checkout"
	"github.com/Nirman0799/affordpill-checkout/internal/service/idempotency"
	"github.com/Nirman0799/affordpill-checkout/internal/service/outbox"
	"github.com/Nirman0799/affordpill-checkout/internal/service/reconcile"
	"github.com/Nirman0799/affordpill-checkout/internal/service/verification"
	httpapi "github.com/Nirman0799/affordpill-checkout/internal/transport/http"
	"github.com/Nirman0799/affordpill-checkout/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run собирает сервис и держит его запущенным до отмены контекста:
// API-сервер, sidecar с метриками и health-чеками, outbox-воркер,
// reconcile-свип, чистка idempotency-ключей и, при настроенной Kafka,
// аудит-консьюмер опубликованных событий.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	checkoutMetrics := metrics.NewCheckoutMetrics()

	checkoutSvc := checkout.NewService(checkout.Deps{
		Orders:    deps.Orders,
		Sessions:  deps.Sessions,
		Invoices:  deps.Invoices,
		Idem:      deps.Idem,
		Timeline:  deps.Timeline,
		Outbox:    deps.Outbox,
		Cart:      deps.Cart,
		Catalog:   deps.Cart,
		Addresses: deps.Addresses,
		Gateway:   deps.Gateway,
		Metrics:   checkoutMetrics,
		Logger:    logger.WithField("component", "checkout"),
	}, checkout.Config{
		Currency: cfg.Currency,
		Pricing: domain.PricingRule{
			DeliveryFeeMinor:           cfg.DeliveryFeeMinor,
			FreeDeliveryThresholdMinor: cfg.FreeDeliveryThresholdMinor,
		},
	})

	verifySvc := verification.NewService(verification.Deps{
		Orders:    deps.Orders,
		Sessions:  deps.Sessions,
		Invoices:  deps.Invoices,
		Timeline:  deps.Timeline,
		Outbox:    deps.Outbox,
		Finalizer: checkoutSvc,
		Metrics:   checkoutMetrics,
		Logger:    logger.WithField("component", "verification"),
	}, cfg.GatewaySecret)

	handler := httpapi.NewHandler(checkoutSvc, verifySvc, logger.WithField("component", "http"))
	router := httpapi.NewRouter(handler, deps.Addresses, logger.WithField("component", "http"))

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewStorageChecker("postgres", deps.Store, 2*time.Second))
	}
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(deps.Outbox, 0, 0))

	outboxOptions := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
	}
	if deps.Producer != nil {
		outboxOptions = append(outboxOptions,
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(deps.Producer, kafka.TopicDeadLetterQueue)))
	}
	outboxWorker := outbox.NewWorker(deps.Outbox, deps.Publisher, outboxOptions...)
	reconcileWorker := reconcile.NewWorker(deps.Orders, deps.Timeline, deps.Outbox,
		reconcile.WithLogger(logger.WithField("component", "reconcile")),
		reconcile.WithPendingTTL(cfg.PendingOrderTTL),
		reconcile.WithMetrics(checkoutMetrics))
	cleanupWorker := idempotency.NewCleanupWorker(deps.Idem,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")))

	// Аудит-консьюмер читает опубликованные события обратно: журнал жизненного
	// цикла плюс эскалация reconcile.needed. Без Kafka сервис живёт и без него.
	var auditConsumer *kafka.Consumer
	if len(cfg.KafkaBrokers) > 0 && deps.Producer != nil {
		auditConsumer, err = kafka.NewConsumerWithDLQ(
			strings.Split(cfg.KafkaBrokers, ","),
			auditConsumerGroup,
			[]string{kafka.TopicCheckoutEvents, kafka.TopicPaymentEvents},
			auditEventHandler(logger.WithField("component", "event-audit")),
			deps.Producer,
			3,
		)
		if err != nil {
			logger.WithError(err).Warn("audit consumer unavailable, continuing without it")
			auditConsumer = nil
		}
	}

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	metricsSrv := newMetricsServer(cfg.MetricsAddr, healthHandler)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Infof("API сервер слушает %s", cfg.HTTPAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.Infof("метрики доступны по адресу %s/metrics", cfg.MetricsAddr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", cfg.MetricsAddr, cfg.MetricsAddr, cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		outboxWorker.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		reconcileWorker.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		cleanupWorker.Run(groupCtx)
		return nil
	})

	if auditConsumer != nil {
		if err := auditConsumer.Start(groupCtx); err != nil {
			logger.WithError(err).Warn("audit consumer failed to start")
			auditConsumer = nil
		}
	}

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("получен сигнал остановки, останавливаем HTTP-серверы")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		if auditConsumer != nil {
			if err := auditConsumer.Stop(); err != nil {
				logger.WithError(err).Warn("audit consumer stopped with error")
			}
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// newMetricsServer собирает sidecar с /metrics и health-эндпоинтами.
func newMetricsServer(addr string, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	return &http.Server{Addr: addr, Handler: mux}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
