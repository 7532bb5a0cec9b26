package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
	"github.com/Nirman0799/affordpill-checkout/internal/messaging/kafka"
	"github.com/Nirman0799/affordpill-checkout/internal/service/address"
	"github.com/Nirman0799/affordpill-checkout/internal/service/cart"
	"github.com/Nirman0799/affordpill-checkout/internal/service/payment"
	"github.com/Nirman0799/affordpill-checkout/internal/storage/memory"
	"github.com/Nirman0799/affordpill-checkout/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Orders   domain.OrderRepository
	Sessions domain.SessionRepository
	Invoices domain.InvoiceRepository
	Idem     domain.IdempotencyRepository
	Timeline domain.TimelineRepository
	Outbox   domain.OutboxRepository

	Cart      *cart.Store
	Addresses *address.Store
	Gateway   domain.PaymentGateway
	Publisher domain.OutboxPublisher

	Store    *postgres.Store
	Producer *kafka.Producer
	Logger   *log.Entry
}

// NewDependencies собирает зависимости по конфигурации: postgres при заданном
// DSN, иначе in-memory; Kafka при заданных brokers, иначе публикация в лог;
// реальный шлюз при заданных ключах, иначе mock.
// NOTE: cart и address store здесь in-memory: в production их отдают
// внешние CRUD-сервисы витрины.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Cart:      cart.NewStore(),
		Addresses: address.NewStore(),
		Logger:    logger,
	}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		deps.Store = store
		deps.Orders = postgres.NewOrderRepository(store)
		deps.Sessions = postgres.NewSessionRepository(store)
		deps.Invoices = postgres.NewInvoiceRepository(store)
		deps.Idem = postgres.NewIdempotencyRepository(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		logger.Info("storage: postgres")
	} else {
		deps.Orders = memory.NewOrderRepository()
		deps.Sessions = memory.NewSessionRepository()
		deps.Invoices = memory.NewInvoiceRepository()
		deps.Idem = memory.NewIdempotencyRepository()
		deps.Timeline = memory.NewTimelineRepository()
		deps.Outbox = memory.NewOutboxRepository()
		logger.Info("storage: in-memory")
	}

	if cfg.GatewayKeyID != "" && cfg.GatewaySecret != "" {
		var options []payment.GatewayOption
		if cfg.GatewayEndpoint != "" {
			options = append(options, payment.WithEndpoint(cfg.GatewayEndpoint))
		}
		deps.Gateway = payment.NewGatewayClient(cfg.GatewayKeyID, cfg.GatewaySecret, options...)
		logger.Info("payment gateway: live client")
	} else {
		deps.Gateway = payment.NewMockGateway()
		logger.Warn("payment gateway: mock (no credentials configured)")
	}

	if cfg.KafkaBrokers != "" {
		brokers := strings.Split(cfg.KafkaBrokers, ",")
		producer, err := kafka.NewProducer(brokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, events will be logged only")
		} else {
			deps.Producer = producer
			deps.Publisher = kafka.NewOutboxPublisher(producer, "")
			logger.WithField("brokers", brokers).Info("kafka producer initialized")
		}
	}
	if deps.Publisher == nil {
		deps.Publisher = &logPublisher{logger: logger.WithField("component", "outbox-log")}
	}

	seedDevAuth(deps.Addresses, cfg.DevTokens, logger)
	return deps, nil
}

// Close освобождает внешние ресурсы.
func (d *Dependencies) Close() {
	if d.Producer != nil {
		if err := d.Producer.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close kafka producer")
		} else {
			d.Logger.Info("kafka producer closed")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}

// seedDevAuth регистрирует пары token:user_id для локальной разработки.
func seedDevAuth(store *address.Store, devTokens string, logger *log.Entry) {
	if devTokens == "" {
		return
	}
	count := 0
	for _, pair := range strings.Split(devTokens, ",") {
		token, userID, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || userID == "" {
			logger.WithField("pair", pair).Warn("skipping malformed dev token")
			continue
		}
		store.PutToken(token, userID)
		count++
	}
	if count > 0 {
		logger.WithField("tokens", count).Warn("dev auth tokens loaded, do not use in production")
	}
}

// logPublisher — заглушка публикации, когда Kafka не настроен: событие
// считается доставленным после записи в лог.
type logPublisher struct {
	logger *log.Entry
}

func (p *logPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}).Info("outbox event (kafka disabled)")
	return nil
}

var _ domain.OutboxPublisher = (*logPublisher)(nil)
