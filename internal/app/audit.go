package app

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/Nirman0799/affordpill-checkout/internal/messaging/kafka"
)

// auditConsumerGroup — consumer group аудит-потока; отдельная от реплея,
// чтобы offsets аудита не сдвигали чужой прогресс.
const auditConsumerGroup = "affordpill-checkout-audit"

// auditEventHandler возвращает обработчик событий checkout-контура для
// аудит-консьюмера: каждое событие попадает в журнал, reconcile.needed
// поднимается до error как сигнал для ручного вмешательства. Нечитаемое
// сообщение возвращает ошибку, чтобы consumer увёл его в DLQ после
// исчерпания retry.
func auditEventHandler(logger *log.Entry) kafka.MessageHandler {
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := kafka.ParseEventEnvelope(message)
		if err != nil {
			return err
		}

		fields := log.Fields{
			"event_type":     envelope.EventType,
			"aggregate_type": envelope.AggregateType,
			"aggregate_id":   envelope.AggregateID,
			"topic":          message.Topic,
		}

		switch kafka.EventType(envelope.EventType) {
		case kafka.EventTypeReconcileNeeded:
			logger.WithFields(fields).Error("manual reconciliation required")
		case kafka.EventTypePaymentFailed, kafka.EventTypeOrderCancelledStale:
			logger.WithFields(fields).Warn("lifecycle event")
		default:
			logger.WithFields(fields).Info("lifecycle event")
		}
		return nil
	}
}
