package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func dlqTestMessage(value []byte, retryCount string) *sarama.ConsumerMessage {
	msg := &sarama.ConsumerMessage{
		Topic:     TopicCheckoutEvents,
		Partition: 0,
		Offset:    7,
		Key:       []byte("order-123"),
		Value:     value,
	}
	if retryCount != "" {
		msg.Headers = append(msg.Headers, &sarama.RecordHeader{
			Key:   []byte(HeaderRetryCount),
			Value: []byte(retryCount),
		})
	}
	return msg
}

func TestParseEventEnvelope(t *testing.T) {
	t.Parallel()

	envelope := EventEnvelope{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     string(EventTypeOrderPlaced),
		Payload:       json.RawMessage(`{"order_id":"order-123"}`),
		PublishedAt:   time.Now().UTC(),
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	parsed, err := ParseEventEnvelope(dlqTestMessage(raw, ""))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.EventType != string(EventTypeOrderPlaced) {
		t.Fatalf("expected event type %s, got %s", EventTypeOrderPlaced, parsed.EventType)
	}
	if parsed.AggregateID != "order-123" {
		t.Fatalf("expected aggregate id order-123, got %s", parsed.AggregateID)
	}
}

func TestParseEventEnvelope_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := ParseEventEnvelope(dlqTestMessage([]byte("not json"), "")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if _, err := ParseEventEnvelope(dlqTestMessage([]byte(`{"id":"outbox-1"}`), "")); err == nil {
		t.Fatal("expected error for envelope without event type")
	}
}

func TestGetRetryCount(t *testing.T) {
	t.Parallel()

	consumer := &Consumer{logger: log.WithField("component", "kafka-consumer-test")}

	if got := consumer.getRetryCount(dlqTestMessage(nil, "")); got != 0 {
		t.Fatalf("expected 0 without header, got %d", got)
	}
	if got := consumer.getRetryCount(dlqTestMessage(nil, "2")); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := consumer.getRetryCount(dlqTestMessage(nil, "many")); got != 0 {
		t.Fatalf("expected 0 for malformed header, got %d", got)
	}
}

func TestHandleMessageWithRetry_Success(t *testing.T) {
	t.Parallel()

	consumer := &Consumer{
		handler:    func(context.Context, *sarama.ConsumerMessage) error { return nil },
		logger:     log.WithField("component", "kafka-consumer-test"),
		maxRetries: 3,
	}

	if err := consumer.handleMessageWithRetry(context.Background(), dlqTestMessage(nil, "")); err != nil {
		t.Fatalf("expected nil for successful handler, got %v", err)
	}
}

func TestHandleMessageWithRetry_RetriesBeforeDLQ(t *testing.T) {
	t.Parallel()

	failure := errors.New("handler down")
	consumer := &Consumer{
		handler:    func(context.Context, *sarama.ConsumerMessage) error { return failure },
		logger:     log.WithField("component", "kafka-consumer-test"),
		maxRetries: 3,
	}

	// Ниже лимита retry ошибка возвращается: сообщение будет перечитано.
	if err := consumer.handleMessageWithRetry(context.Background(), dlqTestMessage(nil, "1")); !errors.Is(err, failure) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestHandleMessageWithRetry_SendsToDLQAfterMaxRetries(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()

	consumer := &Consumer{
		handler:    func(context.Context, *sarama.ConsumerMessage) error { return errors.New("handler down") },
		logger:     log.WithField("component", "kafka-consumer-test"),
		maxRetries: 3,
		dlqProducer: &Producer{
			producer: mockProducer,
			logger:   log.WithField("component", "kafka-producer-test"),
		},
	}

	// На лимите retry сообщение уходит в DLQ, а обработка считается успешной.
	if err := consumer.handleMessageWithRetry(context.Background(), dlqTestMessage([]byte(`{}`), "3")); err != nil {
		t.Fatalf("expected nil after DLQ handoff, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestHandleMessageWithRetry_NoDLQKeepsFailing(t *testing.T) {
	t.Parallel()

	failure := errors.New("handler down")
	consumer := &Consumer{
		handler:    func(context.Context, *sarama.ConsumerMessage) error { return failure },
		logger:     log.WithField("component", "kafka-consumer-test"),
		maxRetries: 3,
	}

	if err := consumer.handleMessageWithRetry(context.Background(), dlqTestMessage(nil, "3")); !errors.Is(err, failure) {
		t.Fatalf("expected handler error without DLQ, got %v", err)
	}
}
