package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/Nirman0799/affordpill-checkout/internal/messaging/kafka"
)

func auditTestMessage(t *testing.T, eventType string) *sarama.ConsumerMessage {
	t.Helper()

	raw, err := json.Marshal(kafka.EventEnvelope{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     eventType,
		Payload:       json.RawMessage(`{"order_id":"order-123"}`),
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &sarama.ConsumerMessage{
		Topic: kafka.TopicCheckoutEvents,
		Value: raw,
	}
}

func newAuditTestHandler() (kafka.MessageHandler, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return auditEventHandler(log.NewEntry(logger)), hook
}

func TestAuditEventHandler_LogsLifecycleEvent(t *testing.T) {
	handler, hook := newAuditTestHandler()

	if err := handler(context.Background(), auditTestMessage(t, string(kafka.EventTypeOrderPlaced))); err != nil {
		t.Fatalf("expected nil for valid event, got %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Level != log.InfoLevel {
		t.Fatalf("expected info level, got %s", entry.Level)
	}
	if entry.Data["event_type"] != string(kafka.EventTypeOrderPlaced) {
		t.Fatalf("expected event_type field, got %v", entry.Data["event_type"])
	}
	if entry.Data["aggregate_id"] != "order-123" {
		t.Fatalf("expected aggregate_id field, got %v", entry.Data["aggregate_id"])
	}
}

func TestAuditEventHandler_EscalatesReconcileNeeded(t *testing.T) {
	handler, hook := newAuditTestHandler()

	if err := handler(context.Background(), auditTestMessage(t, string(kafka.EventTypeReconcileNeeded))); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	// Рассогласование — сигнал для ручного вмешательства, не рядовая запись.
	if entry.Level != log.ErrorLevel {
		t.Fatalf("expected error level, got %s", entry.Level)
	}
}

func TestAuditEventHandler_WarnsOnFailures(t *testing.T) {
	handler, hook := newAuditTestHandler()

	if err := handler(context.Background(), auditTestMessage(t, string(kafka.EventTypePaymentFailed))); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Level != log.WarnLevel {
		t.Fatalf("expected warn level, got %s", entry.Level)
	}
}

func TestAuditEventHandler_MalformedMessage(t *testing.T) {
	handler, _ := newAuditTestHandler()

	msg := &sarama.ConsumerMessage{
		Topic: kafka.TopicCheckoutEvents,
		Value: []byte("not json"),
	}
	// Ошибка возвращается наружу: consumer доведёт сообщение до DLQ.
	if err := handler(context.Background(), msg); err == nil {
		t.Fatal("expected error for malformed message")
	}
}
