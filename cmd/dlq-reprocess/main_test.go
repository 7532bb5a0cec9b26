package main

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"

	"github.com/Nirman0799/affordpill-checkout/internal/messaging/kafka"
)

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" localhost:9092 ,, localhost:9093 ")
	if len(brokers) != 2 {
		t.Fatalf("expected 2 brokers, got %d", len(brokers))
	}
	if brokers[0] != "localhost:9092" || brokers[1] != "localhost:9093" {
		t.Errorf("unexpected brokers: %v", brokers)
	}
}

func TestExtractReplayMessage_ConsumerFormat(t *testing.T) {
	value, _ := json.Marshal(map[string]any{
		"original_topic": kafka.TopicPaymentEvents,
		"original_key":   "order-1",
		"original_value": `{"event_type":"payment.verified"}`,
	})

	msg := &sarama.ConsumerMessage{Topic: kafka.TopicDeadLetterQueue, Value: value}
	replay, ok, err := extractReplayMessage(msg, kafka.TopicCheckoutEvents)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !ok {
		t.Fatal("expected a replayable message")
	}
	if replay.topic != kafka.TopicPaymentEvents {
		t.Errorf("expected original topic, got %s", replay.topic)
	}
	if replay.key != "order-1" {
		t.Errorf("expected key order-1, got %s", replay.key)
	}
	if string(replay.value) != `{"event_type":"payment.verified"}` {
		t.Errorf("unexpected value: %s", replay.value)
	}
}

func TestExtractReplayMessage_OutboxFormat(t *testing.T) {
	dlqPayload, _ := json.Marshal(map[string]any{
		"outbox_id":      "msg-1",
		"aggregate_type": "order",
		"aggregate_id":   "order-1",
		"event_type":     "payment.verified",
		"payload":        json.RawMessage(`{"order_id":"order-1"}`),
		"publish_error":  "broker unreachable",
	})
	envelope, _ := json.Marshal(map[string]any{
		"id":             "msg-1",
		"aggregate_type": "order",
		"aggregate_id":   "order-1",
		"event_type":     "payment.verified",
		"payload":        json.RawMessage(dlqPayload),
	})

	msg := &sarama.ConsumerMessage{Topic: kafka.TopicDeadLetterQueue, Value: envelope}
	replay, ok, err := extractReplayMessage(msg, kafka.TopicCheckoutEvents)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !ok {
		t.Fatal("expected a replayable message")
	}
	// payment.* события возвращаются в payment topic, а не в default.
	if replay.topic != kafka.TopicPaymentEvents {
		t.Errorf("expected payment topic, got %s", replay.topic)
	}
	if replay.key != "order-1" {
		t.Errorf("expected key order-1, got %s", replay.key)
	}

	var decoded kafka.EventEnvelope
	if err := json.Unmarshal(replay.value, &decoded); err != nil {
		t.Fatalf("decode replay envelope: %v", err)
	}
	if decoded.EventType != "payment.verified" {
		t.Errorf("unexpected event type: %s", decoded.EventType)
	}
	if string(decoded.Payload) != `{"order_id":"order-1"}` {
		t.Errorf("unexpected payload: %s", decoded.Payload)
	}
}

func TestExtractReplayMessage_UnsupportedValue(t *testing.T) {
	msg := &sarama.ConsumerMessage{Topic: kafka.TopicDeadLetterQueue, Value: []byte("not json")}
	_, ok, err := extractReplayMessage(msg, kafka.TopicCheckoutEvents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("plain text message should be skipped")
	}
}
