package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lucasvieira/planbook-backend/pkg/config"
	"github.com/lucasvieira/planbook-backend/pkg/db/models"
	"github.com/lucasvieira/planbook-backend/pkg/enums"
	"github.com/lucasvieira/planbook-backend/pkg/outbox"
	"github.com/lucasvieira/planbook-backend/pkg/outbox/payloads"
)

func testConfig() config.PubSubConfig {
	return config.PubSubConfig{
		DomainTopic:   "planbook-domain-events",
		PaymentsTopic: "planbook-payment-events",
	}
}

func envelopeFor(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	env, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return env
}

func TestResolveRoutesByEventType(t *testing.T) {
	reg, err := NewEventRegistry(testConfig())
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}

	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPaymentSucceeded,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   uuid.New(),
		Payload: envelopeFor(t, payloads.PaymentStatusEvent{
			OrderRef: "ENR-202508-INDIVIDUAL-plan-1-00001",
			Status:   "succeeded",
		}),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if resolved.Descriptor.Topic != "planbook-payment-events" {
		t.Fatalf("payment events should route to the payments topic, got %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.PaymentStatusEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.Status != "succeeded" {
		t.Fatalf("payload not decoded: %+v", payload)
	}
}

func TestResolveRejectsUnknownType(t *testing.T) {
	reg, err := NewEventRegistry(testConfig())
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}

	_, err = reg.Resolve(models.OutboxEvent{EventType: "mystery_event"})
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("unknown event types must be non-retryable, got %v", err)
	}
}

func TestResolveRejectsAggregateMismatch(t *testing.T) {
	reg, err := NewEventRegistry(testConfig())
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}

	_, err = reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventEnrollmentCreated,
		AggregateType: enums.AggregatePaymentTransaction,
		Payload:       envelopeFor(t, payloads.EnrollmentEvent{}),
	})
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("aggregate mismatch must be non-retryable, got %v", err)
	}
}

func TestResolveRejectsMalformedEnvelope(t *testing.T) {
	reg, err := NewEventRegistry(testConfig())
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}

	_, err = reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventEnrollmentCreated,
		AggregateType: enums.AggregateEnrollment,
		Payload:       json.RawMessage(`{"not":"an envelope"`),
	})
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("malformed envelopes must be non-retryable, got %v", err)
	}
}
