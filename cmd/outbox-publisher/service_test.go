package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lucasvieira/planbook-backend/pkg/config"
	"github.com/lucasvieira/planbook-backend/pkg/db/models"
	"github.com/lucasvieira/planbook-backend/pkg/enums"
	"github.com/lucasvieira/planbook-backend/pkg/logger"
	"github.com/lucasvieira/planbook-backend/pkg/outbox"
	"github.com/lucasvieira/planbook-backend/pkg/outbox/payloads"
	"github.com/lucasvieira/planbook-backend/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{
				ID:            uuid.New(),
				EventType:     enums.EventEnrollmentCreated,
				AggregateType: enums.AggregateEnrollment,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-one"),
			},
			{
				ID:            uuid.New(),
				EventType:     enums.EventEnrollmentCreated,
				AggregateType: enums.AggregateEnrollment,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-two"),
			},
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "domain-topic",
			AggregateType: enums.AggregateEnrollment,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.EnrollmentEvent{},
	}
	eventRegistry := &fakeRegistry{resolved: resolved}
	dlqRepo := &fakeDLQRepo{}
	recorder := &fakeMetrics{}
	service := newTestService(t, repo, pub, eventRegistry, dlqRepo, recorder, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
	if recorder.published != 1 || recorder.failed != 1 {
		t.Fatalf("metrics mismatch: published=%d failed=%d", recorder.published, recorder.failed)
	}
	if recorder.batches != 1 {
		t.Fatalf("expected one batch observation, got %d", recorder.batches)
	}
}

func TestServiceProcessBatchSetsOrderingKey(t *testing.T) {
	aggregateID := uuid.New()
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPaymentSucceeded,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   aggregateID,
		Payload:       mustEnvelopePayload(t, "ordered"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "payments-topic",
			AggregateType: enums.AggregatePaymentTransaction,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    event.ID.String(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.PaymentStatusEvent{},
	}
	eventRegistry := &fakeRegistry{resolved: resolved}
	service := newTestService(t, repo, pub, eventRegistry, &fakeDLQRepo{}, nil, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one dispatched message, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.OrderingKey != aggregateID.String() {
		t.Fatalf("ordering key %q does not match aggregate %s", msg.OrderingKey, aggregateID)
	}
	if msg.Attributes["aggregate_id"] != aggregateID.String() {
		t.Fatalf("aggregate_id attribute mismatch: %q", msg.Attributes["aggregate_id"])
	}
}

func TestServiceProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventEnrollmentCreated,
		AggregateType: enums.AggregateEnrollment,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "nonretryable"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	eventRegistry := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	recorder := &fakeMetrics{}
	service := newTestService(t, repo, &fakePublisher{}, eventRegistry, dlqRepo, recorder, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.Payload == nil || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
	if recorder.deadLettered != 1 {
		t.Fatalf("expected one dead-letter observation, got %d", recorder.deadLettered)
	}
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventEnrollmentConfirmed,
		AggregateType: enums.AggregateEnrollment,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "max-attempts"),
		AttemptCount:  1,
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
		},
	}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "domain-topic",
			AggregateType: enums.AggregateEnrollment,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    event.ID.String(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.EnrollmentEvent{},
	}
	eventRegistry := &fakeRegistry{resolved: resolved}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, eventRegistry, dlqRepo, nil, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
}

func TestServiceMarkFailureDoesNotRollBackOthers(t *testing.T) {
	first := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventEnrollmentCreated,
		AggregateType: enums.AggregateEnrollment,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "first"),
	}
	second := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventEnrollmentCreated,
		AggregateType: enums.AggregateEnrollment,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "second"),
	}
	repo := &fakeRepo{
		events:          []models.OutboxEvent{first, second},
		markPublishErrs: map[uuid.UUID]error{first.ID: errors.New("connection reset")},
	}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}, fakePublishResult{}}}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "domain-topic",
			AggregateType: enums.AggregateEnrollment,
		},
		Envelope: outbox.PayloadEnvelope{EventID: uuid.NewString(), OccurredAt: time.Now()},
		Payload:  &payloads.EnrollmentEvent{},
	}
	fdb := &fakeDB{}
	service := newTestServiceWithDB(t, fdb, repo, pub, &fakeRegistry{resolved: resolved}, &fakeDLQRepo{}, nil, nil)

	processed, err := service.processBatch(context.Background())
	if err == nil {
		t.Fatalf("expected the unmarked send to surface as an error")
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	// The second event's mark must survive the first event's failure.
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("expected second event marked published, got %v", repo.published)
	}
	// One fetch transaction plus one settle transaction per event.
	if fdb.txCount != 3 {
		t.Fatalf("expected 3 transactions, got %d", fdb.txCount)
	}
}

func TestServiceReusesPublisherForTopic(t *testing.T) {
	events := []models.OutboxEvent{
		{
			ID:            uuid.New(),
			EventType:     enums.EventEnrollmentCreated,
			AggregateType: enums.AggregateEnrollment,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelopePayload(t, "one"),
		},
		{
			ID:            uuid.New(),
			EventType:     enums.EventEnrollmentCreated,
			AggregateType: enums.AggregateEnrollment,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelopePayload(t, "two"),
		},
	}
	repo := &fakeRepo{events: events}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}, fakePublishResult{}}}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "domain-topic",
			AggregateType: enums.AggregateEnrollment,
		},
		Envelope: outbox.PayloadEnvelope{EventID: uuid.NewString(), OccurredAt: time.Now()},
		Payload:  &payloads.EnrollmentEvent{},
	}

	factoryCalls := 0
	service, err := NewService(ServiceParams{
		Config: &config.Config{Outbox: config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}},
		Logger: logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:     &fakeDB{},
		PubSub: &fakePubSubClient{},
		Repository: repo,
		Registry:   &fakeRegistry{resolved: resolved},
		PublisherFactory: func(_ string) publisher {
			factoryCalls++
			return pub
		},
		DLQRepository: &fakeDLQRepo{},
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if factoryCalls != 1 {
		t.Fatalf("expected one publisher per topic, factory called %d times", factoryCalls)
	}

	service.Stop()
	if pub.stopped != 1 {
		t.Fatalf("expected cached publisher stopped once, got %d", pub.stopped)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, eventRegistry registryResolver, dlq dlqRepository, recorder batchMetrics, outboxCfgOverride *config.OutboxConfig) *Service {
	return newTestServiceWithDB(t, &fakeDB{}, repo, pub, eventRegistry, dlq, recorder, outboxCfgOverride)
}

func newTestServiceWithDB(t *testing.T, fdb *fakeDB, repo outboxRepository, pub publisher, eventRegistry registryResolver, dlq dlqRepository, recorder batchMetrics, outboxCfgOverride *config.OutboxConfig) *Service {
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               fdb,
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         eventRegistry,
		PublisherFactory: func(_ string) publisher { return pub },
		DLQRepository:    dlq,
		Metrics:          recorder,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events          []models.OutboxEvent
	published       []uuid.UUID
	failed          []uuid.UUID
	markPublishErrs map[uuid.UUID]error
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	if err, ok := f.markPublishErrs[id]; ok {
		return err
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeDB struct {
	txCount int
}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	f.txCount++
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) DomainPublisher() *gcppubsub.Publisher {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
	stopped  int
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

func (f *fakePublisher) Stop() {
	f.stopped++
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeMetrics struct {
	published    int
	failed       int
	deadLettered int
	batches      int
}

func (f *fakeMetrics) IncPublished(string) {
	f.published++
}

func (f *fakeMetrics) IncFailed(string) {
	f.failed++
}

func (f *fakeMetrics) IncDeadLettered(string) {
	f.deadLettered++
}

func (f *fakeMetrics) ObserveBatch(time.Duration) {
	f.batches++
}
