package booking

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lucasvieira/planbook-backend/internal/capacity"
	"github.com/lucasvieira/planbook-backend/internal/payments"
	"github.com/lucasvieira/planbook-backend/internal/sequence"
	"github.com/lucasvieira/planbook-backend/pkg/db/models"
	"github.com/lucasvieira/planbook-backend/pkg/enums"
	pkgerrors "github.com/lucasvieira/planbook-backend/pkg/errors"
	"github.com/lucasvieira/planbook-backend/pkg/logger"
	"github.com/lucasvieira/planbook-backend/pkg/outbox"
)

type fakeGateway struct {
	result payments.ChargeResult
	err    error
}

func (g *fakeGateway) CreateAndCapture(_ context.Context, _ payments.ChargeParams) (payments.ChargeResult, error) {
	return g.result, g.err
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

func TestBookFreePlanConfirmsImmediately(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, &fakeGateway{})
	ctx := context.Background()
	plan := seedPlan(t, db, "free-intro", enums.PlanCategoryIndividual, 0)
	seedLedger(t, db, plan.ID, intPtr(10))

	result, err := svc.Book(ctx, BookRequest{PlanSlug: "free-intro", Qty: 2})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if result.Enrollment.Status != enums.EnrollmentStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", result.Enrollment.Status)
	}
	if result.Enrollment.Reference != "ENR-202508-INDIVIDUAL-free-intro-00001" {
		t.Fatalf("unexpected reference %q", result.Enrollment.Reference)
	}
	if result.Payment != nil {
		t.Fatalf("free plan must not charge")
	}

	assertLedger(t, db, plan.ID, 2)
	assertEventTypes(t, db, result.Enrollment.ID, enums.EventEnrollmentCreated, enums.EventEnrollmentConfirmed)
}

func TestBookPaidPlanConfirmsOnChargeSuccess(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	gw := &fakeGateway{result: payments.ChargeResult{ExternalPaymentRef: "sq-ok", Outcome: payments.OutcomeSucceeded}}
	svc := newTestService(t, db, gw)
	ctx := context.Background()
	plan := seedPlan(t, db, "yoga-basics", enums.PlanCategoryGroup, 1500)
	seedLedger(t, db, plan.ID, intPtr(5))

	result, err := svc.Book(ctx, BookRequest{PlanSlug: "yoga-basics", Qty: 2})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if result.Enrollment.Status != enums.EnrollmentStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", result.Enrollment.Status)
	}
	if result.Payment == nil || result.Payment.Status != enums.PaymentStatusSucceeded {
		t.Fatalf("unexpected payment %+v", result.Payment)
	}
	if result.Payment.AmountCents != 3000 {
		t.Fatalf("expected amount 3000, got %d", result.Payment.AmountCents)
	}
	if result.Enrollment.PaymentTransactionID == nil || *result.Enrollment.PaymentTransactionID != result.Payment.ID {
		t.Fatalf("payment transaction not linked")
	}
	assertLedger(t, db, plan.ID, 2)
	assertEventTypes(t, db, result.Enrollment.ID, enums.EventEnrollmentCreated, enums.EventEnrollmentConfirmed)
}

func TestBookPaidPlanCancelsOnChargeFailure(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	gw := &fakeGateway{result: payments.ChargeResult{
		Outcome:     payments.OutcomeFailed,
		FailureCode: models.PaymentFailureDeclined,
		ErrorDetail: "card declined",
	}}
	svc := newTestService(t, db, gw)
	ctx := context.Background()
	plan := seedPlan(t, db, "pilates", enums.PlanCategoryIndividual, 2000)
	seedLedger(t, db, plan.ID, intPtr(3))

	result, err := svc.Book(ctx, BookRequest{PlanSlug: "pilates", Qty: 1})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if result.Enrollment.Status != enums.EnrollmentStatusCancelled {
		t.Fatalf("expected cancelled, got %s", result.Enrollment.Status)
	}
	if result.Payment == nil || result.Payment.Status != enums.PaymentStatusFailed {
		t.Fatalf("unexpected payment %+v", result.Payment)
	}

	// Seats go back on cancellation.
	assertLedger(t, db, plan.ID, 0)
	assertEventTypes(t, db, result.Enrollment.ID, enums.EventEnrollmentCreated, enums.EventEnrollmentCancelled)
}

func TestBookPaidPlanStaysPendingWhenAuthorized(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	gw := &fakeGateway{result: payments.ChargeResult{ExternalPaymentRef: "sq-auth", Outcome: payments.OutcomeAuthorized}}
	svc := newTestService(t, db, gw)
	ctx := context.Background()
	plan := seedPlan(t, db, "swim", enums.PlanCategoryGroup, 1000)
	seedLedger(t, db, plan.ID, intPtr(3))

	result, err := svc.Book(ctx, BookRequest{PlanSlug: "swim", Qty: 1})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if result.Enrollment.Status != enums.EnrollmentStatusPendingPayment {
		t.Fatalf("expected pending payment, got %s", result.Enrollment.Status)
	}
	if result.Enrollment.PaymentTransactionID == nil {
		t.Fatalf("authorized payment must be linked")
	}
	// Seats stay held while settlement is pending.
	assertLedger(t, db, plan.ID, 1)
}

func TestBookCapacityExhaustedRollsBack(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, &fakeGateway{})
	ctx := context.Background()
	plan := seedPlan(t, db, "small-class", enums.PlanCategoryIndividual, 0)
	seedLedger(t, db, plan.ID, intPtr(1))

	if _, err := svc.Book(ctx, BookRequest{PlanSlug: "small-class", Qty: 1}); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	_, err := svc.Book(ctx, BookRequest{PlanSlug: "small-class", Qty: 1})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeCapacityExhausted {
		t.Fatalf("expected capacity exhausted, got %v", err)
	}

	// The rejected attempt left no enrollment and consumed no seat.
	var count int64
	if err := db.Model(&models.Enrollment{}).Where("plan_id = ?", plan.ID).Count(&count).Error; err != nil {
		t.Fatalf("count enrollments: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 enrollment, got %d", count)
	}
	assertLedger(t, db, plan.ID, 1)
}

func TestBookUnknownPlan(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, &fakeGateway{})

	_, err := svc.Book(context.Background(), BookRequest{PlanSlug: "ghost", Qty: 1})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetByReference(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, &fakeGateway{})
	ctx := context.Background()
	plan := seedPlan(t, db, "box", enums.PlanCategoryIndividual, 0)
	seedLedger(t, db, plan.ID, nil)

	result, err := svc.Book(ctx, BookRequest{PlanSlug: "box", Qty: 1})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	loaded, err := svc.GetByReference(ctx, result.Enrollment.Reference)
	if err != nil {
		t.Fatalf("get by reference: %v", err)
	}
	if loaded.ID != result.Enrollment.ID {
		t.Fatalf("loaded wrong enrollment")
	}

	// Malformed reference is a validation failure, not a lookup miss.
	_, err = svc.GetByReference(ctx, "not-a-reference")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Well-formed but absent is not found.
	_, err = svc.GetByReference(ctx, "ENR-202508-INDIVIDUAL-box-09999")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAvailability(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db, &fakeGateway{})
	ctx := context.Background()
	plan := seedPlan(t, db, "gym", enums.PlanCategoryCorporate, 0)
	seedLedger(t, db, plan.ID, intPtr(8))

	if _, err := svc.Book(ctx, BookRequest{PlanSlug: "gym", Qty: 3}); err != nil {
		t.Fatalf("book: %v", err)
	}

	_, available, err := svc.Availability(ctx, "gym")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if available != 5 {
		t.Fatalf("expected 5 available, got %d", available)
	}
}

func newTestService(t *testing.T, db *gorm.DB, gw payments.Gateway) *Service {
	t.Helper()
	logg := logger.New(logger.Options{Level: zerolog.Disabled, Output: io.Discard})
	runner := gormTxRunner{db: db}
	outboxSvc := outbox.NewService(outbox.NewRepository(db), logg)
	paymentSvc := payments.NewService(payments.Params{
		Repo:          payments.NewRepository(db),
		Outbox:        outboxSvc,
		Gateway:       gw,
		TxRunner:      runner,
		Logger:        logg,
		ChargeTimeout: time.Second,
		GraceWindow:   time.Hour,
	})
	return NewService(Params{
		Plans:       NewPlanRepository(db),
		Enrollments: NewEnrollmentRepository(db),
		Capacity:    capacity.NewService(capacity.NewRepository(db), logg, 50),
		Sequence:    sequence.NewService(sequence.NewRepository(db), "ENR", 5),
		Payments:    paymentSvc,
		Outbox:      outboxSvc,
		TxRunner:    runner,
		Logger:      logg,
		Now: func() time.Time {
			return time.Date(2025, time.August, 15, 12, 0, 0, 0, time.UTC)
		},
	})
}

func seedPlan(t *testing.T, db *gorm.DB, slug string, category enums.PlanCategory, priceCents int64) *models.Plan {
	t.Helper()
	plan := &models.Plan{
		ID:         uuid.New(),
		Slug:       slug,
		Name:       slug,
		Category:   category,
		PriceCents: priceCents,
		Currency:   "USD",
	}
	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan
}

func seedLedger(t *testing.T, db *gorm.DB, planID uuid.UUID, capacity *int) {
	t.Helper()
	if err := db.Create(&models.CapacityLedger{PlanID: planID, Capacity: capacity}).Error; err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
}

func assertLedger(t *testing.T, db *gorm.DB, planID uuid.UUID, wantReserved int) {
	t.Helper()
	var row models.CapacityLedger
	if err := db.First(&row, "plan_id = ?", planID).Error; err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if row.ReservedCount != wantReserved {
		t.Fatalf("expected reserved count %d, got %d", wantReserved, row.ReservedCount)
	}
}

func assertEventTypes(t *testing.T, db *gorm.DB, aggregateID uuid.UUID, want ...enums.OutboxEventType) {
	t.Helper()
	var rows []models.OutboxEvent
	if err := db.Where("aggregate_id = ?", aggregateID).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load outbox events: %v", err)
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(rows))
	}
	for i, eventType := range want {
		if rows[i].EventType != eventType {
			t.Fatalf("event %d: expected %s, got %s", i, eventType, rows[i].EventType)
		}
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:booking_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	schemas := []string{
		`CREATE TABLE plans (
  id TEXT PRIMARY KEY,
  slug TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  category TEXT NOT NULL,
  price_cents INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'USD',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE capacity_ledger (
  plan_id TEXT PRIMARY KEY,
  capacity INTEGER,
  reserved_count INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`,
		`CREATE TABLE sequence_counters (
  id TEXT PRIMARY KEY,
  period TEXT NOT NULL,
  category TEXT NOT NULL,
  plan_slug TEXT NOT NULL,
  current_value INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME,
  UNIQUE (period, category, plan_slug)
);`,
		`CREATE TABLE enrollments (
  id TEXT PRIMARY KEY,
  plan_id TEXT NOT NULL,
  reference TEXT NOT NULL UNIQUE,
  qty INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending_payment',
  payment_transaction_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE payment_transactions (
  id TEXT PRIMARY KEY,
  order_ref TEXT NOT NULL UNIQUE,
  external_payment_ref TEXT UNIQUE,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  status TEXT NOT NULL DEFAULT 'pending',
  error_detail TEXT,
  failure_code TEXT,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	}
	for _, schema := range schemas {
		if err := db.Exec(schema).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return db
}

func intPtr(v int) *int {
	return &v
}
