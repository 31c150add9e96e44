package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lucasvieira/planbook-backend/internal/capacity"
	"github.com/lucasvieira/planbook-backend/internal/payments"
	"github.com/lucasvieira/planbook-backend/internal/sequence"
	"github.com/lucasvieira/planbook-backend/pkg/db"
	"github.com/lucasvieira/planbook-backend/pkg/db/models"
	"github.com/lucasvieira/planbook-backend/pkg/enums"
	pkgerrors "github.com/lucasvieira/planbook-backend/pkg/errors"
	"github.com/lucasvieira/planbook-backend/pkg/logger"
	"github.com/lucasvieira/planbook-backend/pkg/outbox"
	"github.com/lucasvieira/planbook-backend/pkg/outbox/payloads"
)

// BookRequest describes one booking attempt.
type BookRequest struct {
	PlanSlug string
	Qty      int
}

// BookResult is what the flow hands back to the API layer.
type BookResult struct {
	Enrollment *models.Enrollment
	Plan       *models.Plan
	Payment    *models.PaymentTransaction
}

// Params wires the booking service.
type Params struct {
	Plans       PlanRepository
	Enrollments EnrollmentRepository
	Capacity    *capacity.Service
	Sequence    *sequence.Service
	Payments    *payments.Service
	Outbox      *outbox.Service
	TxRunner    db.TxRunner
	Logger      *logger.Logger
	Now         func() time.Time
}

// Service composes the consistency primitives into the booking flow: reserve
// capacity, mint a reference, persist the enrollment and its outbox event in
// one transaction, then drive the payment and settle the enrollment on the
// outcome.
type Service struct {
	plans       PlanRepository
	enrollments EnrollmentRepository
	capacity    *capacity.Service
	sequence    *sequence.Service
	payments    *payments.Service
	outbox      *outbox.Service
	txRunner    db.TxRunner
	logger      *logger.Logger
	now         func() time.Time
}

// NewService builds the booking service.
func NewService(p Params) *Service {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		plans:       p.Plans,
		enrollments: p.Enrollments,
		capacity:    p.Capacity,
		sequence:    p.Sequence,
		payments:    p.Payments,
		outbox:      p.Outbox,
		txRunner:    p.TxRunner,
		logger:      p.Logger,
		now:         now,
	}
}

// Book runs the whole flow. Admission, reference allocation, the enrollment
// row, and the created event commit atomically; a capacity rejection or any
// failure inside rolls everything back, forfeiting the allocated sequence
// value as a gap. Paid plans then charge the gateway: success confirms the
// enrollment, failure cancels it and returns the reserved seats.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	if req.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must be positive")
	}

	plan, err := s.plans.FindBySlug(ctx, req.PlanSlug)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found").
			WithDetails(map[string]any{"plan_slug": req.PlanSlug})
	}

	enrollment, err := s.createEnrollment(ctx, plan, req.Qty)
	if err != nil {
		return nil, err
	}

	result := &BookResult{Enrollment: enrollment, Plan: plan}
	if plan.PriceCents == 0 {
		if err := s.settle(ctx, enrollment, plan, enums.EnrollmentStatusConfirmed, nil); err != nil {
			return nil, err
		}
		return result, nil
	}

	txn, err := s.payments.Charge(ctx, payments.ChargeRequest{
		OrderRef:    enrollment.Reference,
		AmountCents: plan.PriceCents * int64(req.Qty),
		Currency:    plan.Currency,
	})
	if err != nil {
		// The charge never ran; release the seats and cancel.
		if settleErr := s.settle(ctx, enrollment, plan, enums.EnrollmentStatusCancelled, nil); settleErr != nil {
			s.logger.Error(ctx, "cancel enrollment after charge error", settleErr)
		}
		return nil, err
	}
	result.Payment = txn

	switch txn.Status {
	case enums.PaymentStatusSucceeded:
		err = s.settle(ctx, enrollment, plan, enums.EnrollmentStatusConfirmed, &txn.ID)
	case enums.PaymentStatusAuthorized:
		// Settlement arrives via webhook; keep the enrollment pending but
		// link the transaction now.
		err = s.link(ctx, enrollment, txn.ID)
	default:
		err = s.settle(ctx, enrollment, plan, enums.EnrollmentStatusCancelled, &txn.ID)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// createEnrollment holds the transactional core: reserve, allocate, persist,
// and append the created event together.
func (s *Service) createEnrollment(ctx context.Context, plan *models.Plan, qty int) (*models.Enrollment, error) {
	var enrollment *models.Enrollment
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.capacity.WithTx(tx).Reserve(ctx, plan.ID, qty); err != nil {
			return err
		}

		reference, err := s.sequence.WithTx(tx).Allocate(ctx, sequence.Scope{
			Period:   sequence.PeriodFor(s.now()),
			Category: plan.Category,
			PlanSlug: plan.Slug,
		})
		if err != nil {
			return err
		}

		enrollment = &models.Enrollment{
			ID:        uuid.New(),
			PlanID:    plan.ID,
			Reference: reference,
			Qty:       qty,
			Status:    enums.EnrollmentStatusPendingPayment,
		}
		if err := s.enrollments.WithTx(tx).Create(ctx, enrollment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create enrollment")
		}

		return s.emitEnrollmentEvent(ctx, tx, enums.EventEnrollmentCreated, enrollment, plan)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "book enrollment")
	}

	logCtx := s.logger.WithEnrollmentRef(ctx, enrollment.Reference)
	s.logger.Info(logCtx, "enrollment created")
	return enrollment, nil
}

// settle moves the enrollment to its final status, returning seats on
// cancellation, with the matching event in the same transaction.
func (s *Service) settle(ctx context.Context, enrollment *models.Enrollment, plan *models.Plan, status enums.EnrollmentStatus, paymentTransactionID *uuid.UUID) error {
	eventType := enums.EventEnrollmentConfirmed
	if status == enums.EnrollmentStatusCancelled {
		eventType = enums.EventEnrollmentCancelled
	}
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.enrollments.WithTx(tx).UpdateStatus(ctx, enrollment.ID, status, paymentTransactionID); err != nil {
			return err
		}
		if status == enums.EnrollmentStatusCancelled {
			if err := s.capacity.WithTx(tx).Release(ctx, plan.ID, enrollment.Qty); err != nil {
				return err
			}
		}
		enrollment.Status = status
		enrollment.PaymentTransactionID = paymentTransactionID
		return s.emitEnrollmentEvent(ctx, tx, eventType, enrollment, plan)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settle enrollment")
	}
	return nil
}

func (s *Service) link(ctx context.Context, enrollment *models.Enrollment, paymentTransactionID uuid.UUID) error {
	err := s.enrollments.UpdateStatus(ctx, enrollment.ID, enrollment.Status, &paymentTransactionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link payment transaction")
	}
	enrollment.PaymentTransactionID = &paymentTransactionID
	return nil
}

func (s *Service) emitEnrollmentEvent(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, enrollment *models.Enrollment, plan *models.Plan) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateEnrollment,
		AggregateID:   enrollment.ID,
		Data: payloads.EnrollmentEvent{
			EnrollmentID: enrollment.ID,
			PlanID:       plan.ID,
			PlanSlug:     plan.Slug,
			Reference:    enrollment.Reference,
			Qty:          enrollment.Qty,
			Status:       string(enrollment.Status),
			OccurredAt:   s.now().UTC(),
		},
	})
}

// GetByReference loads an enrollment by its formatted reference. A malformed
// reference fails as a validation error before the database is consulted,
// distinct from a well-formed reference that simply does not exist.
func (s *Service) GetByReference(ctx context.Context, reference string) (*models.Enrollment, error) {
	if _, err := s.sequence.Parse(reference); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid enrollment reference")
	}
	enrollment, err := s.enrollments.FindByReference(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load enrollment")
	}
	if enrollment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "enrollment not found").
			WithDetails(map[string]any{"reference": reference})
	}
	return enrollment, nil
}

// Availability reports the display-only slot estimate for a plan.
func (s *Service) Availability(ctx context.Context, planSlug string) (*models.Plan, int, error) {
	plan, err := s.plans.FindBySlug(ctx, planSlug)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan")
	}
	if plan == nil {
		return nil, 0, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found").
			WithDetails(map[string]any{"plan_slug": planSlug})
	}
	available, err := s.capacity.EstimateAvailable(ctx, plan.ID)
	if err != nil {
		return nil, 0, err
	}
	return plan, available, nil
}
