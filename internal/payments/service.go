package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lucasvieira/planbook-backend/pkg/db"
	"github.com/lucasvieira/planbook-backend/pkg/db/models"
	"github.com/lucasvieira/planbook-backend/pkg/enums"
	pkgerrors "github.com/lucasvieira/planbook-backend/pkg/errors"
	"github.com/lucasvieira/planbook-backend/pkg/logger"
	"github.com/lucasvieira/planbook-backend/pkg/outbox"
	"github.com/lucasvieira/planbook-backend/pkg/outbox/payloads"
)

// ApplyResult says what a webhook-reported status did to the stored state.
type ApplyResult string

const (
	// ApplyResultApplied means the transition was recorded and an event queued.
	ApplyResultApplied ApplyResult = "applied"
	// ApplyResultDuplicate means the reported status was already stored; the
	// delivery changed nothing.
	ApplyResultDuplicate ApplyResult = "duplicate"
	// ApplyResultIgnored means the report conflicted with stored terminal
	// state and was dropped after logging.
	ApplyResultIgnored ApplyResult = "ignored"
)

// ChargeRequest describes one synchronous payment attempt.
type ChargeRequest struct {
	OrderRef    string
	AmountCents int64
	Currency    string
}

// WebhookUpdate is a processor-reported status change. ExternalPaymentRef is
// the primary lookup key, OrderRef the fallback.
type WebhookUpdate struct {
	ExternalPaymentRef string
	OrderRef           string
	Status             enums.PaymentStatus
	ErrorDetail        string
}

// Service drives the payment transaction lifecycle. The synchronous path
// charges the gateway with a bounded timeout; the asynchronous path folds
// webhook reports into the same state machine.
type Service struct {
	repo          Repository
	outbox        *outbox.Service
	gateway       Gateway
	txRunner      db.TxRunner
	logger        *logger.Logger
	chargeTimeout time.Duration
	graceWindow   time.Duration
}

// Params configures the payment service.
type Params struct {
	Repo          Repository
	Outbox        *outbox.Service
	Gateway       Gateway
	TxRunner      db.TxRunner
	Logger        *logger.Logger
	ChargeTimeout time.Duration
	GraceWindow   time.Duration
}

// NewService builds the payment service. GraceWindow bounds how long a
// webhook-confirmed success may overturn a timeout-derived failure.
func NewService(p Params) *Service {
	return &Service{
		repo:          p.Repo,
		outbox:        p.Outbox,
		gateway:       p.Gateway,
		txRunner:      p.TxRunner,
		logger:        p.Logger,
		chargeTimeout: p.ChargeTimeout,
		graceWindow:   p.GraceWindow,
	}
}

// Charge runs the synchronous path: record a pending transaction, call the
// gateway with a bounded timeout, then persist the outcome and its outbox
// event in one transaction. A timeout resolves to a definite failure; the
// transaction is never left pending.
func (s *Service) Charge(ctx context.Context, req ChargeRequest) (*models.PaymentTransaction, error) {
	if req.OrderRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference is required")
	}
	if req.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}

	txn := &models.PaymentTransaction{
		ID:          uuid.New(),
		OrderRef:    req.OrderRef,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Status:      enums.PaymentStatusPending,
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment already attempted for order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment transaction")
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()
	result, gwErr := s.gateway.CreateAndCapture(gwCtx, ChargeParams{
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		OrderRef:    req.OrderRef,
	})

	update := s.outcomeUpdate(txn, result, gwErr)
	if err := s.persistOutcome(ctx, txn, update); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *Service) outcomeUpdate(txn *models.PaymentTransaction, result ChargeResult, gwErr error) StatusUpdate {
	update := StatusUpdate{ID: txn.ID, FromVersion: txn.Version}
	if gwErr != nil {
		update.Status = enums.PaymentStatusFailed
		update.ErrorDetail = strPtr(gwErr.Error())
		if errors.Is(gwErr, context.DeadlineExceeded) {
			update.FailureCode = strPtr(models.PaymentFailureTimeout)
		} else {
			update.FailureCode = strPtr(models.PaymentFailureGateway)
		}
		return update
	}

	if result.ExternalPaymentRef != "" {
		update.ExternalPaymentRef = strPtr(result.ExternalPaymentRef)
	}
	switch result.Outcome {
	case OutcomeSucceeded:
		update.Status = enums.PaymentStatusSucceeded
	case OutcomeAuthorized:
		update.Status = enums.PaymentStatusAuthorized
	default:
		update.Status = enums.PaymentStatusFailed
		if result.FailureCode != "" {
			update.FailureCode = strPtr(result.FailureCode)
		} else {
			update.FailureCode = strPtr(models.PaymentFailureDeclined)
		}
		if result.ErrorDetail != "" {
			update.ErrorDetail = strPtr(result.ErrorDetail)
		}
	}
	return update
}

// persistOutcome writes the status and queues the matching event atomically.
func (s *Service) persistOutcome(ctx context.Context, txn *models.PaymentTransaction, update StatusUpdate) error {
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateStatus(ctx, update); err != nil {
			return err
		}
		return s.emitStatusEvent(ctx, tx, txn, update)
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment transaction modified concurrently")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment outcome")
	}

	txn.Status = update.Status
	txn.Version++
	if update.ExternalPaymentRef != nil {
		txn.ExternalPaymentRef = update.ExternalPaymentRef
	}
	if update.ErrorDetail != nil {
		txn.ErrorDetail = update.ErrorDetail
	}
	if update.FailureCode != nil {
		txn.FailureCode = update.FailureCode
	}
	return nil
}

func (s *Service) emitStatusEvent(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, update StatusUpdate) error {
	eventType, ok := eventTypeForStatus(update.Status)
	if !ok {
		return nil
	}
	extRef := ""
	if update.ExternalPaymentRef != nil {
		extRef = *update.ExternalPaymentRef
	} else if txn.ExternalPaymentRef != nil {
		extRef = *txn.ExternalPaymentRef
	}
	failureCode := ""
	if update.FailureCode != nil {
		failureCode = *update.FailureCode
	}
	// Webhook deliveries can be retried by the sender; suppressing an already
	// queued identical event keeps the stream free of duplicates.
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   txn.ID,
		Data: payloads.PaymentStatusEvent{
			PaymentTransactionID: txn.ID,
			OrderRef:             txn.OrderRef,
			ExternalPaymentRef:   extRef,
			AmountCents:          txn.AmountCents,
			Currency:             txn.Currency,
			Status:               string(update.Status),
			FailureCode:          failureCode,
			OccurredAt:           time.Now().UTC(),
		},
	})
}

func eventTypeForStatus(status enums.PaymentStatus) (enums.OutboxEventType, bool) {
	switch status {
	case enums.PaymentStatusAuthorized:
		return enums.EventPaymentAuthorized, true
	case enums.PaymentStatusSucceeded:
		return enums.EventPaymentSucceeded, true
	case enums.PaymentStatusFailed:
		return enums.EventPaymentFailed, true
	default:
		return "", false
	}
}

// ApplyWebhookStatus folds a processor report into the state machine. Only
// forward transitions apply; a repeat of the stored status is a no-op so
// redelivered webhooks stay side-effect free. A success report may overturn a
// timeout-derived failure inside the grace window, because the processor
// confirmed an outcome this service only inferred. A stored success is never
// overturned.
func (s *Service) ApplyWebhookStatus(ctx context.Context, upd WebhookUpdate) (ApplyResult, error) {
	if !upd.Status.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown payment status")
	}

	txn, err := s.lookup(ctx, upd)
	if err != nil {
		return "", err
	}
	if txn == nil {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found").
			WithDetails(map[string]any{
				"external_payment_ref": upd.ExternalPaymentRef,
				"order_ref":            upd.OrderRef,
			})
	}

	if txn.Status == upd.Status {
		return ApplyResultDuplicate, nil
	}

	if !txn.Status.CanTransitionTo(upd.Status) {
		if !s.timeoutOverride(txn, upd) {
			logCtx := s.logger.WithFields(ctx, map[string]any{
				"payment_transaction_id": txn.ID.String(),
				"stored_status":          txn.Status,
				"reported_status":        upd.Status,
			})
			s.logger.Warn(logCtx, "webhook status conflicts with stored terminal state, ignoring")
			return ApplyResultIgnored, nil
		}
	}

	update := StatusUpdate{
		ID:          txn.ID,
		FromVersion: txn.Version,
		Status:      upd.Status,
	}
	if upd.ExternalPaymentRef != "" && txn.ExternalPaymentRef == nil {
		update.ExternalPaymentRef = strPtr(upd.ExternalPaymentRef)
	}
	if upd.Status == enums.PaymentStatusFailed {
		update.FailureCode = strPtr(models.PaymentFailureDeclined)
		if upd.ErrorDetail != "" {
			update.ErrorDetail = strPtr(upd.ErrorDetail)
		}
	}

	if err := s.persistOutcome(ctx, txn, update); err != nil {
		return "", err
	}
	return ApplyResultApplied, nil
}

// timeoutOverride allows SUCCEEDED to replace a locally inferred timeout
// failure while the grace window is open.
func (s *Service) timeoutOverride(txn *models.PaymentTransaction, upd WebhookUpdate) bool {
	if upd.Status != enums.PaymentStatusSucceeded {
		return false
	}
	if txn.Status != enums.PaymentStatusFailed {
		return false
	}
	if txn.FailureCode == nil || *txn.FailureCode != models.PaymentFailureTimeout {
		return false
	}
	return time.Since(txn.UpdatedAt) <= s.graceWindow
}

func (s *Service) lookup(ctx context.Context, upd WebhookUpdate) (*models.PaymentTransaction, error) {
	txn, err := s.repo.FindByExternalRef(ctx, upd.ExternalPaymentRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup payment by external ref")
	}
	if txn != nil {
		return txn, nil
	}
	if upd.OrderRef == "" {
		return nil, nil
	}
	txn, err = s.repo.FindByOrderRef(ctx, upd.OrderRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup payment by order ref")
	}
	return txn, nil
}

// FindByOrderRef exposes transaction lookup for the booking flow.
func (s *Service) FindByOrderRef(ctx context.Context, orderRef string) (*models.PaymentTransaction, error) {
	txn, err := s.repo.FindByOrderRef(ctx, orderRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup payment by order ref")
	}
	return txn, nil
}

func strPtr(s string) *string {
	return &s
}
