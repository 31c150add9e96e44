package paymentwebhook

import (
	"context"
	"strings"

	"github.com/lucasvieira/planbook-backend/internal/payments"
	"github.com/lucasvieira/planbook-backend/pkg/enums"
	pkgerrors "github.com/lucasvieira/planbook-backend/pkg/errors"
	"github.com/lucasvieira/planbook-backend/pkg/logger"
)

type statusApplier interface {
	ApplyWebhookStatus(ctx context.Context, upd payments.WebhookUpdate) (payments.ApplyResult, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryKey string) (bool, error)
	Delete(ctx context.Context, deliveryKey string) error
}

// ServiceParams configures the webhook reconciliation service.
type ServiceParams struct {
	Payments statusApplier
	Guard    deliveryGuard
	Logger   *logger.Logger
}

// Service folds processor webhook deliveries into the payment state machine.
type Service struct {
	payments statusApplier
	guard    deliveryGuard
	logger   *logger.Logger
}

// NewService validates the wiring and returns the webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment service required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "delivery guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payments: params.Payments,
		guard:    params.Guard,
		logger:   params.Logger,
	}, nil
}

// Event is the processor's delivery envelope.
type Event struct {
	EventID string    `json:"event_id"`
	Type    string    `json:"type"`
	Data    EventData `json:"data"`
}

// EventData wraps the changed object.
type EventData struct {
	Type   string      `json:"type"`
	ID     string      `json:"id"`
	Object EventObject `json:"object"`
}

// EventObject holds the payment snapshot for payment events.
type EventObject struct {
	Payment *PaymentPayload `json:"payment"`
}

// PaymentPayload is the processor's view of one payment.
type PaymentPayload struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	Detail      string `json:"detail"`
}

// Statuses the processor reports for payments.
const (
	processorStatusCompleted = "COMPLETED"
	processorStatusApproved  = "APPROVED"
	processorStatusFailed    = "FAILED"
	processorStatusCanceled  = "CANCELED"
)

// HandleEvent processes one verified delivery. Event types this service does
// not care about are acknowledged without side effects so the sender stops
// retrying them; the same goes for deliveries whose transaction is unknown,
// which are logged as integrity anomalies.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
	default:
		return nil
	}

	payment := event.Data.Object.Payment
	if payment == nil || payment.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}

	status, ok := mapProcessorStatus(payment.Status)
	if !ok {
		logCtx := s.logger.WithFields(ctx, map[string]any{
			"external_payment_ref": payment.ID,
			"reported_status":      payment.Status,
		})
		s.logger.Warn(logCtx, "unrecognized processor payment status, acknowledging")
		return nil
	}

	deliveryKey := DeliveryKey(event.EventID, payment.ID, string(status))
	seen, err := s.guard.CheckAndMark(ctx, deliveryKey)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook delivery mark")
	}
	if seen {
		return nil
	}

	result, err := s.payments.ApplyWebhookStatus(ctx, payments.WebhookUpdate{
		ExternalPaymentRef: payment.ID,
		OrderRef:           payment.ReferenceID,
		Status:             status,
		ErrorDetail:        payment.Detail,
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			logCtx := s.logger.WithFields(ctx, map[string]any{
				"external_payment_ref": payment.ID,
				"order_ref":            payment.ReferenceID,
			})
			s.logger.Warn(logCtx, "webhook references unknown payment transaction, acknowledging")
			return nil
		}
		// Unmark so the sender's retry gets another attempt.
		if delErr := s.guard.Delete(ctx, deliveryKey); delErr != nil {
			s.logger.Error(ctx, "failed to clear webhook delivery mark", delErr)
		}
		return err
	}

	logCtx := s.logger.WithFields(ctx, map[string]any{
		"external_payment_ref": payment.ID,
		"reported_status":      status,
		"apply_result":         result,
	})
	s.logger.Info(logCtx, "payment webhook processed")
	return nil
}

func mapProcessorStatus(raw string) (enums.PaymentStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case processorStatusCompleted:
		return enums.PaymentStatusSucceeded, true
	case processorStatusApproved:
		return enums.PaymentStatusAuthorized, true
	case processorStatusFailed, processorStatusCanceled:
		return enums.PaymentStatusFailed, true
	default:
		return "", false
	}
}
