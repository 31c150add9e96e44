// Package payloads defines the event data schemas carried inside outbox
// envelopes. Each event type owns its schema; consumers decode by
// (event type, envelope version).
package payloads

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentEvent is the data payload for enrollment lifecycle events.
type EnrollmentEvent struct {
	EnrollmentID uuid.UUID `json:"enrollment_id"`
	PlanID       uuid.UUID `json:"plan_id"`
	PlanSlug     string    `json:"plan_slug"`
	Reference    string    `json:"reference"`
	Qty          int       `json:"qty"`
	Status       string    `json:"status"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// PaymentStatusEvent is the data payload for payment outcome events.
type PaymentStatusEvent struct {
	PaymentTransactionID uuid.UUID `json:"payment_transaction_id"`
	OrderRef             string    `json:"order_ref"`
	ExternalPaymentRef   string    `json:"external_payment_ref,omitempty"`
	AmountCents          int64     `json:"amount_cents"`
	Currency             string    `json:"currency"`
	Status               string    `json:"status"`
	FailureCode          string    `json:"failure_code,omitempty"`
	OccurredAt           time.Time `json:"occurred_at"`
}
