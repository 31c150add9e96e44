package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lucasvieira/planbook-backend/pkg/enums"
)

// Payment failure codes stored in FailureCode. The reconciliation policy
// treats a timeout-derived failure as locally inferred rather than
// gateway-confirmed.
const (
	PaymentFailureTimeout  = "timeout"
	PaymentFailureDeclined = "declined"
	PaymentFailureGateway  = "gateway_error"
)

// PaymentTransaction owns one payment attempt's lifecycle. Rows are never
// deleted (audit requirement); Version backs optimistic concurrency between
// the synchronous gateway path and webhook deliveries.
type PaymentTransaction struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderRef           string              `gorm:"column:order_ref;not null;uniqueIndex:ux_payment_transactions_order_ref"`
	ExternalPaymentRef *string             `gorm:"column:external_payment_ref;uniqueIndex:ux_payment_transactions_external_ref"`
	AmountCents        int64               `gorm:"column:amount_cents;not null"`
	Currency           string              `gorm:"column:currency;not null;default:'USD'"`
	Status             enums.PaymentStatus `gorm:"column:status;not null;default:'pending'"`
	ErrorDetail        *string             `gorm:"column:error_detail"`
	FailureCode        *string             `gorm:"column:failure_code"`
	Version            int                 `gorm:"column:version;not null;default:0"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
