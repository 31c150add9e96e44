package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lucasvieira/planbook-backend/pkg/enums"
)

// Enrollment is a confirmed-or-pending booking of seats on a plan. Reference
// is the human-readable identifier minted by the sequence generator.
type Enrollment struct {
	ID                   uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PlanID               uuid.UUID              `gorm:"column:plan_id;type:uuid;not null;index"`
	Reference            string                 `gorm:"column:reference;not null;uniqueIndex:ux_enrollments_reference"`
	Qty                  int                    `gorm:"column:qty;not null"`
	Status               enums.EnrollmentStatus `gorm:"column:status;not null;default:'pending_payment'"`
	PaymentTransactionID *uuid.UUID             `gorm:"column:payment_transaction_id;type:uuid"`
	CreatedAt            time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
