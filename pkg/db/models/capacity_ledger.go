package models

import (
	"time"

	"github.com/google/uuid"
)

// CapacityLedger is the per-plan admission counter. A NULL Capacity means the
// plan is unbounded and the row is cosmetic only. ReservedCount is mutated
// exclusively through the capacity repository's conditional updates.
type CapacityLedger struct {
	PlanID        uuid.UUID `gorm:"column:plan_id;type:uuid;primaryKey"`
	Capacity      *int      `gorm:"column:capacity"`
	ReservedCount int       `gorm:"column:reserved_count;not null;default:0"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the singular ledger table name.
func (CapacityLedger) TableName() string {
	return "capacity_ledger"
}
