package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lucasvieira/planbook-backend/pkg/enums"
)

// SequenceCounter is a per-scope monotonic counter. The (period, category,
// plan_slug) triple is unique; CurrentValue only moves forward, one increment
// per allocation under a row lock.
type SequenceCounter struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Period       string             `gorm:"column:period;not null;uniqueIndex:ux_sequence_counters_scope"`
	Category     enums.PlanCategory `gorm:"column:category;not null;uniqueIndex:ux_sequence_counters_scope"`
	PlanSlug     string             `gorm:"column:plan_slug;not null;uniqueIndex:ux_sequence_counters_scope"`
	CurrentValue int64              `gorm:"column:current_value;not null;default:0"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
