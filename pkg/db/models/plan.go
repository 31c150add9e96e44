package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lucasvieira/planbook-backend/pkg/enums"
)

// Plan is the minimal catalog row the booking flow needs. Full catalog
// administration lives outside this service.
type Plan struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Slug       string             `gorm:"column:slug;not null;uniqueIndex:ux_plans_slug"`
	Name       string             `gorm:"column:name;not null"`
	Category   enums.PlanCategory `gorm:"column:category;not null"`
	PriceCents int64              `gorm:"column:price_cents;not null;default:0"`
	Currency   string             `gorm:"column:currency;not null;default:'USD'"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
