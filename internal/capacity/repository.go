package capacity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lucasvieira/planbook-backend/pkg/db/models"
)

// Repository manages the per-plan admission counters. Reserve and Release are
// single conditional UPDATEs so the database row is the serialization point;
// no application-level lock is held across instances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, planID uuid.UUID) (*models.CapacityLedger, error)
	Reserve(ctx context.Context, planID uuid.UUID, qty int) (bool, error)
	Release(ctx context.Context, planID uuid.UUID, qty int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a capacity repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, planID uuid.UUID) (*models.CapacityLedger, error) {
	var row models.CapacityLedger
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Reserve admits qty seats when the plan still has room. A missing row or a
// NULL capacity means the plan is unbounded: admission succeeds without
// counting. The bounded case is one conditional UPDATE; zero rows affected
// with an existing bounded row means the capacity is exhausted.
func (r *repository) Reserve(ctx context.Context, planID uuid.UUID, qty int) (bool, error) {
	row, err := r.Find(ctx, planID)
	if err != nil {
		return false, err
	}
	if row == nil || row.Capacity == nil {
		return true, nil
	}

	res := r.db.WithContext(ctx).
		Model(&models.CapacityLedger{}).
		Where("plan_id = ? AND capacity IS NOT NULL AND reserved_count + ? <= capacity", planID, qty).
		UpdateColumn("reserved_count", gorm.Expr("reserved_count + ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Release returns qty seats to a bounded plan, clamped at zero. Unbounded
// plans never counted the reservation, so there is nothing to return.
func (r *repository) Release(ctx context.Context, planID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.CapacityLedger{}).
		Where("plan_id = ? AND capacity IS NOT NULL", planID).
		UpdateColumn("reserved_count", gorm.Expr(
			"CASE WHEN reserved_count >= ? THEN reserved_count - ? ELSE 0 END", qty, qty,
		)).Error
}
