package sequence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lucasvieira/planbook-backend/pkg/db/models"
	"github.com/lucasvieira/planbook-backend/pkg/enums"
)

// Scope identifies one independent counter. Allocations within a scope are
// serialized by a row lock; distinct scopes never contend.
type Scope struct {
	Period   string
	Category enums.PlanCategory
	PlanSlug string
}

// Repository allocates monotonically increasing values per scope.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Allocate(ctx context.Context, scope Scope) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a sequence repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Allocate locks the scope's counter row, creating it at zero on first use,
// increments it, and returns the new value. Callers run it inside the same
// transaction as the business write that consumes the identifier, so a
// rollback forfeits the value and leaves a gap rather than a duplicate.
func (r *repository) Allocate(ctx context.Context, scope Scope) (int64, error) {
	row, err := r.lockedFind(ctx, scope)
	if err != nil {
		return 0, err
	}
	if row == nil {
		// ON CONFLICT DO NOTHING keeps the enclosing transaction alive when a
		// concurrent first allocation wins the insert; a raw unique violation
		// would abort it on Postgres. Either way the winner's row is lockable
		// afterwards.
		if err := r.insertScope(ctx, scope); err != nil {
			return 0, err
		}
		row, err = r.lockedFind(ctx, scope)
		if err != nil {
			return 0, err
		}
		if row == nil {
			return 0, errors.New("sequence counter vanished after insert conflict")
		}
	}

	next := row.CurrentValue + 1
	res := r.db.WithContext(ctx).
		Model(&models.SequenceCounter{}).
		Where("id = ?", row.ID).
		UpdateColumn("current_value", next)
	if res.Error != nil {
		return 0, res.Error
	}
	return next, nil
}

func (r *repository) insertScope(ctx context.Context, scope Scope) error {
	counter := models.SequenceCounter{
		ID:       uuid.New(),
		Period:   scope.Period,
		Category: scope.Category,
		PlanSlug: scope.PlanSlug,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&counter).Error
}

func (r *repository) lockedFind(ctx context.Context, scope Scope) (*models.SequenceCounter, error) {
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row models.SequenceCounter
	err := q.Where("period = ? AND category = ? AND plan_slug = ?",
		scope.Period, scope.Category, scope.PlanSlug).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
