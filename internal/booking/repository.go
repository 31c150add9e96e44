package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lucasvieira/planbook-backend/pkg/db/models"
	"github.com/lucasvieira/planbook-backend/pkg/enums"
)

// PlanRepository reads the minimal catalog the booking flow needs.
type PlanRepository interface {
	WithTx(tx *gorm.DB) PlanRepository
	FindBySlug(ctx context.Context, slug string) (*models.Plan, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository returns a plan repository bound to the provided database.
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) WithTx(tx *gorm.DB) PlanRepository {
	if tx == nil {
		return r
	}
	return &planRepository{db: tx}
}

func (r *planRepository) FindBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	return r.findOne(ctx, "slug = ?", slug)
}

func (r *planRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *planRepository) findOne(ctx context.Context, query string, arg any) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).Where(query, arg).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// EnrollmentRepository persists enrollments.
type EnrollmentRepository interface {
	WithTx(tx *gorm.DB) EnrollmentRepository
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByReference(ctx context.Context, reference string) (*models.Enrollment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EnrollmentStatus, paymentTransactionID *uuid.UUID) error
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository returns an enrollment repository bound to the
// provided database.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) WithTx(tx *gorm.DB) EnrollmentRepository {
	if tx == nil {
		return r
	}
	return &enrollmentRepository{db: tx}
}

func (r *enrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return r.db.WithContext(ctx).Create(enrollment).Error
}

func (r *enrollmentRepository) FindByReference(ctx context.Context, reference string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&enrollment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &enrollment, nil
}

func (r *enrollmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EnrollmentStatus, paymentTransactionID *uuid.UUID) error {
	values := map[string]any{"status": status}
	if paymentTransactionID != nil {
		values["payment_transaction_id"] = *paymentTransactionID
	}
	return r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ?", id).
		Updates(values).Error
}
