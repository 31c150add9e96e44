package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lucasvieira/planbook-backend/pkg/db/models"
	"github.com/lucasvieira/planbook-backend/pkg/enums"
)

// ErrVersionConflict signals that another writer updated the transaction
// between read and write. Callers reload and re-evaluate the transition.
var ErrVersionConflict = errors.New("payment transaction version conflict")

// StatusUpdate carries one optimistic status write.
type StatusUpdate struct {
	ID                 uuid.UUID
	FromVersion        int
	Status             enums.PaymentStatus
	ExternalPaymentRef *string
	ErrorDetail        *string
	FailureCode        *string
}

// Repository persists payment transactions. Status writes are guarded by the
// version column rather than row locks; contention on one transaction is rare.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.PaymentTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByOrderRef(ctx context.Context, orderRef string) (*models.PaymentTransaction, error)
	FindByExternalRef(ctx context.Context, externalRef string) (*models.PaymentTransaction, error)
	UpdateStatus(ctx context.Context, update StatusUpdate) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *repository) FindByOrderRef(ctx context.Context, orderRef string) (*models.PaymentTransaction, error) {
	return r.findOne(ctx, "order_ref = ?", orderRef)
}

func (r *repository) FindByExternalRef(ctx context.Context, externalRef string) (*models.PaymentTransaction, error) {
	if externalRef == "" {
		return nil, nil
	}
	return r.findOne(ctx, "external_payment_ref = ?", externalRef)
}

func (r *repository) findOne(ctx context.Context, query string, arg any) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).Where(query, arg).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// UpdateStatus applies the transition only if the row still carries
// FromVersion, bumping the version in the same statement. Zero rows affected
// means a concurrent writer won.
func (r *repository) UpdateStatus(ctx context.Context, update StatusUpdate) error {
	values := map[string]any{
		"status":  update.Status,
		"version": gorm.Expr("version + 1"),
	}
	if update.ExternalPaymentRef != nil {
		values["external_payment_ref"] = *update.ExternalPaymentRef
	}
	if update.ErrorDetail != nil {
		values["error_detail"] = *update.ErrorDetail
	}
	if update.FailureCode != nil {
		values["failure_code"] = *update.FailureCode
	}

	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND version = ?", update.ID, update.FromVersion).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}
