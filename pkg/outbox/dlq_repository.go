package outbox

import (
	"errors"

	"gorm.io/gorm"

	"github.com/lucasvieira/planbook-backend/pkg/db/models"
)

type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx dead-letters an event within the publisher's transaction.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&entry).Error
}

// List returns dead-lettered events for manual reconciliation tooling.
func (r *DLQRepository) List(limit int) ([]models.OutboxDLQ, error) {
	var rows []models.OutboxDLQ
	err := r.db.Order("failed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
