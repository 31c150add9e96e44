package capacity

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/lucasvieira/planbook-backend/pkg/errors"
	"github.com/lucasvieira/planbook-backend/pkg/logger"
)

// Service wraps the ledger repository with domain errors and the cosmetic
// availability estimate.
type Service struct {
	repo             Repository
	logger           *logger.Logger
	unboundedDisplay int
}

// NewService builds the capacity service. unboundedDisplay is the slot count
// shown for plans without a capacity limit; it never gates admission.
func NewService(repo Repository, logg *logger.Logger, unboundedDisplay int) *Service {
	return &Service{repo: repo, logger: logg, unboundedDisplay: unboundedDisplay}
}

// WithTx rebinds the service to the given transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	if tx == nil {
		return s
	}
	return &Service{
		repo:             s.repo.WithTx(tx),
		logger:           s.logger,
		unboundedDisplay: s.unboundedDisplay,
	}
}

// Reserve admits qty seats on the plan or fails with a capacity-exhausted
// error. Exhaustion is a deterministic business rejection, not a transient
// fault; callers must not retry it.
func (s *Service) Reserve(ctx context.Context, planID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reserve qty must be positive")
	}
	ok, err := s.repo.Reserve(ctx, planID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserve capacity")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeCapacityExhausted, "plan capacity exhausted").
			WithDetails(map[string]any{"plan_id": planID.String(), "qty": qty})
	}
	return nil
}

// Release returns qty seats to the plan. The caller must invoke it at most
// once per successful reservation; the repository clamps at zero to keep a
// double release from corrupting the counter.
func (s *Service) Release(ctx context.Context, planID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "release qty must be positive")
	}
	if err := s.repo.Release(ctx, planID, qty); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release capacity")
	}
	return nil
}

// EstimateAvailable reports the slots to display for a plan. Unbounded plans
// get a fixed cosmetic number. The estimate is advisory only; admission is
// decided by Reserve alone.
func (s *Service) EstimateAvailable(ctx context.Context, planID uuid.UUID) (int, error) {
	row, err := s.repo.Find(ctx, planID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load capacity ledger")
	}
	if row == nil || row.Capacity == nil {
		return s.unboundedDisplay, nil
	}
	remaining := *row.Capacity - row.ReservedCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
