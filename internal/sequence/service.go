package sequence

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	pkgerrors "github.com/lucasvieira/planbook-backend/pkg/errors"
)

// Service mints formatted enrollment references from per-scope counters.
type Service struct {
	repo    Repository
	prefix  string
	padding int
}

// NewService builds the sequence service. prefix and padding drive the
// rendered reference format.
func NewService(repo Repository, prefix string, padding int) *Service {
	return &Service{repo: repo, prefix: prefix, padding: padding}
}

// WithTx rebinds the service to the given transaction. Allocate must run in
// the caller's transaction so the counter increment commits or rolls back
// with the business write.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	if tx == nil {
		return s
	}
	return &Service{repo: s.repo.WithTx(tx), prefix: s.prefix, padding: s.padding}
}

// Allocate returns the next reference for the scope, formatted and ready to
// persist.
func (s *Service) Allocate(ctx context.Context, scope Scope) (string, error) {
	if strings.TrimSpace(scope.Period) == "" || strings.TrimSpace(scope.PlanSlug) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "sequence scope requires period and plan slug")
	}
	if !scope.Category.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "sequence scope has unknown plan category")
	}
	value, err := s.repo.Allocate(ctx, scope)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocate sequence value")
	}
	return Format(s.prefix, scope.Period, scope.Category, scope.PlanSlug, value, s.padding), nil
}

// Parse decodes a reference produced by this service.
func (s *Service) Parse(ref string) (Components, error) {
	return Parse(ref, s.prefix)
}

// PeriodFor renders the YYYYMM period for the given instant in UTC.
func PeriodFor(t time.Time) string {
	return t.UTC().Format("200601")
}
