package enums

import "fmt"

// PlanCategory maps to the plan_category enum in Postgres. Category values
// never contain hyphens; enrollment reference parsing depends on that.
type PlanCategory string

const (
	PlanCategoryIndividual PlanCategory = "INDIVIDUAL"
	PlanCategoryGroup      PlanCategory = "GROUP"
	PlanCategoryCorporate  PlanCategory = "CORPORATE"
)

var validPlanCategories = []PlanCategory{
	PlanCategoryIndividual,
	PlanCategoryGroup,
	PlanCategoryCorporate,
}

// IsValid reports whether the value matches the canonical plan_category enum.
func (c PlanCategory) IsValid() bool {
	for _, candidate := range validPlanCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParsePlanCategory converts raw input into PlanCategory.
func ParsePlanCategory(value string) (PlanCategory, error) {
	for _, candidate := range validPlanCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan category %q", value)
}
