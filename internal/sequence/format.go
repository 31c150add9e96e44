package sequence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasvieira/planbook-backend/pkg/enums"
)

// ErrMalformedReference marks a reference string that cannot be parsed back
// into its scope components. It is distinct from a lookup miss on a
// well-formed reference.
var ErrMalformedReference = errors.New("malformed enrollment reference")

// Components are the parsed parts of an enrollment reference.
type Components struct {
	Prefix   string
	Period   string
	Category enums.PlanCategory
	PlanSlug string
	Value    int64
}

// Format renders a reference as PREFIX-PERIOD-CATEGORY-SLUG-NNNNN. The
// rendering is injective: period is fixed-width digits, category values carry
// no hyphens, and the sequence number is the final token, so the slug can be
// recovered unambiguously even when it contains hyphens itself.
func Format(prefix, period string, category enums.PlanCategory, planSlug string, value int64, padding int) string {
	return fmt.Sprintf("%s-%s-%s-%s-%0*d", prefix, period, category, planSlug, padding, value)
}

// Parse splits a reference back into its components. The slug is rejoined
// from the middle tokens; every other part is validated strictly.
func Parse(ref, prefix string) (Components, error) {
	body, ok := strings.CutPrefix(ref, prefix+"-")
	if !ok {
		return Components{}, fmt.Errorf("%w: missing %q prefix", ErrMalformedReference, prefix)
	}

	tokens := strings.Split(body, "-")
	if len(tokens) < 4 {
		return Components{}, fmt.Errorf("%w: expected period, category, slug, and sequence", ErrMalformedReference)
	}

	period := tokens[0]
	if len(period) != 6 || !isDigits(period) {
		return Components{}, fmt.Errorf("%w: period %q is not YYYYMM", ErrMalformedReference, period)
	}

	category, err := enums.ParsePlanCategory(tokens[1])
	if err != nil {
		return Components{}, fmt.Errorf("%w: %v", ErrMalformedReference, err)
	}

	seqToken := tokens[len(tokens)-1]
	if !isDigits(seqToken) {
		return Components{}, fmt.Errorf("%w: sequence %q is not numeric", ErrMalformedReference, seqToken)
	}
	value, err := strconv.ParseInt(seqToken, 10, 64)
	if err != nil {
		return Components{}, fmt.Errorf("%w: %v", ErrMalformedReference, err)
	}

	slug := strings.Join(tokens[2:len(tokens)-1], "-")
	if slug == "" {
		return Components{}, fmt.Errorf("%w: empty plan slug", ErrMalformedReference)
	}

	return Components{
		Prefix:   prefix,
		Period:   period,
		Category: category,
		PlanSlug: slug,
		Value:    value,
	}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
