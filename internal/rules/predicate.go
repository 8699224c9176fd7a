package rules

import (
	"errors"
	"math"

	"agrisense/internal/models"
)

// equalsTolerance absorbs floating-point noise in EQUALS comparisons.
const equalsTolerance = 0.01

// ErrMisconfiguredRule marks a rule whose stored shape cannot be
// evaluated (e.g. BETWEEN without a second threshold). Callers warn and
// treat the predicate as false; misconfiguration never aborts a sweep.
var ErrMisconfiguredRule = errors.New("misconfigured rule")

// Predicate reports whether a reading value satisfies a rule condition.
func Predicate(cond models.Condition, value, threshold float64, threshold2 *float64) (bool, error) {
	switch cond {
	case models.CondGreaterThan:
		return value > threshold, nil
	case models.CondLessThan:
		return value < threshold, nil
	case models.CondEquals:
		return math.Abs(value-threshold) < equalsTolerance, nil
	case models.CondBetween:
		if threshold2 == nil {
			return false, ErrMisconfiguredRule
		}
		return threshold <= value && value <= *threshold2, nil
	default:
		return false, ErrMisconfiguredRule
	}
}
