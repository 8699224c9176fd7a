package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrisense/internal/models"
)

func f64(v float64) *float64 { return &v }

func TestPredicateTable(t *testing.T) {
	cases := []struct {
		name       string
		cond       models.Condition
		value      float64
		threshold  float64
		threshold2 *float64
		want       bool
	}{
		{"gt true", models.CondGreaterThan, 25.1, 25, nil, true},
		{"gt equal is false", models.CondGreaterThan, 25, 25, nil, false},
		{"gt false", models.CondGreaterThan, 24.9, 25, nil, false},
		{"lt true", models.CondLessThan, 3.9, 4, nil, true},
		{"lt equal is false", models.CondLessThan, 4, 4, nil, false},
		{"eq exact", models.CondEquals, 22, 22, nil, true},
		{"eq inside tolerance", models.CondEquals, 22.0099, 22, nil, true},
		{"eq on tolerance boundary", models.CondEquals, 22.01, 22, nil, false},
		{"eq outside tolerance", models.CondEquals, 22.02, 22, nil, false},
		{"between inside", models.CondBetween, 15, 10, f64(20), true},
		{"between lower edge inclusive", models.CondBetween, 10, 10, f64(20), true},
		{"between upper edge inclusive", models.CondBetween, 20, 10, f64(20), true},
		{"between below", models.CondBetween, 9.99, 10, f64(20), false},
		{"between above", models.CondBetween, 20.01, 10, f64(20), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Predicate(c.cond, c.value, c.threshold, c.threshold2)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestPredicateBetweenMissingSecondThreshold(t *testing.T) {
	got, err := Predicate(models.CondBetween, 15, 10, nil)
	assert.False(t, got)
	assert.ErrorIs(t, err, ErrMisconfiguredRule)
}

func TestPredicateUnknownCondition(t *testing.T) {
	got, err := Predicate(models.Condition("SOMETIMES"), 1, 1, nil)
	assert.False(t, got)
	assert.ErrorIs(t, err, ErrMisconfiguredRule)
}
